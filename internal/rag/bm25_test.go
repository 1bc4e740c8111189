package rag

import (
	"reflect"
	"testing"
)

// planChunks is the small Spanish knowledge corpus used across ranking tests.
func planChunks() []Chunk {
	return []Chunk{
		{ID: 1, Text: "Plan Básico cuesta $199.000/mes", Source: "planes.md", Section: "Básico"},
		{ID: 2, Text: "Plan Profesional cuesta $499.000/mes", Source: "planes.md", Section: "Profesional"},
		{ID: 3, Text: "El horario de soporte es 9 a 18hs", Source: "soporte.md", Section: "Horario"},
	}
}

func Test_Tokenize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"Plan Básico cuesta $199.000/mes", []string{"plan", "básico", "cuesta", "199", "000", "mes"}},
		{"¿Cuál es el horario de atención?", []string{"cuál", "es", "el", "horario", "de", "atención"}},
		{"", nil},
		{"---", nil},
	}
	for _, tc := range cases {
		got := Tokenize(tc.in)
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Tokenize(%q): want %v, got %v", tc.in, tc.want, got)
		}
	}
}

func Test_BM25_ZeroScoresOmitted(t *testing.T) {
	t.Parallel()

	x := NewBM25Index(planChunks())
	scores := x.Score("horario soporte")

	if _, ok := scores[1]; ok {
		t.Error("chunk 1 shares no terms with the query but got a score")
	}
	if _, ok := scores[2]; ok {
		t.Error("chunk 2 shares no terms with the query but got a score")
	}
	if s, ok := scores[3]; !ok || s <= 0 {
		t.Errorf("chunk 3 matches the query: want positive score, got %v (present=%v)", s, ok)
	}
}

func Test_BM25_Deterministic(t *testing.T) {
	t.Parallel()

	x := NewBM25Index(planChunks())
	first := x.Rank("cuánto cuesta el plan básico", 10)
	for range 5 {
		again := x.Rank("cuánto cuesta el plan básico", 10)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("ranking not deterministic: first %v, then %v", first, again)
		}
	}
}

func Test_BM25_PlanBasicoRanksFirst(t *testing.T) {
	t.Parallel()

	x := NewBM25Index(planChunks())
	hits := x.Rank("cuánto cuesta el plan básico", 3)

	if len(hits) == 0 {
		t.Fatal("want hits for plan query, got none")
	}
	if hits[0].ChunkID != 1 {
		t.Errorf("want chunk 1 (Plan Básico) ranked first, got %d", hits[0].ChunkID)
	}
}

func Test_BM25_TiesBreakByChunkID(t *testing.T) {
	t.Parallel()

	// Two identical documents must tie on score, ordered by ascending ID.
	chunks := []Chunk{
		{ID: 7, Text: "respaldo diario de datos"},
		{ID: 3, Text: "respaldo diario de datos"},
	}
	x := NewBM25Index(chunks)
	hits := x.Rank("respaldo", 2)

	if len(hits) != 2 {
		t.Fatalf("want 2 hits, got %d", len(hits))
	}
	if hits[0].Score != hits[1].Score {
		t.Fatalf("identical docs: want equal scores, got %v and %v", hits[0].Score, hits[1].Score)
	}
	if hits[0].ChunkID != 3 || hits[1].ChunkID != 7 {
		t.Errorf("want tie broken by ascending ID [3 7], got [%d %d]", hits[0].ChunkID, hits[1].ChunkID)
	}
}

func Test_BM25_EmptyQueryAndCorpus(t *testing.T) {
	t.Parallel()

	x := NewBM25Index(planChunks())
	if got := x.Score(""); len(got) != 0 {
		t.Errorf("empty query: want no scores, got %v", got)
	}

	empty := NewBM25Index(nil)
	if got := empty.Score("plan"); len(got) != 0 {
		t.Errorf("empty corpus: want no scores, got %v", got)
	}
	if got := empty.Rank("plan", 5); len(got) != 0 {
		t.Errorf("empty corpus: want no hits, got %v", got)
	}
}

func Test_BM25_RankRespectsK(t *testing.T) {
	t.Parallel()

	x := NewBM25Index(planChunks())
	hits := x.Rank("plan cuesta mes", 1)
	if len(hits) != 1 {
		t.Errorf("want 1 hit with k=1, got %d", len(hits))
	}
}
