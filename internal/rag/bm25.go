package rag

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 free parameters. k1 controls term-frequency saturation, b controls
// document-length normalization. The standard values work well for the short
// knowledge-base chunks this engine indexes.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// BM25Index ranks chunks by Okapi BM25 over a tokenized corpus. It is built
// once at startup and read-only afterwards; concurrent Rank and Score calls
// need no locking. Scoring is deterministic: identical query and corpus
// always produce identical scores, and ordering ties break by ascending
// chunk ID.
type BM25Index struct {
	// docFreq maps a term to the number of chunks containing it.
	docFreq map[string]int

	// termFreq[i] maps each term of chunk i to its occurrence count.
	termFreq []map[string]int

	// ids[i] is the chunk ID of document i.
	ids []int

	// docLen[i] is the token count of document i.
	docLen []int

	// avgDocLen is the mean token count across the corpus.
	avgDocLen float64
}

// NewBM25Index builds a BM25 index over the chunk corpus.
func NewBM25Index(chunks []Chunk) *BM25Index {
	x := &BM25Index{
		docFreq:  make(map[string]int),
		termFreq: make([]map[string]int, 0, len(chunks)),
		ids:      make([]int, 0, len(chunks)),
		docLen:   make([]int, 0, len(chunks)),
	}

	totalLen := 0
	for _, c := range chunks {
		tokens := Tokenize(c.Text)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			x.docFreq[t]++
		}
		x.termFreq = append(x.termFreq, tf)
		x.ids = append(x.ids, c.ID)
		x.docLen = append(x.docLen, len(tokens))
		totalLen += len(tokens)
	}
	if len(chunks) > 0 {
		x.avgDocLen = float64(totalLen) / float64(len(chunks))
	}
	return x
}

// Len returns the number of indexed chunks.
func (x *BM25Index) Len() int { return len(x.ids) }

// Score returns the BM25 relevance of every chunk matching at least one
// query term, keyed by chunk ID. Chunks with zero relevance are omitted
// rather than returned with score 0.
func (x *BM25Index) Score(query string) map[int]float64 {
	scores := make(map[int]float64)
	terms := Tokenize(query)
	if len(terms) == 0 || len(x.ids) == 0 {
		return scores
	}

	n := float64(len(x.ids))
	for _, term := range terms {
		df := x.docFreq[term]
		if df == 0 {
			continue
		}
		// Lucene-style IDF: strictly positive even for very common terms.
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))

		for i, tf := range x.termFreq {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(x.docLen[i])/x.avgDocLen
			scores[x.ids[i]] += idf * f * (bm25K1 + 1) / (f + bm25K1*norm)
		}
	}
	return scores
}

// Rank returns up to k hits ordered by descending BM25 score, ties broken by
// ascending chunk ID.
func (x *BM25Index) Rank(query string, k int) []Hit {
	scores := x.Score(query)
	hits := make([]Hit, 0, len(scores))
	for id, s := range scores {
		hits = append(hits, Hit{ChunkID: id, Score: s})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

// Tokenize lowercases the text and splits it on runs of non-alphanumeric
// runes. Unicode-aware so accented Spanish terms ("básico", "atención")
// tokenize as single terms.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
