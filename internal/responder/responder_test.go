package responder

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/knowligo/knowligo-go/internal/rag"
)

// stubChatModel records the prompt it receives and returns a canned reply.
type stubChatModel struct {
	reply    string
	usage    *schema.TokenUsage
	err      error
	received []*schema.Message
}

func (s *stubChatModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	s.received = in
	if s.err != nil {
		return nil, s.err
	}
	msg := schema.AssistantMessage(s.reply, nil)
	msg.ResponseMeta = &schema.ResponseMeta{FinishReason: "stop", Usage: s.usage}
	return msg, nil
}

func (s *stubChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not supported in tests")
}

func newTestResponder(t *testing.T, stub *stubChatModel) *Responder {
	t.Helper()
	r, err := New(Config{ChatModel: stub})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func planCandidates() []rag.Candidate {
	return []rag.Candidate{
		{Chunk: rag.Chunk{ID: 1, Text: "Plan Básico cuesta $199.000/mes", Source: "planes.md", Section: "Planes"}},
		{Chunk: rag.Chunk{ID: 3, Text: "El horario de soporte es 9 a 18hs", Source: "sla.md", Section: "Horarios"}},
	}
}

func Test_Generate_PromptCarriesSourcesAndQuery(t *testing.T) {
	t.Parallel()
	stub := &stubChatModel{reply: "El Plan Básico cuesta $199.000 por mes (ARS)."}
	r := newTestResponder(t, stub)

	resp, err := r.Generate(context.Background(), "cuánto cuesta el plan básico", planCandidates(), nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != stub.reply {
		t.Errorf("text = %q, want model reply unchanged", resp.Text)
	}

	if len(stub.received) != 2 {
		t.Fatalf("model received %d messages, want system + user", len(stub.received))
	}
	sys := stub.received[0]
	if sys.Role != schema.System || !strings.Contains(sys.Content, "KnowLigo") {
		t.Errorf("first message = %s %.40q, want KnowLigo system prompt", sys.Role, sys.Content)
	}
	user := stub.received[1]
	for _, want := range []string{
		"cuánto cuesta el plan básico",
		"[Fuente 1: planes.md]",
		"Plan Básico cuesta $199.000/mes",
		"[Fuente 2: sla.md]",
	} {
		if !strings.Contains(user.Content, want) {
			t.Errorf("user prompt missing %q", want)
		}
	}
}

func Test_Generate_EmptyContextIsStated(t *testing.T) {
	t.Parallel()
	stub := &stubChatModel{reply: "No dispongo de esa información."}
	r := newTestResponder(t, stub)

	if _, err := r.Generate(context.Background(), "cuánto cuesta", nil, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	user := stub.received[len(stub.received)-1]
	if !strings.Contains(user.Content, noContextText) {
		t.Errorf("user prompt missing the no-context notice: %q", user.Content)
	}
}

func Test_Generate_ContextCappedAtFiveFragments(t *testing.T) {
	t.Parallel()
	stub := &stubChatModel{reply: "ok"}
	r := newTestResponder(t, stub)

	var candidates []rag.Candidate
	for i := 1; i <= 8; i++ {
		candidates = append(candidates, rag.Candidate{
			Chunk: rag.Chunk{ID: i, Text: "texto", Source: "doc.md"},
		})
	}
	if _, err := r.Generate(context.Background(), "plan", candidates, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	user := stub.received[len(stub.received)-1]
	if strings.Contains(user.Content, "[Fuente 6:") {
		t.Error("prompt quotes more than five fragments")
	}
	if !strings.Contains(user.Content, "[Fuente 5:") {
		t.Error("prompt missing the fifth fragment")
	}
}

func Test_Generate_HistoryLimitedToTwoTurns(t *testing.T) {
	t.Parallel()
	stub := &stubChatModel{reply: "ok"}
	r := newTestResponder(t, stub)

	history := []Message{
		{Role: "user", Content: "h1"},
		{Role: "assistant", Content: "h2"},
		{Role: "user", Content: "h3"},
		{Role: "assistant", Content: "h4"},
		{Role: "user", Content: "h5"},
		{Role: "assistant", Content: "h6"},
	}
	if _, err := r.Generate(context.Background(), "plan", nil, history); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// system + 4 history + user.
	if len(stub.received) != 6 {
		t.Fatalf("model received %d messages, want 6", len(stub.received))
	}
	if stub.received[1].Content != "h3" {
		t.Errorf("oldest replayed turn = %q, want h3", stub.received[1].Content)
	}
	if stub.received[4].Content != "h6" {
		t.Errorf("newest replayed turn = %q, want h6", stub.received[4].Content)
	}
}

func Test_Generate_ReportsUsage(t *testing.T) {
	t.Parallel()
	stub := &stubChatModel{reply: "ok", usage: &schema.TokenUsage{TotalTokens: 42}}
	r := newTestResponder(t, stub)

	resp, err := r.Generate(context.Background(), "plan", nil, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("tokens = %d, want 42", resp.TokensUsed)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("finish reason = %q, want stop", resp.FinishReason)
	}
}

func Test_Generate_ModelErrorPropagates(t *testing.T) {
	t.Parallel()
	stub := &stubChatModel{err: errors.New("backend unavailable")}
	r := newTestResponder(t, stub)

	if _, err := r.Generate(context.Background(), "plan", nil, nil); err == nil {
		t.Fatal("want error when the backend fails, got nil")
	}
}

func Test_LimitWords(t *testing.T) {
	t.Parallel()

	short := "El Plan Básico cuesta $199.000 por mes."
	if got, truncated := limitWords(short, DefaultMaxWords); truncated || got != short {
		t.Errorf("limitWords(short) = (%q, %v), want unchanged", got, truncated)
	}

	// 200 words in full sentences: the cut lands right after a period, so
	// the answer keeps exactly the word limit and ends cleanly.
	sentences := strings.TrimSpace(strings.Repeat("uno dos tres cuatro cinco. ", 40))
	got, truncated := limitWords(sentences, DefaultMaxWords)
	if !truncated {
		t.Fatal("want truncation for 200-word text")
	}
	if n := len(strings.Fields(got)); n != DefaultMaxWords {
		t.Errorf("truncated to %d words, want %d", n, DefaultMaxWords)
	}
	if !strings.HasSuffix(got, ".") {
		t.Errorf("truncated text %q does not end at a sentence", got[len(got)-20:])
	}

	// When the only period falls early in the text, the cut keeps the raw
	// word limit instead of discarding most of the answer.
	early := strings.TrimSpace(strings.Repeat("x. ", 60) + strings.Repeat("y ", 140))
	got, truncated = limitWords(early, DefaultMaxWords)
	if !truncated {
		t.Fatal("want truncation for 200-word text")
	}
	if n := len(strings.Fields(got)); n != DefaultMaxWords {
		t.Errorf("truncated to %d words, want %d", n, DefaultMaxWords)
	}
	if strings.HasSuffix(got, ".") {
		t.Error("cut should not rewind to a period far from the end")
	}
}
