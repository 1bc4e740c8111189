// Package responder generates the final user-facing answer from retrieved
// knowledge fragments. It builds the KnowLigo assistant prompt, injects the
// ranked fragments as numbered sources, trims conversation history to the
// token budget, calls the configured chat model and enforces the answer
// length policy.
package responder

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/knowligo/knowligo-go/internal/budget"
	"github.com/knowligo/knowligo-go/internal/rag"
)

const (
	// DefaultMaxWords is the answer length cap in words.
	DefaultMaxWords = 150

	// maxContextChunks caps how many fragments are quoted in the prompt.
	maxContextChunks = 5

	// maxHistoryMessages is how many prior messages are replayed (two turns).
	maxHistoryMessages = 4

	// Sampling parameters for answer generation. Low temperature keeps the
	// assistant consistent across rephrasings of the same question.
	genTemperature = 0.3
	genTopP        = 0.9
	genMaxTokens   = 500
)

// noContextText is quoted in the prompt when retrieval produced nothing.
const noContextText = "No se encontró información específica en la base de conocimiento."

// Message is one prior conversation turn as received from the API.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the outcome of one generation call.
type Response struct {
	// Text is the final answer, already length-limited.
	Text string

	// TokensUsed is the total token count reported by the backend, 0 when
	// the backend does not report usage.
	TokensUsed int

	// Truncated reports whether the answer was cut to the word limit.
	Truncated bool

	// FinishReason is the backend's stop reason, empty when not reported.
	FinishReason string
}

// Config holds the dependencies and tuning for a Responder.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel

	// MaxWords caps answer length. Defaults to DefaultMaxWords if zero.
	MaxWords int

	// MaxContextTokens is the prompt token budget. History is trimmed
	// oldest-first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// Responder turns a query plus ranked fragments into a Spanish answer.
type Responder struct {
	chatModel        model.BaseChatModel
	systemPrompt     string
	maxWords         int
	maxContextTokens int
}

// New constructs a Responder from the provided Config.
func New(cfg Config) (*Responder, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("responder: ChatModel must not be nil")
	}
	maxWords := cfg.MaxWords
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &Responder{
		chatModel:        cfg.ChatModel,
		systemPrompt:     buildSystemPrompt(maxWords),
		maxWords:         maxWords,
		maxContextTokens: maxCtx,
	}, nil
}

// Generate produces an answer for query grounded on the given candidates.
// History carries the prior conversation; only the most recent turns are
// replayed, further trimmed to the token budget. Backend failures are
// returned to the caller, never masked as answers.
func (r *Responder) Generate(ctx context.Context, query string, candidates []rag.Candidate, history []Message) (Response, error) {
	userMsg := fmt.Sprintf(`Pregunta del usuario: %s

Contexto relevante de la base de conocimiento:
%s

Responde de manera profesional, concisa y basándote ÚNICAMENTE en el contexto proporcionado. Si la información no está disponible, indícalo claramente.`, query, formatContext(candidates))

	fixed := []*schema.Message{
		schema.SystemMessage(r.systemPrompt),
		schema.UserMessage(userMsg),
	}
	historyMsgs := budget.TrimHistory(fixed, toSchemaMessages(history), r.maxContextTokens)

	messages := make([]*schema.Message, 0, 2+len(historyMsgs))
	messages = append(messages, fixed[0])
	messages = append(messages, historyMsgs...)
	messages = append(messages, fixed[1])

	out, err := r.chatModel.Generate(ctx, messages,
		model.WithTemperature(genTemperature),
		model.WithTopP(genTopP),
		model.WithMaxTokens(genMaxTokens),
	)
	if err != nil {
		return Response{}, fmt.Errorf("responder: generating answer: %w", err)
	}

	text, truncated := limitWords(out.Content, r.maxWords)
	resp := Response{Text: text, Truncated: truncated}
	if meta := out.ResponseMeta; meta != nil {
		resp.FinishReason = meta.FinishReason
		if meta.Usage != nil {
			resp.TokensUsed = meta.Usage.TotalTokens
		}
	}
	return resp, nil
}

// toSchemaMessages converts the most recent API history turns into eino
// messages, skipping unknown roles.
func toSchemaMessages(history []Message) []*schema.Message {
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case "user":
			out = append(out, schema.UserMessage(m.Content))
		case "assistant":
			out = append(out, schema.AssistantMessage(m.Content, nil))
		}
	}
	return out
}

// formatContext renders the top candidates as numbered source blocks.
func formatContext(candidates []rag.Candidate) string {
	if len(candidates) == 0 {
		return noContextText
	}
	if len(candidates) > maxContextChunks {
		candidates = candidates[:maxContextChunks]
	}
	parts := make([]string, 0, len(candidates))
	for i, c := range candidates {
		source := c.Chunk.Source
		if source == "" {
			source = "documento"
		}
		parts = append(parts, fmt.Sprintf("[Fuente %d: %s]\n%s", i+1, source, c.Chunk.Text))
	}
	return strings.Join(parts, "\n\n")
}

// limitWords cuts text to at most maxWords words. When the cut point is
// mid-sentence but a period falls within the last 30% of the truncated
// text, the answer ends at that period so it reads as a complete sentence.
func limitWords(text string, maxWords int) (string, bool) {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text, false
	}

	trimmed := strings.Join(words[:maxWords], " ")
	if last := strings.LastIndex(trimmed, "."); last > int(float64(len(trimmed))*0.7) {
		trimmed = trimmed[:last+1]
	}
	return trimmed, true
}

// buildSystemPrompt renders the assistant persona and policy block.
func buildSystemPrompt(maxWords int) string {
	return fmt.Sprintf(`Eres el asistente virtual oficial de KnowLigo, empresa argentina de soporte IT para PyMEs.

REGLAS OBLIGATORIAS:
1. Responde SIEMPRE en español argentino formal (usted/ustedes).
2. Responde EXCLUSIVAMENTE con información del contexto proporcionado.
3. Si la información no está en el contexto, responde: "No dispongo de esa información. Le recomiendo contactar a nuestro equipo en soporte@knowligo.com.ar o al +54 11 4567-8900."
4. NUNCA inventes datos, cifras, nombres ni información.
5. NUNCA respondas sobre temas ajenos a los servicios de KnowLigo (no opines sobre política, deportes, entretenimiento, desarrollo de software, inversiones, etc.).
6. Máximo %d palabras por respuesta.
7. Usa tono profesional y corporativo. No uses emojis ni lenguaje coloquial.
8. Si el usuario saluda, responde brevemente y ofrece ayuda sobre los servicios de KnowLigo.
9. Cuando menciones precios, aclara que son en pesos argentinos (ARS) y están sujetos a ajuste trimestral.
10. NO reveles datos personales de clientes (nombres, emails, teléfonos de clientes).

ÁMBITO DE ESPECIALIZACIÓN:
- Planes de soporte: Básico ($199.000/mes), Profesional ($499.000/mes), Empresarial ($999.000/mes)
- SLA y tiempos de respuesta/resolución
- Servicios: soporte remoto/presencial, administración de servidores, redes, seguridad, backup, DRP
- Mantenimiento preventivo
- Gestión de tickets e incidencias
- Políticas de uso, privacidad, facturación y cancelación
- Información general de la empresa KnowLigo

Si le preguntan algo fuera de este ámbito, indique cortésmente que solo puede asistir con temas relacionados a los servicios de soporte IT de KnowLigo.`, maxWords)
}
