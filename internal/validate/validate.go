// Package validate screens user queries before any retrieval or generation
// work runs. It rejects empty and oversized input, known prompt-injection
// phrasings, and queries touching topics the assistant must not discuss.
// Rejected queries carry a user-facing Spanish reason; topical filtering of
// borderline questions is left to the downstream model.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxQueryLen is the maximum accepted query length in characters.
const MaxQueryLen = 500

// DefaultDomain names the service area quoted in rejection messages.
const DefaultDomain = "IT Support Services"

// DefaultForbiddenTopics are the topics rejected out of the box. Each entry
// is split into words and any word appearing in the query rejects it.
var DefaultForbiddenTopics = []string{
	"hacking",
	"política",
	"religión",
	"apuestas",
}

// injectionPhrases are lowercase fragments of known prompt-injection
// attempts, in Spanish and English.
var injectionPhrases = []string{
	"ignora todas las instrucciones",
	"ignora las instrucciones",
	"olvida tus instrucciones",
	"ignore all previous instructions",
	"ignore previous instructions",
	"jailbreak",
	"dan mode",
	"modo dan",
	"prompt del sistema",
	"system prompt",
	"ahora eres",
	"you are now",
}

// Result reports the outcome of validating one query.
type Result struct {
	// Valid is true when the query may proceed through the pipeline.
	Valid bool

	// Reason is the user-facing rejection text, empty when Valid.
	Reason string
}

// Config tunes the validator. Zero values take the defaults above.
type Config struct {
	// Domain is the service area named in rejection messages.
	Domain string

	// ForbiddenTopics overrides DefaultForbiddenTopics when non-nil.
	ForbiddenTopics []string
}

// Validator checks queries against the domain policy. It is immutable after
// construction and safe for concurrent use.
type Validator struct {
	domain    string
	forbidden []string
}

// New constructs a Validator, filling unset Config fields with defaults.
func New(cfg Config) *Validator {
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.ForbiddenTopics == nil {
		cfg.ForbiddenTopics = DefaultForbiddenTopics
	}
	return &Validator{
		domain:    cfg.Domain,
		forbidden: append([]string(nil), cfg.ForbiddenTopics...),
	}
}

// Validate checks a single query. The checks run cheapest first; the first
// failing check determines the rejection reason.
func (v *Validator) Validate(query string) Result {
	if strings.TrimSpace(query) == "" {
		return Result{Reason: "La consulta está vacía."}
	}
	if utf8.RuneCountInString(query) > MaxQueryLen {
		return Result{Reason: fmt.Sprintf(
			"La consulta es demasiado larga (máximo %d caracteres).", MaxQueryLen)}
	}

	lower := strings.ToLower(query)

	for _, phrase := range injectionPhrases {
		if strings.Contains(lower, phrase) {
			return Result{Reason: fmt.Sprintf(
				"Lo siento, no puedo procesar ese tipo de instrucciones. Me especializo en %s.", v.domain)}
		}
	}

	for _, topic := range v.forbidden {
		for _, word := range strings.Fields(strings.ToLower(topic)) {
			if strings.Contains(lower, word) {
				return Result{Reason: fmt.Sprintf(
					"Lo siento, no puedo ayudar con consultas sobre %s. Me especializo en %s.", topic, v.domain)}
			}
		}
	}

	return Result{Valid: true}
}
