// Package pipeline orchestrates one query through the full KnowLigo flow:
// per-user rate limiting, semantic cache lookup, query validation, intent
// classification, hybrid retrieval, reranking, answer generation, cache
// write-back and query logging. Every collaborator is injected, so the
// pipeline holds no backend-specific code and tests can swap any stage.
//
// Failure handling follows one rule: only rate limiting and validation
// speak to the user in their own words; every other failure is logged with
// full context and answered with a generic internal-error message. A
// reranker failure never fails the request — the fused retrieval order is
// served instead.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/knowligo/knowligo-go/internal/cache"
	"github.com/knowligo/knowligo-go/internal/intent"
	"github.com/knowligo/knowligo-go/internal/logging"
	"github.com/knowligo/knowligo-go/internal/rag"
	"github.com/knowligo/knowligo-go/internal/responder"
	"github.com/knowligo/knowligo-go/internal/store"
	"github.com/knowligo/knowligo-go/internal/validate"
)

const (
	// DefaultMaxQueriesPerHour is the per-user quota of answered queries
	// in the trailing hour. Overridable via MAX_QUERIES_PER_HOUR.
	DefaultMaxQueriesPerHour = 15

	// DefaultRerankTopN is how many candidates survive reranking and are
	// handed to the generator.
	DefaultRerankTopN = 5

	// rateWindow is the trailing window the per-user quota is counted over.
	rateWindow = time.Hour
)

// Stable error codes carried in the response envelope. Internal failure
// detail stays in the logs; clients only ever see these.
const (
	ErrCodeRateLimited  = "rate_limit_exceeded"
	ErrCodeInvalidQuery = "invalid_query"
	ErrCodeInternal     = "internal_error"
)

// internalErrorText is the generic Spanish message for any failure the
// user cannot act on.
const internalErrorText = "Disculpe, ha ocurrido un error interno. Por favor, intente nuevamente."

// Intent markers recorded for queries that never reached classification.
const (
	intentRejected = "rejected"
	intentError    = "error"
)

// Request is one user query as received from the API or CLI.
type Request struct {
	// UserID identifies the requesting user (e.g. a phone number).
	UserID string

	// Query is the question text.
	Query string

	// History carries prior conversation turns, oldest first. May be nil.
	History []responder.Message
}

// Result is the outcome of processing one query. It is the response
// envelope serialized to API clients as-is.
type Result struct {
	// Success reports whether an answer was produced.
	Success bool `json:"success"`

	// Response is the text shown to the user: the answer on success, the
	// rejection or generic error message otherwise.
	Response string `json:"response"`

	// Intent is the classified intent, or a failure marker.
	Intent string `json:"intent,omitempty"`

	// IntentConfidence is the classifier's confidence in [0,1]. Zero for
	// cached answers, which carry only the intent recorded at store time.
	IntentConfidence float64 `json:"intent_confidence,omitempty"`

	// Sources lists the knowledge fragments the answer was built from.
	Sources []cache.Source `json:"sources,omitempty"`

	// TokensUsed is the LLM token cost, 0 when no model ran.
	TokensUsed int `json:"tokens_used,omitempty"`

	// ProcessingTime is the end-to-end latency in seconds.
	ProcessingTime float64 `json:"processing_time,omitempty"`

	// Cached reports whether the answer came from the semantic cache.
	Cached bool `json:"cached,omitempty"`

	// CacheScore is the similarity to the matched cached query, set only
	// when Cached.
	CacheScore float64 `json:"cache_score,omitempty"`

	// ErrorCode is one of the ErrCode constants, empty on success.
	ErrorCode string `json:"error,omitempty"`
}

// Generator produces the final answer from the query and ranked chunks.
// *responder.Responder is the real implementation.
type Generator interface {
	Generate(ctx context.Context, query string, candidates []rag.Candidate, history []responder.Message) (responder.Response, error)
}

// Config holds the collaborators and tuning for a Pipeline.
type Config struct {
	// Validator screens queries before retrieval. Required.
	Validator *validate.Validator

	// Classifier assigns an intent to each accepted query. Required.
	Classifier *intent.Classifier

	// Retriever produces ranked candidates for a query. May be nil when no
	// index is loaded; queries then fail with ErrIndexUnavailable.
	Retriever rag.Retriever

	// Reranker reorders candidates with a pairwise model. Defaults to
	// rag.NopReranker when nil.
	Reranker rag.Reranker

	// Generator produces the final answer. Required.
	Generator Generator

	// Cache is the semantic answer cache. Required; inject cache.Nop when
	// caching is disabled.
	Cache cache.Cache

	// QueryLog persists processed queries and backs the rate limit. Required.
	QueryLog store.QueryLog

	// MaxQueriesPerHour is the per-user quota. Defaults to
	// DefaultMaxQueriesPerHour if zero.
	MaxQueriesPerHour int

	// RerankTopN is how many candidates reach the generator. Defaults to
	// DefaultRerankTopN if zero.
	RerankTopN int
}

// Pipeline processes queries end to end. It is stateless between requests
// and safe for concurrent use.
type Pipeline struct {
	validator  *validate.Validator
	classifier *intent.Classifier
	retriever  rag.Retriever
	reranker   rag.Reranker
	generator  Generator
	cache      cache.Cache
	queryLog   store.QueryLog

	maxQueriesPerHour int
	rerankTopN        int
}

// New constructs a Pipeline from the provided Config.
func New(cfg *Config) (*Pipeline, error) {
	if cfg.Validator == nil {
		return nil, fmt.Errorf("pipeline: Validator must not be nil")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("pipeline: Classifier must not be nil")
	}
	if cfg.Generator == nil {
		return nil, fmt.Errorf("pipeline: Generator must not be nil")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("pipeline: Cache must not be nil")
	}
	if cfg.QueryLog == nil {
		return nil, fmt.Errorf("pipeline: QueryLog must not be nil")
	}

	reranker := cfg.Reranker
	if reranker == nil {
		reranker = rag.NopReranker{}
	}
	maxPerHour := cfg.MaxQueriesPerHour
	if maxPerHour <= 0 {
		maxPerHour = DefaultMaxQueriesPerHour
	}
	topN := cfg.RerankTopN
	if topN <= 0 {
		topN = DefaultRerankTopN
	}

	return &Pipeline{
		validator:         cfg.Validator,
		classifier:        cfg.Classifier,
		retriever:         cfg.Retriever,
		reranker:          reranker,
		generator:         cfg.Generator,
		cache:             cfg.Cache,
		queryLog:          cfg.QueryLog,
		maxQueriesPerHour: maxPerHour,
		rerankTopN:        topN,
	}, nil
}

// Process runs one query through the full flow and always returns a
// complete Result; failures are encoded in its Success, Response and
// ErrorCode fields rather than returned as errors.
func (p *Pipeline) Process(ctx context.Context, req Request) Result {
	start := time.Now()
	res, err := p.run(ctx, req, start)
	if err != nil {
		return p.failed(ctx, req, err)
	}
	return res
}

// run executes the happy path and returns a typed error for any outcome
// that is not a generated or cached answer.
func (p *Pipeline) run(ctx context.Context, req Request, start time.Time) (Result, error) {
	log := logging.FromContext(ctx)

	// The rate limit is the very first gate, before any embedding or
	// retrieval work is spent on the request.
	count, err := p.queryLog.CountRecentSuccesses(ctx, req.UserID, start.Add(-rateWindow))
	if err != nil {
		// An unreachable log must not block users.
		log.Warn("rate limit check failed, allowing query", slog.Any("error", err))
	} else if count >= p.maxQueriesPerHour {
		return Result{}, ErrRateLimited
	}

	// A sufficiently similar cached answer short-circuits everything else,
	// validation included: the cached query already passed it.
	hit, err := p.cache.Lookup(ctx, req.Query)
	if err != nil {
		return Result{}, &EmbeddingError{Err: err}
	}
	if hit != nil {
		res := Result{
			Success:        true,
			Response:       hit.Answer,
			Intent:         hit.Intent,
			Sources:        hit.Sources,
			Cached:         true,
			CacheScore:     hit.Score,
			ProcessingTime: time.Since(start).Seconds(),
		}
		p.record(ctx, store.Record{
			UserID:         req.UserID,
			Query:          req.Query,
			Intent:         hit.Intent,
			Response:       hit.Answer,
			Success:        true,
			ProcessingTime: res.ProcessingTime,
		})
		return res, nil
	}

	if v := p.validator.Validate(req.Query); !v.Valid {
		return Result{}, &InvalidQueryError{Reason: v.Reason}
	}

	cls := p.classifier.Classify(req.Query)
	log.Debug("intent classified",
		slog.String("intent", string(cls.Intent)),
		slog.Float64("confidence", cls.Confidence),
	)

	if p.retriever == nil {
		return Result{}, ErrIndexUnavailable
	}
	candidates, err := p.retriever.Retrieve(ctx, req.Query, "")
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: retrieval: %w", err)
	}

	ranked, err := p.reranker.Rerank(ctx, req.Query, candidates, p.rerankTopN)
	if err != nil {
		log.Warn("rerank failed, serving fused ranking", slog.Any("error", err))
		ranked = candidates
	}
	if len(ranked) > p.rerankTopN {
		ranked = ranked[:p.rerankTopN]
	}

	resp, err := p.generator.Generate(ctx, req.Query, ranked, req.History)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: generation: %w", err)
	}

	sources := make([]cache.Source, 0, len(ranked))
	for _, c := range ranked {
		sources = append(sources, cache.Source{File: c.Source, Section: c.Section, Score: c.Score})
	}

	// Cache before logging so a near-duplicate arriving immediately after
	// this response can already be served from the cache.
	if err := p.cache.Store(ctx, cache.Entry{
		Query:   req.Query,
		Answer:  resp.Text,
		Intent:  string(cls.Intent),
		Sources: sources,
	}); err != nil {
		log.Warn("cache store failed", slog.Any("error", err))
	}

	res := Result{
		Success:          true,
		Response:         resp.Text,
		Intent:           string(cls.Intent),
		IntentConfidence: cls.Confidence,
		Sources:          sources,
		TokensUsed:       resp.TokensUsed,
		ProcessingTime:   time.Since(start).Seconds(),
	}
	p.record(ctx, store.Record{
		UserID:         req.UserID,
		Query:          req.Query,
		Intent:         res.Intent,
		Response:       resp.Text,
		Success:        true,
		TokensUsed:     resp.TokensUsed,
		ProcessingTime: res.ProcessingTime,
	})
	return res, nil
}

// failed maps a typed error to the response envelope, logging and
// recording it as its kind requires.
func (p *Pipeline) failed(ctx context.Context, req Request, err error) Result {
	if errors.Is(err, ErrRateLimited) {
		// Rate-limited requests are not recorded: only answered queries
		// count toward the quota.
		return Result{
			Response: fmt.Sprintf(
				"Has alcanzado el límite de %d consultas por hora. Por favor, intenta nuevamente más tarde.",
				p.maxQueriesPerHour),
			Intent:    string(intent.Unknown),
			ErrorCode: ErrCodeRateLimited,
		}
	}

	var invalid *InvalidQueryError
	if errors.As(err, &invalid) {
		p.record(ctx, store.Record{
			UserID:   req.UserID,
			Query:    req.Query,
			Intent:   intentRejected,
			Response: invalid.Reason,
			Error:    ErrCodeInvalidQuery,
		})
		return Result{
			Response:  invalid.Reason,
			Intent:    intentRejected,
			ErrorCode: ErrCodeInvalidQuery,
		}
	}

	logging.FromContext(ctx).Error("query processing failed",
		slog.String("user_id", req.UserID),
		slog.Any("error", err),
	)
	p.record(ctx, store.Record{
		UserID: req.UserID,
		Query:  req.Query,
		Intent: intentError,
		Error:  err.Error(),
	})
	return Result{
		Response:  internalErrorText,
		Intent:    intentError,
		ErrorCode: ErrCodeInternal,
	}
}

// record appends to the query log; a write failure is logged, never fatal.
func (p *Pipeline) record(ctx context.Context, rec store.Record) {
	if err := p.queryLog.Append(ctx, rec); err != nil {
		logging.FromContext(ctx).Warn("query log append failed", slog.Any("error", err))
	}
}
