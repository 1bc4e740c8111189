package pipeline

import (
	"errors"
	"fmt"
)

// ErrRateLimited reports that the user spent their hourly query quota.
// It is one of the two outcomes answered with user-facing Spanish text.
var ErrRateLimited = errors.New("pipeline: rate limit exceeded")

// ErrIndexUnavailable reports that no retrieval index is loaded, so the
// request cannot be served. Queries fail with it until an index snapshot
// is built and the service restarted.
var ErrIndexUnavailable = errors.New("pipeline: retrieval index unavailable")

// InvalidQueryError reports a query rejected by validation. Reason is the
// user-facing Spanish text explaining the rejection.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "pipeline: invalid query: " + e.Reason
}

// EmbeddingError reports a failure of the embedding backend. Both the
// semantic cache and dense retrieval depend on embeddings, so the request
// cannot proceed; the user sees only the generic internal-error message.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("pipeline: embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}
