package remote

import (
	"errors"
	"fmt"
)

// The two failure kinds callers must tell apart: a connectivity failure is
// retryable by the caller and degrades reads to stale state; an
// authorization failure is never retried automatically and signals that
// the session identity is no longer accepted.
var (
	ErrUnavailable  = errors.New("remote store unreachable")
	ErrUnauthorized = errors.New("remote store rejected credentials")
)

// APIError wraps a non-2xx response that is neither a connectivity nor an
// authorization failure.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote store error: status=%d body=%s", e.StatusCode, e.Body)
}
