package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable: connection-class failures persisted past the retry budget.
	ErrProviderUnavailable = errors.New("llm: provider unavailable")
	// ErrMalformedResponse: the provider answered 2xx with a body we cannot use.
	ErrMalformedResponse = errors.New("llm: malformed provider response")
	ErrNoAPIKey          = errors.New("llm: api key not configured")
	ErrNoProvider        = errors.New("llm: no provider enabled")
)

const maxErrorBody = 512

// ProviderError is an HTTP error status returned by the upstream. These are
// never retried.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm: %s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

func truncateBody(b []byte) string {
	if len(b) <= maxErrorBody {
		return string(b)
	}
	return string(b[:maxErrorBody]) + "...(truncated)"
}
