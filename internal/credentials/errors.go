package credentials

import "errors"

// Domain-specific errors for credential exchange.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrCredentialFetch is returned when temporary credentials cannot be
	// obtained: a non-200 response, an unusable body, or exhausted retries.
	ErrCredentialFetch = errors.New("credentials: fetch failed")

	// ErrTooManyRedirects is returned (wrapped in ErrCredentialFetch) when
	// the endpoint redirects more than the allowed number of times.
	ErrTooManyRedirects = errors.New("credentials: too many redirects")
)
