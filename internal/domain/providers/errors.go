package providers

import "errors"

// Provider error classes. Adapters translate upstream failures into these
// sentinels so callers can choose a retry policy without inspecting
// transport details.
var (
	// ErrUpstreamUnavailable signals a degraded upstream where a fallback
	// path should be used instead of failing the operation.
	ErrUpstreamUnavailable = errors.New("upstream provider unavailable")

	// ErrRateLimited signals the upstream rejected the call due to rate
	// limiting. Retry with exponential backoff.
	ErrRateLimited = errors.New("upstream rate limit exceeded")

	// ErrConnection signals a transport-level failure (timeout, reset,
	// DNS). Retry with a constant delay.
	ErrConnection = errors.New("upstream connection failure")

	// ErrHardAPI signals a non-retryable upstream rejection such as an
	// invalid request or auth failure.
	ErrHardAPI = errors.New("upstream request rejected")
)
