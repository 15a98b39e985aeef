package airquality

import "errors"

// Error taxonomy shared by the fetch pipeline and its callers. Provider
// failures are absorbed at the client boundary (fallback or nil payload);
// only ErrBadRequest and ErrInternal ever reach the transport layer.
var (
	// ErrBadRequest marks an invalid query. Never retried.
	ErrBadRequest = errors.New("bad request")

	// ErrTimeout marks an upstream deadline that elapsed before a response.
	ErrTimeout = errors.New("upstream timeout")

	// ErrUpstream marks a non-2xx response or an unparseable payload.
	ErrUpstream = errors.New("upstream error")

	// ErrFallbackMock marks payloads synthesized by the deterministic mock.
	ErrFallbackMock = errors.New("fallback mock payload")

	// ErrNoData marks a provider that produced nothing and has no mock
	// fallback; the canonicalizer skips it.
	ErrNoData = errors.New("no data from provider")

	// ErrUnavailable is surfaced when no provider produced data and mock
	// fallbacks are disabled by configuration.
	ErrUnavailable = errors.New("no air quality data available")

	// ErrInternal marks a programmer error or invariant violation.
	ErrInternal = errors.New("internal error")
)
