// Package ratelimit paces outbound API calls and tracks quota consumption.
//
// Limiter is a pure pacing/retry/classification layer around a
// caller-supplied function; it performs no network I/O itself. The caller's
// transport adapter must surface errors as *errors.APIError so the
// decision table in ShouldRetry can classify them.
//
// QuotaTracker enforces a fixed daily cost budget with per-operation-type
// prices. It is deliberately independent of any real API's quota
// semantics: callers name an operation and a count, nothing more.
package ratelimit
