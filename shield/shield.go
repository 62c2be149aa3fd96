// Package shield provides the HTTP middleware stack of the lexdoc service:
// security headers, body limits, request tracing, panic recovery and HEAD
// handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultAPIStack(20 << 20) {
//	    r.Use(mw)
//	}
package shield

import (
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultAPIStack returns the standard middleware stack for the API.
// Middleware is ordered: HeadToGet → SecurityHeaders → TraceID → Recover → MaxBody.
// Recover sits inside TraceID so that panics are logged with the trace ID.
func DefaultAPIStack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		TraceID,
		Recover,
		MaxBody(maxBody),
	}
}
