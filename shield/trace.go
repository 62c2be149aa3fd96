package shield

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/lexdoc/idgen"
	"github.com/hazyhaar/lexdoc/kit"
)

var newRequestID = idgen.Prefixed("req_", idgen.Default)

// TraceID assigns a request ID to each request (reusing a well-formed
// X-Request-ID from upstream) and injects it into the context, the response
// headers and a per-request structured logger stored under LoggerKey.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := idgen.Reuse(r.Header.Get("X-Request-ID"), "req_", newRequestID)

		ctx := kit.WithRequestID(r.Context(), reqID)
		ctx = kit.WithTraceID(ctx, reqID)
		ctx = kit.WithTransport(ctx, "http")
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		w.Header().Set("X-Request-ID", reqID)

		logger := slog.Default().With(
			"trace_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// Recover turns a panic in a handler into a 500 "Server error" plain-text
// response, the same shape as any other internal failure.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			GetLogger(r.Context()).Error("handler panic", "error", fmt.Sprint(rec))
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, "Server error: %v", rec)
		}()
		next.ServeHTTP(w, r)
	})
}
