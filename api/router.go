// Package api is the HTTP surface of lexdoc: the upload endpoint that runs
// documents through the section pipeline, the login endpoint, health, metrics
// and the optional streamable MCP endpoint.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/lexdoc/audit"
	"github.com/hazyhaar/lexdoc/auth"
	"github.com/hazyhaar/lexdoc/docpipe"
	"github.com/hazyhaar/lexdoc/metrics"
	"github.com/hazyhaar/lexdoc/shield"
)

// multipartSlack covers boundaries and part headers on top of the file cap.
const multipartSlack = 1 << 20

// Deps are the collaborators the router wires together. Audit, Metrics and
// MCP are optional.
type Deps struct {
	Pipeline *docpipe.Pipeline
	Verifier *auth.Verifier
	Audit    *audit.Logger
	Metrics  *metrics.Metrics
	MCP      http.Handler
	Logger   *slog.Logger
}

type server struct {
	cfg      *Config
	pipe     *docpipe.Pipeline
	verifier *auth.Verifier
	audit    *audit.Logger
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewRouter builds the chi router for cfg.
func NewRouter(cfg *Config, d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Verifier == nil {
		d.Verifier = cfg.Verifier()
	}
	if d.Pipeline == nil {
		d.Pipeline = docpipe.New(cfg.Pipeline(d.Logger))
	}
	s := &server{
		cfg:      cfg,
		pipe:     d.Pipeline,
		verifier: d.Verifier,
		audit:    d.Audit,
		metrics:  d.Metrics,
		logger:   d.Logger,
	}

	r := chi.NewRouter()
	r.Use(shield.DefaultAPIStack(cfg.MaxUploadBytes() + multipartSlack)...)
	r.Use(d.Metrics.Middleware(routePattern))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	var index http.Handler = http.HandlerFunc(s.handleIndex)
	if cfg.RequireToken {
		index = auth.RequireToken(s.verifier)(index)
	}
	r.Handle("/api/index", postOnly(index, func(w http.ResponseWriter) {
		writeText(w, http.StatusMethodNotAllowed, "POST only")
	}))
	r.Handle("/api/login", postOnly(http.HandlerFunc(s.handleLogin), func(w http.ResponseWriter) {
		writeJSONError(w, http.StatusMethodNotAllowed, "POST only")
	}))

	if d.MCP != nil {
		r.Handle("/mcp", noWriteDeadline(d.MCP))
	}
	return r
}

// postOnly answers every method but POST with reject. The method check runs
// before any auth so a GET never reads as 401.
func postOnly(next http.Handler, reject func(http.ResponseWriter)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			reject(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// noWriteDeadline lifts the server WriteTimeout for long-lived streams such
// as MCP SSE sessions. Writers that cannot change deadlines keep the server's.
func noWriteDeadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
			shield.GetLogger(r.Context()).Debug("write deadline kept", "error", err)
		}
		next.ServeHTTP(w, r)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
