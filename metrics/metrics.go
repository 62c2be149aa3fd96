// Package metrics exposes lexdoc's Prometheus instruments on a private
// registry served at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	Namespace         = "lexdoc"
	SubsystemConvert  = "convert"
	SubsystemSections = "sections"
	SubsystemAuth     = "auth"
	SubsystemHTTP     = "http"
	SubsystemSystem   = "system"

	LabelStatus  = "status"
	LabelFormat  = "format"
	LabelKey     = "key"
	LabelOutcome = "outcome"
	LabelRoute   = "route"
	LabelVersion = "version"

	StatusSuccess = "success"
	StatusError   = "error"

	OutcomeSuccess   = "success"
	OutcomeInvalid   = "invalid"
	OutcomeMalformed = "malformed"

	unknownRoute = "unknown"
)

// Metrics holds every lexdoc instrument. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	startTime prometheus.Gauge

	conversions     *prometheus.CounterVec
	convertDuration *prometheus.HistogramVec
	sectionsFound   prometheus.Histogram
	missingMarkers  *prometheus.CounterVec
	logins          *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// New builds the instruments and registers them, with the Go and process
// collectors, on a fresh registry.
func New(version string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: Namespace}))
	m.registry.MustRegister(collectors.NewGoCollector())

	m.startTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   Namespace,
		Subsystem:   SubsystemSystem,
		Name:        "start_timestamp_seconds",
		Help:        "The time the server started.",
		ConstLabels: prometheus.Labels{LabelVersion: version},
	})
	m.startTime.SetToCurrentTime()

	m.conversions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemConvert,
		Name:      "total",
		Help:      "Document conversions by input format and status.",
	}, []string{LabelFormat, LabelStatus})

	m.convertDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: SubsystemConvert,
		Name:      "duration_seconds",
		Help:      "Time from upload to rendered sections.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{LabelFormat})

	m.sectionsFound = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: SubsystemSections,
		Name:      "found",
		Help:      "Number of non-empty sections per split document.",
		Buckets:   []float64{0, 1, 2, 3, 4},
	})

	m.missingMarkers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemSections,
		Name:      "missing_marker_total",
		Help:      "Split documents in which a section boundary was not found, by section key.",
	}, []string{LabelKey})

	m.logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemAuth,
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{LabelOutcome})

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: SubsystemHTTP,
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code class.",
	}, []string{LabelRoute, LabelStatus})

	m.registry.MustRegister(m.startTime, m.conversions, m.convertDuration,
		m.sectionsFound, m.missingMarkers, m.logins, m.httpRequests)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveConversion records one conversion of the given format.
func (m *Metrics) ObserveConversion(format string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.conversions.WithLabelValues(format, status).Inc()
	m.convertDuration.WithLabelValues(format).Observe(elapsed.Seconds())
}

// ObserveSections records how many sections came out non-empty and which
// boundaries were missing.
func (m *Metrics) ObserveSections(found int, missing []string) {
	if m == nil {
		return
	}
	m.sectionsFound.Observe(float64(found))
	for _, k := range missing {
		m.missingMarkers.WithLabelValues(k).Inc()
	}
}

// IncLogin counts a login attempt with the given outcome.
func (m *Metrics) IncLogin(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// Middleware counts requests per route pattern and status class. route
// resolves the pattern after the handler ran (chi fills it lazily).
func (m *Metrics) Middleware(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			name := route(r)
			if name == "" {
				name = unknownRoute
			}
			m.httpRequests.WithLabelValues(name, statusClass(sw.status)).Inc()
		})
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Flush forwards to the underlying writer so streaming handlers (MCP SSE)
// still see an http.Flusher through the middleware.
func (w *statusWriter) Flush() {
	http.NewResponseController(w.ResponseWriter).Flush()
}
