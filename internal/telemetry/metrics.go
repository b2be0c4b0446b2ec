package telemetry

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/otiai10/stripehook/internal/webhook"
)

// Metrics holds the collectors registered for one server instance.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpReqs      *prometheus.CounterVec
	httpDur       *prometheus.HistogramVec
	verifications *prometheus.CounterVec
	verifyDur     prometheus.Histogram
}

// New registers the collectors on reg. Passing a fresh prometheus.Registry
// keeps tests independent of the global default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		httpReqs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stripehook_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDur: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stripehook_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stripehook_verifications_total",
				Help: "Stripe event verifications by outcome",
			},
			[]string{"outcome"},
		),
		verifyDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stripehook_verification_duration_seconds",
			Help:    "Time spent verifying a Stripe-Signature header",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
		}),
	}

	reg.MustRegister(m.httpReqs, m.httpDur, m.verifications, m.verifyDur)

	// Every outcome shows up as 0 before the first request.
	for _, o := range webhook.Outcomes {
		m.verifications.WithLabelValues(o.String())
	}

	return m
}

// ObserveVerification records one verifier call.
func (m *Metrics) ObserveVerification(o webhook.Outcome, d time.Duration) {
	m.verifications.WithLabelValues(o.String()).Inc()
	m.verifyDur.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware counts requests per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		// the pattern is only complete once routing has finished
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}

		m.httpReqs.WithLabelValues(route, r.Method, strconv.Itoa(ww.status)).Inc()
		m.httpDur.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack passes through so WebSocket upgrades work behind the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
