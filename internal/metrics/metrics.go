// Package metrics provides Prometheus instrumentation for the alert engine.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectedClients tracks live WebSocket connections by kind
	// ("identified" or "anonymous").
	ConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "arb_connected_clients",
		Help: "Number of live WebSocket connections",
	}, []string{"kind"})

	// OpportunitiesBroadcast counts opportunities fanned out to clients.
	OpportunitiesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_opportunities_broadcast_total",
		Help: "Total opportunities broadcast",
	})

	// AlertsSent counts per-connection alert deliveries, partitioned by
	// status (auto_unlocked, preview_only, anonymous_preview).
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_alerts_sent_total",
		Help: "Total opportunity alerts delivered",
	}, []string{"status"})

	// ExecutionsTotal counts execution attempts by outcome (filled, failed, error).
	ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_trade_executions_total",
		Help: "Total automatic trade executions",
	}, []string{"outcome"})

	// PayoutsTotal counts profit distributions by outcome (completed, failed).
	PayoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_profit_payouts_total",
		Help: "Total profit distribution attempts",
	}, []string{"outcome"})

	// KeepalivePrunes counts dead connections removed by the keepalive loop.
	KeepalivePrunes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arb_keepalive_prunes_total",
		Help: "Connections pruned by keepalive probing",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arb_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the route surface is small.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so WebSocket upgrades work
// behind the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}
