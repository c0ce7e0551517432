// Package metrics exposes Prometheus instrumentation for the gate.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagate_http_requests_total",
		Help: "HTTP requests served, by method and status code.",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "datagate_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	limiterDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagate_limiter_decisions_total",
		Help: "Rate limiter decisions, by mode (durable|memory) and outcome (allowed|denied).",
	}, []string{"mode", "outcome"})

	limiterFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datagate_limiter_fallbacks_total",
		Help: "Times the durable counter store was unavailable and the in-process window was used.",
	})

	settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "datagate_settlements_total",
		Help: "Payment verification outcomes, by result (settled|rejected|error).",
	}, []string{"result"})

	panics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "datagate_panics_total",
		Help: "Panics recovered by the HTTP middleware.",
	})
)

// RecordRequest counts a served HTTP request.
func RecordRequest(method string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// RecordLimiterDecision counts an allow/deny decision.
func RecordLimiterDecision(mode string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	limiterDecisions.WithLabelValues(mode, outcome).Inc()
}

// RecordLimiterFallback counts a degradation to the in-process window.
func RecordLimiterFallback() {
	limiterFallbacks.Inc()
}

// RecordSettlement counts a payment verification outcome.
func RecordSettlement(result string) {
	settlements.WithLabelValues(result).Inc()
}

// RecordPanic counts a recovered panic.
func RecordPanic() {
	panics.Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ListenAndServe runs a dedicated metrics listener. Blocks; intended for a
// goroutine owned by the serve command.
func ListenAndServe(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}
