// shared/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the ledger's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "points_ledger",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "points_ledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "points_ledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	adjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "points_ledger",
			Subsystem: "ledger",
			Name:      "adjustments_total",
			Help:      "Adjustment attempts by outcome.",
		},
		[]string{"outcome"},
	)

	pointsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "points_ledger",
			Subsystem: "ledger",
			Name:      "points_applied_total",
			Help:      "Absolute points moved by successful adjustments, split by sign.",
		},
		[]string{"direction"},
	)

	reconcileDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "points_ledger",
			Subsystem: "reconciler",
			Name:      "drifted_teams",
			Help:      "Teams whose cached points differed from their transaction sum on the last run.",
		},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "points_ledger",
			Subsystem: "reconciler",
			Name:      "runs_total",
			Help:      "Reconciler runs by result.",
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		adjustments,
		pointsApplied,
		reconcileDrift,
		reconcileRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routeTemplate(r)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordAdjustment counts one adjustment attempt. outcome is "applied", "rejected" or "failed".
func RecordAdjustment(outcome string, delta int64) {
	adjustments.WithLabelValues(outcome).Inc()
	if outcome != "applied" {
		return
	}
	if delta >= 0 {
		pointsApplied.WithLabelValues("added").Add(float64(delta))
	} else {
		pointsApplied.WithLabelValues("removed").Add(float64(-delta))
	}
}

// RecordReconcile records the outcome of a reconciler pass.
func RecordReconcile(drifted int, err error) {
	if err != nil {
		reconcileRuns.WithLabelValues("error").Inc()
		return
	}
	reconcileRuns.WithLabelValues("ok").Inc()
	reconcileDrift.Set(float64(drifted))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// routeTemplate keeps label cardinality bounded by using the mux route, not the raw path.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
