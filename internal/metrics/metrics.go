// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReviewOperations counts review writes by operation and outcome
	// (ok, duplicate, invalid, not_found, forbidden, conflict, error).
	ReviewOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_review_operations_total",
			Help: "Review writes by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// ReviewConflictRetries counts transactions retried after a lock or
	// serialization conflict on the title row.
	ReviewConflictRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchlist_review_conflict_retries_total",
			Help: "Review transactions retried after a concurrent write conflict",
		},
		[]string{"operation"},
	)

	ReviewOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchlist_review_operation_duration_seconds",
			Help:    "Latency of review writes including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchlist_api_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// ObserveReviewOperation records the outcome and latency of one review write.
func ObserveReviewOperation(operation, outcome string, elapsed time.Duration) {
	ReviewOperations.WithLabelValues(operation, outcome).Inc()
	ReviewOperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RegisterPoolStats exposes pgx pool gauges read on every scrape.
func RegisterPoolStats(reg prometheus.Registerer, stats func() *pgxpool.Stat) {
	gauge := func(name, help string, read func(*pgxpool.Stat) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			st := stats()
			if st == nil {
				return 0
			}
			return read(st)
		})
	}
	reg.MustRegister(
		gauge("watchlist_db_pool_total_conns", "Connections currently in the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
		gauge("watchlist_db_pool_acquired_conns", "Connections currently checked out",
			func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("watchlist_db_pool_idle_conns", "Idle connections in the pool",
			func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
	)
}

// Middleware records request latency keyed by the matched chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		APIRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}
