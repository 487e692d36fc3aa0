// Package metrics provides Prometheus instrumentation for the liquidator.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Evaluation results.
const (
	ResultPlan  = "plan"
	ResultVeto  = "veto"
	ResultSkip  = "skip"
	ResultError = "error"
)

// Transaction statuses.
const (
	TxSent     = "sent"
	TxFailed   = "failed"
	TxReverted = "reverted"
	TxDryRun   = "dry_run"
)

var (
	// Evaluations counts borrower evaluations by result.
	Evaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuse_liquidator_evaluations_total",
		Help: "Borrower evaluations by result",
	}, []string{"result"})

	// Rejections counts evaluations that ended without a plan, by reason.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuse_liquidator_rejections_total",
		Help: "Evaluations rejected, by reason",
	}, []string{"reason"})

	EstimationFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fuse_liquidator_gas_estimation_fallbacks_total",
		Help: "Plans built with the fallback gas limit",
	})

	Transactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuse_liquidator_transactions_total",
		Help: "Liquidation transactions by status",
	}, []string{"status"})

	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fuse_liquidator_pass_duration_seconds",
		Help:    "Duration of one evaluation pass across all pools",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	// LastPass is the unix time the most recent pass finished.
	LastPass = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fuse_liquidator_last_pass_timestamp_seconds",
		Help: "Unix time of the last completed pass",
	})

	Borrowers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fuse_liquidator_borrowers",
		Help: "Liquidatable borrowers seen in the last pass",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuse_liquidator_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})
)

// ObservePass records a finished pass.
func ObservePass(elapsed time.Duration, borrowers int, finished time.Time) {
	PassDuration.Observe(elapsed.Seconds())
	Borrowers.Set(float64(borrowers))
	LastPass.Set(float64(finished.Unix()))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts for the status endpoints.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.status)).Inc()
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
