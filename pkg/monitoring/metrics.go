package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ledger operation metrics
	ledgerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of ledger operations",
		},
		[]string{"operation", "outcome"},
	)

	// Access decision metrics
	accessDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Total number of record access authorization decisions",
		},
		[]string{"decision"},
	)

	// Marketplace settlement metrics
	settlementAmountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_amount_total",
			Help: "Total escrow units paid out to contributors",
		},
	)

	archiveAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_log_archive_appends_total",
			Help: "Total access-log archive append attempts",
		},
		[]string{"outcome"},
	)

	// HTTP request metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func init() {
	prometheus.MustRegister(
		ledgerOperationsTotal,
		accessDecisionsTotal,
		settlementAmountTotal,
		archiveAppendsTotal,
		httpRequestsTotal,
		httpRequestDuration,
	)
}

// RecordOperation counts a ledger operation with its outcome
func RecordOperation(operation, outcome string) {
	ledgerOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordAccessDecision counts an authorization decision (granted, denied, expired)
func RecordAccessDecision(decision string) {
	accessDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordSettlement adds a paid-out amount to the settlement counter
func RecordSettlement(amount uint64) {
	settlementAmountTotal.Add(float64(amount))
}

// RecordArchiveAppend counts an archive append attempt
func RecordArchiveAppend(outcome string) {
	archiveAppendsTotal.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest counts an HTTP request and its duration
func RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Handler returns the prometheus metrics handler
func Handler() http.Handler {
	return promhttp.Handler()
}
