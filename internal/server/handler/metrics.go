package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ledgerEntriesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ballotledger_entries",
		Help: "Current number of entries in the ledger.",
	})

	ledgerAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ballotledger_appends_total",
		Help: "Total entries appended, by entry type.",
	}, []string{"entry_type"})

	appendConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ballotledger_append_conflicts_total",
		Help: "Total appends that exhausted the retry budget.",
	})

	chainVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ballotledger_chain_verifications_total",
		Help: "Total full-chain validations, by result.",
	}, []string{"result"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ballotledger_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ballotledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// PrometheusMiddleware returns a Gin middleware recording per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		requestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler serving Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLedgerAppend records a committed append.
func RecordLedgerAppend(entryType string) {
	ledgerAppendsTotal.WithLabelValues(entryType).Inc()
}

// RecordAppendConflict records an append that surfaced AppendConflict.
func RecordAppendConflict() {
	appendConflictsTotal.Inc()
}

// RecordChainVerification records the outcome of a full-chain validation.
func RecordChainVerification(valid bool) {
	if valid {
		chainVerificationsTotal.WithLabelValues("valid").Inc()
	} else {
		chainVerificationsTotal.WithLabelValues("invalid").Inc()
	}
}

// SetLedgerEntriesGauge updates the ledger length gauge.
func SetLedgerEntriesGauge(n int) {
	ledgerEntriesTotal.Set(float64(n))
}
