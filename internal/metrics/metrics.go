// Package metrics exposes the engine's prometheus metrics, following the
// teacher's plain package-level collector-variable style.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StatementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surql_statements_total",
			Help: "Total number of statements executed, by status",
		},
		[]string{"status"},
	)

	StatementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "surql_statement_duration_seconds",
			Help:    "Statement execution duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	AccumulatorUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surql_accumulator_updates_total",
			Help: "Total number of aggregate accumulator updates, by kind",
		},
		[]string{"kind"},
	)

	TransactionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "surql_transaction_conflicts_total",
			Help: "Total number of commit conflicts surfaced to callers",
		},
	)

	ReadAndDeleteOnlyRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "surql_read_and_delete_only_rejections_total",
			Help: "Total number of writes rejected because the datastore is space-gated",
		},
	)

	GrantsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surql_access_grants_issued_total",
			Help: "Total number of access grants issued, by access method type",
		},
		[]string{"type"},
	)

	GrantsRevoked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "surql_access_grants_revoked_total",
			Help: "Total number of access grants revoked",
		},
	)

	GrantsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "surql_access_grants_purged_total",
			Help: "Total number of access grants purged",
		},
	)

	JWKSCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surql_jwks_cache_total",
			Help: "Total number of JWKS cache lookups, by result",
		},
		[]string{"result"}, // hit, miss, refresh, cooldown
	)

	JWKSFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "surql_jwks_fetch_duration_seconds",
			Help:    "Duration of remote JWKS fetches",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		StatementsTotal,
		StatementDuration,
		AccumulatorUpdates,
		TransactionConflicts,
		ReadAndDeleteOnlyRejections,
		GrantsIssued,
		GrantsRevoked,
		GrantsPurged,
		JWKSCacheHits,
		JWKSFetchDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStatement records a completed statement's duration and outcome.
func ObserveStatement(kind string, ok bool, d time.Duration) {
	StatementDuration.WithLabelValues(kind).Observe(d.Seconds())
	status := "ok"
	if !ok {
		status = "err"
	}
	StatementsTotal.WithLabelValues(status).Inc()
}
