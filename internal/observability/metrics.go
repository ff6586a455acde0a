// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the aggregator. Components accept
// a nil *Metrics and skip recording when none is configured.
type Metrics struct {
	// Ingestion metrics
	SlotsProcessed     prometheus.Counter
	RowsIngested       prometheus.Counter
	BatchesAppended    prometheus.Counter
	GapSlotsBackfilled prometheus.Counter
	CurrentSlot        prometheus.Gauge

	// Fetch metrics
	FetchRetries prometheus.Counter
	DecodeSkips  prometheus.Counter

	// Query metrics
	QueriesServed prometheus.Counter
	QueryErrors   prometheus.Counter
}

// NewMetrics creates a Metrics instance registered on the default registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_tx_agg"
	}

	return &Metrics{
		SlotsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "slots_processed_total",
			Help:      "Total number of live slot notifications processed",
		}),
		RowsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "rows_ingested_total",
			Help:      "Total number of transaction rows appended to the store",
		}),
		BatchesAppended: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "batches_appended_total",
			Help:      "Total number of columnar batches appended to the store",
		}),
		GapSlotsBackfilled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "gap_slots_backfilled_total",
			Help:      "Total number of slots backfilled by init-gap reconciliation",
		}),
		CurrentSlot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "current_slot",
			Help:      "Highest slot successfully processed by the live pipeline",
		}),
		FetchRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Total number of block fetch retry attempts",
		}),
		DecodeSkips: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "decode_skips_total",
			Help:      "Total number of transactions dropped by the normalization rule",
		}),
		QueriesServed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "served_total",
			Help:      "Total number of SQL queries served",
		}),
		QueryErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "errors_total",
			Help:      "Total number of failed SQL queries",
		}),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
