// Package metrics holds the Prometheus instruments shared across the
// indexing pipeline. All instruments are registered at init.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	EventsStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pifp_indexer_events_stored_total",
		Help: "Events durably written to the store",
	})
	EventsDuplicate = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pifp_indexer_events_duplicate_total",
		Help: "Events skipped because they were already stored",
	})
	EventsMalformed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pifp_indexer_events_malformed_total",
		Help: "Raw payloads rejected by the decoder",
	})
	FetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pifp_indexer_fetch_errors_total",
		Help: "Transient fetch failures that triggered backoff",
	})
	LastLedger = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pifp_indexer_last_ledger",
		Help: "Highest ledger whose events are fully persisted",
	})
	ChainHead = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pifp_indexer_chain_head_ledger",
		Help: "Latest ledger reported by the RPC",
	})
)

func init() {
	prometheus.MustRegister(
		EventsStored,
		EventsDuplicate,
		EventsMalformed,
		FetchErrors,
		LastLedger,
		ChainHead,
	)
}
