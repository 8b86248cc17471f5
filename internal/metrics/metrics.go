// Package metrics exposes Prometheus collectors for the execution engine.
//
// Primary series:
//   - trader_orders_total{mode,side}          - orders submitted to the broker
//   - trader_signals_total{result}            - inbound signal results (success|duplicate|error|rejected)
//   - trader_condor_outcomes_total{outcome}   - multi-leg attempts by terminal outcome
//   - trader_reconciliation_runs_total{op}    - reconciliation passes (sync|close|hydrate)
//   - trader_journal_open_positions           - OPEN rows currently in the journal (gauge)
//   - trader_protection_stops_total{kind}     - protective stops placed (safety_net|ratchet)
//
// All collectors are registered against the default registry and served by the
// HTTP server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_orders_total",
			Help: "Orders submitted to the broker",
		},
		[]string{"mode", "side"},
	)

	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_signals_total",
			Help: "Inbound signals by processing result",
		},
		[]string{"result"},
	)

	CondorOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_condor_outcomes_total",
			Help: "Multi-leg execution attempts by terminal outcome",
		},
		[]string{"outcome"},
	)

	ReconciliationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_reconciliation_runs_total",
			Help: "Reconciliation passes by operation",
		},
		[]string{"op"},
	)

	JournalOpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "trader_journal_open_positions",
			Help: "OPEN rows currently in the trade journal",
		},
	)

	ProtectionStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trader_protection_stops_total",
			Help: "Protective stop orders placed",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		Orders,
		Signals,
		CondorOutcomes,
		ReconciliationRuns,
		JournalOpenPositions,
		ProtectionStops,
	)
}
