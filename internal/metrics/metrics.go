// Package metrics exposes Prometheus instrumentation for the facilitator.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitator_verifications_total",
			Help: "Direct-payment verifications by outcome",
		},
		[]string{"outcome"},
	)

	GaslessTransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facilitator_gasless_transfers_total",
			Help: "Gas-less transfer attempts by outcome",
		},
		[]string{"outcome"},
	)

	ReplayHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "facilitator_replay_hits_total",
			Help: "Requests answered from the replay store without new chain work",
		},
	)

	DistributionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "facilitator_distributions_total",
			Help: "Successful reward distributions",
		},
	)

	PartialFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "facilitator_partial_failures_total",
			Help: "Payments captured whose distribution failed; requires operator follow-up",
		},
	)

	RecordPersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "facilitator_record_persist_failures_total",
			Help: "Replay-store writes that failed after a successful distribution",
		},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "facilitator_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// Register registers all facilitator metrics with the default registry.
func Register() {
	prometheus.MustRegister(
		VerificationsTotal,
		GaslessTransfersTotal,
		ReplayHitsTotal,
		DistributionsTotal,
		PartialFailuresTotal,
		RecordPersistFailures,
		RequestDuration,
	)
}
