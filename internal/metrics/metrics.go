package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OutboxEventsTotal counts outbox row transitions.
	OutboxEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsa_outbox_events_total",
			Help: "Outbox events by target and stage",
		},
		[]string{"target", "stage"}, // enqueued|done|retry|dead|requeued
	)

	OutboxRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wsa_outbox_rows",
			Help: "Outbox rows by target and status, sampled on status reads",
		},
		[]string{"target", "status"},
	)

	ExternalRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wsa_external_request_seconds",
			Help:    "Latency of calls to external sync targets",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target", "op", "outcome"}, // outcome: ok|rejected|error
	)

	InlineSyncTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wsa_inline_sync_total",
			Help: "Best-effort inline sync attempts right after enqueue",
		},
		[]string{"target", "outcome"},
	)
)

var once sync.Once

// MustRegister registers all collectors once; serve and worker may both call it.
func MustRegister(r prometheus.Registerer) {
	once.Do(func() {
		r.MustRegister(
			OutboxEventsTotal,
			OutboxRows,
			ExternalRequestSeconds,
			InlineSyncTotal,
		)
	})
}
