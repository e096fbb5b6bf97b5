package provider

import "github.com/prometheus/client_golang/prometheus"

// metrics is ambient observability layered on top of, and never
// load-bearing for, internal/events' broadcast bus (SPEC_FULL.md's
// DOMAIN STACK section). Grounded on the shape of
// luxfi-consensus/protocol/nova/metrics.go: a struct of prometheus
// collectors built and registered together in a constructor.
type metrics struct {
	connectionsAccepted prometheus.Counter
	connectionsActive   prometheus.Gauge
	streamsActive       prometheus.Gauge
	bytesServed         prometheus.Counter
	transfersCompleted  prometheus.Counter
	transfersAborted    prometheus.Counter
	transferDuration    prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blobtransfer_provider_connections_accepted_total",
			Help: "Total transport connections accepted.",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blobtransfer_provider_connections_active",
			Help: "Transport connections currently open.",
		}),
		streamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blobtransfer_provider_streams_active",
			Help: "Bidirectional streams currently being served.",
		}),
		bytesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blobtransfer_provider_bytes_served_total",
			Help: "Total combined-encoding bytes written to getters.",
		}),
		transfersCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blobtransfer_provider_transfers_completed_total",
			Help: "Total transfers that completed successfully.",
		}),
		transfersAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blobtransfer_provider_transfers_aborted_total",
			Help: "Total transfers aborted by an error.",
		}),
		transferDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blobtransfer_provider_transfer_duration_seconds",
			Help:    "Wall-clock duration of a single request's transfer.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	for _, c := range []prometheus.Collector{
		m.connectionsAccepted, m.connectionsActive, m.streamsActive,
		m.bytesServed, m.transfersCompleted, m.transfersAborted, m.transferDuration,
	} {
		_ = reg.Register(c)
	}
	return m
}
