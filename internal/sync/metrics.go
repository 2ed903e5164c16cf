package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexedHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lbry_sync_indexed_height",
		Help: "Highest block height committed by the synchronizer",
	})

	chainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lbry_sync_chain_height",
		Help: "Best height reported by the chain collaborator",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lbry_sync_advance_cycle_seconds",
		Help:    "Duration of one advance() cycle",
		Buckets: prometheus.DefBuckets,
	})

	phaseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lbry_sync_phase_errors_total",
		Help: "Advance-cycle phase failures by phase name",
	}, []string{"phase"})
)
