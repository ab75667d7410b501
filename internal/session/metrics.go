package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	patchesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pet_engine",
			Name:      "session_patches_dropped_total",
			Help:      "Queued session patches evicted on overflow.",
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pet_engine",
			Name:      "session_queue_depth",
			Help:      "Current session change queue depth.",
		},
	)
)
