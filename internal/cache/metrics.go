package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueDrainedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pet_engine",
			Name:      "cache_queue_drained_total",
			Help:      "Queued store operations persisted successfully.",
		},
	)

	queueDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pet_engine",
			Name:      "cache_queue_dropped_total",
			Help:      "Queued store operations evicted on overflow.",
		},
	)
)
