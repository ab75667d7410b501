package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pet_engine",
			Name:      "sync_cycles_total",
			Help:      "Sync cycles started.",
		},
	)

	entitiesPersistedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pet_engine",
			Name:      "sync_entities_persisted_total",
			Help:      "Dirty entities persisted successfully.",
		},
	)

	entitiesFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pet_engine",
			Name:      "sync_entities_failed_total",
			Help:      "Dirty entity persistence attempts that failed.",
		},
	)
)
