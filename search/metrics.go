package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ==============================================================================
// Metrics
// ==============================================================================

var (
	nodesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilesolver_nodes_created_total",
		Help: "Nodes allocated for newly discovered states",
	})

	nodesReparented = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilesolver_nodes_reparented_total",
		Help: "Nodes moved to a cheaper parent before expansion",
	})

	// Labels: "expanded", "stale", "goal", "pruned"
	dequeues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilesolver_dequeues_total",
		Help: "Dequeued node indices by outcome",
	}, []string{"result"})

	childrenPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilesolver_children_pruned_total",
		Help: "Successors dropped for exceeding the frame budget",
	})

	childrenDeferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilesolver_children_deferred_total",
		Help: "Successors parked in the tip file for a later iteration",
	})

	cacheTrims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilesolver_cache_trims_total",
		Help: "Cache trim rendezvous completed",
	})

	cacheEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilesolver_cache_evicted_total",
		Help: "Records evicted from the cache by trims",
	})

	trimDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilesolver_cache_trim_duration_seconds",
		Help:    "Wall time of one exclusive trim, archive flush included",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10},
	})

	cacheResident = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilesolver_cache_resident",
		Help: "Records resident in the cache after the last trim",
	})

	currentFrame = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilesolver_frame",
		Help: "Open frame (breadth-first) or frame budget (depth-first)",
	})

	replaySteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilesolver_replay_steps",
		Help:    "Steps replayed to reconstruct one state",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100, 500},
	})
)
