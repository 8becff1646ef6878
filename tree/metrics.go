package tree

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// structuralOps counts create, reparent, remove and rebuild calls by result.
	structuralOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpath_structural_ops_total",
		Help: "Structural tree mutations by operation and result",
	}, []string{"op", "result"})

	// cascadeRewrites counts descendant path rewrites issued by reparents.
	cascadeRewrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpath_cascade_rewrites_total",
		Help: "Descendant path rewrites by result",
	}, []string{"result"})

	subtreeDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpath_subtree_deleted_total",
		Help: "Descendant documents deleted by subtree removal",
	})

	rebuildNodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mpath_rebuild_nodes_total",
		Help: "Documents whose path was recomputed by a rebuild",
	})

	cascadeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mpath_cascade_duration_seconds",
		Help:    "Duration of reparent cascades and rebuilds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	}, []string{"op"})
)

func observeOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	structuralOps.WithLabelValues(op, result).Inc()
}
