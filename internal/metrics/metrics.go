package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "anchorsync"

var (
	// ReconcileOps counts entity operations applied by reconciliation.
	// Labels: op (create, update, remove)
	ReconcileOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scene",
		Name:      "reconcile_ops_total",
		Help:      "Entity operations applied while reconciling snapshots",
	}, []string{"op"})

	// ReconcileSkipped counts snapshots held back by a pending placement
	ReconcileSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scene",
		Name:      "reconcile_skipped_total",
		Help:      "Snapshots deferred because a placement was pending",
	})

	// PlacementOutcomes counts placement attempts.
	// Labels: outcome (placed, missed, no_selection, unsupported)
	PlacementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "placement",
		Name:      "outcomes_total",
		Help:      "Placement attempts by outcome",
	}, []string{"outcome"})

	// Snapshots counts task snapshots received from the repository push channel
	Snapshots = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "repository",
		Name:      "snapshots_total",
		Help:      "Task snapshots delivered by the repository",
	})

	// WriteFailures counts repository writes that failed after being issued.
	// Labels: op (create, update, delete)
	WriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "repository",
		Name:      "write_failures_total",
		Help:      "Repository writes that failed",
	}, []string{"op"})

	// ChatRequests counts chat completions.
	// Labels: provider, status (ok, error)
	ChatRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "requests_total",
		Help:      "Chat completion requests",
	}, []string{"provider", "status"})
)

// ObserveReconcile records one reconciliation's diff sizes
func ObserveReconcile(created, updated, removed int) {
	if created > 0 {
		ReconcileOps.WithLabelValues("create").Add(float64(created))
	}
	if updated > 0 {
		ReconcileOps.WithLabelValues("update").Add(float64(updated))
	}
	if removed > 0 {
		ReconcileOps.WithLabelValues("remove").Add(float64(removed))
	}
}
