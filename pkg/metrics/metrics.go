package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DraftTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_draft_transitions_total",
		Help: "Committed draft status transitions.",
	}, []string{"from", "to"})

	DraftConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portfolio_draft_conflicts_total",
		Help: "Draft writes rejected because of a stale version or a lost creation race.",
	}, []string{"operation"})

	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portfolio_notification_failures_total",
		Help: "Best-effort notifications that could not be delivered.",
	})
)

func ObserveTransition(from, to string) {
	DraftTransitions.WithLabelValues(from, to).Inc()
}

func ObserveConflict(operation string) {
	DraftConflicts.WithLabelValues(operation).Inc()
}
