// Package metrics exposes the service's Prometheus counters. The collectors are
// registered on the default registry and served by promhttp on /api/metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "requests",
		Name:      "transitions_total",
		Help:      "Committed request status transitions broken down by source, from and to status.",
	}, []string{"source", "from", "to"})

	inviteResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "invites",
		Name:      "resolutions_total",
		Help:      "Collaboration invites reaching a terminal state, by target kind and status.",
	}, []string{"kind", "status"})

	notificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "notifications",
		Name:      "created_total",
		Help:      "Notifications persisted, by type.",
	}, []string{"type"})

	notificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "notifications",
		Name:      "failures_total",
		Help:      "Notifications that could not be persisted or delivered, by stage.",
	}, []string{"stage"})

	writeConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "write",
		Name:      "conflicts_total",
		Help:      "Compare-and-swap writes that lost against a concurrent writer, by entity.",
	}, []string{"entity"})

	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Cache lookups broken down by result (hit, stale, miss).",
	}, []string{"result"})
)

// RecordTransition counts a status change. source is "direct" or "task".
func RecordTransition(source, from, to string) {
	requestTransitions.WithLabelValues(source, from, to).Inc()
}

func RecordInviteResolution(kind, status string) {
	inviteResolutions.WithLabelValues(kind, status).Inc()
}

func RecordNotificationCreated(notificationType string) {
	notificationsCreated.WithLabelValues(notificationType).Inc()
}

// RecordNotificationFailure counts a swallowed notification error. stage is
// "persist", "deliver" or "mail".
func RecordNotificationFailure(stage string) {
	if stage == "" {
		stage = "other"
	}
	notificationFailures.WithLabelValues(stage).Inc()
}

func RecordWriteConflict(entity string) {
	if entity == "" {
		entity = "other"
	}
	writeConflicts.WithLabelValues(entity).Inc()
}

func RecordCacheRequest(result string) {
	cacheRequests.WithLabelValues(result).Inc()
}
