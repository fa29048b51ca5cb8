package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "care_events_total",
			Help: "Engagement events by processing stage and action",
		},
		[]string{"stage", "action"}, // processed|invalid|duplicate|unknown , daily_checkin|...
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "care_notifications_total",
			Help: "Notification delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"}, // push|sms|feed|mock , sent|failed|skipped
	)

	BadgesAwardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "care_badges_awarded_total",
			Help: "Badges newly awarded by the engagement consumer",
		},
	)

	PublishFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "care_publish_failures_total",
			Help: "Derived-event publish failures by topic (state kept, gap observable)",
		},
		[]string{"topic"},
	)

	PendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "care_pending_requests",
			Help: "Correlated requests currently awaiting a reply",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsTotal,
		NotificationsTotal,
		BadgesAwardedTotal,
		PublishFailuresTotal,
		PendingRequests,
	)
}
