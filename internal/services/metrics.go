package services

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values for listingsSeen.
const (
	outcomeNew       = "new"
	outcomeDuplicate = "duplicate"
	outcomeSkipped   = "skipped"
	outcomeError     = "error"
)

var (
	applicationsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autodaft_applications_recorded_total",
			Help: "Applications inserted into the ledger.",
		},
	)

	// listingsSeen counts every candidate consumed from the source by what
	// happened to it.
	listingsSeen = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autodaft_listings_seen_total",
			Help: "Candidate listings processed, by outcome.",
		},
		[]string{"outcome"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autodaft_notifications_total",
			Help: "Notification attempts, by result (ok|failed).",
		},
		[]string{"result"},
	)

	sourceErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autodaft_source_errors_total",
			Help: "Match cycles aborted because the listing source failed.",
		},
	)

	preferencesExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "autodaft_preferences_expired_total",
			Help: "Preferences removed by the expiry sweep.",
		},
	)
)

func init() {
	prometheus.MustRegister(applicationsRecorded, listingsSeen, notificationsSent, sourceErrors, preferencesExpired)
}
