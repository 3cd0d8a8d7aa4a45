package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatches partitioned by final status (success, error, no_contact)
	NotificationDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_notification_dispatch_total",
			Help: "Total number of referral notification dispatches by outcome",
		},
		[]string{"status"},
	)

	// Dispatches where every configured channel failed
	NotificationExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_notification_exhausted_total",
			Help: "Number of notifications for which every delivery channel failed",
		},
	)

	// Per channel attempt latency
	ChannelAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "referral_channel_attempt_duration_seconds",
			Help:    "Latency of single delivery channel attempts",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel", "success"},
	)

	// Referral store mutations by operation and result
	ReferralMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_mutations_total",
			Help: "Referral event mutations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// Contact resolutions by the source that produced the number
	ContactResolutionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_contact_resolution_total",
			Help: "Contact resolutions partitioned by source",
		},
		[]string{"source"},
	)
)

// ObserveAttempts records the latency of every attempt of a dispatch
func ObserveAttempts(attempts []ChannelAttempt) {
	for _, a := range attempts {
		success := "false"
		if a.Success {
			success = "true"
		}
		ChannelAttemptDuration.WithLabelValues(a.Channel, success).Observe(float64(a.DurationMs) / 1000)
	}
}
