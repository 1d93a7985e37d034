package jobqueue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsPublishedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_sending",
			Subsystem: "jobqueue",
			Name:      "published_total",
			Help:      "Total jobs published per connection.",
		},
		[]string{"connection", "status"},
	)
	jobsScheduledCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_sending",
			Subsystem: "jobqueue",
			Name:      "scheduled_total",
			Help:      "Total delayed jobs stored for later publishing.",
		},
		[]string{"status"},
	)
	pollerJobsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_sending",
			Subsystem: "scheduler",
			Name:      "jobs_processed_total",
			Help:      "Total delayed jobs handled by the poller.",
		},
		[]string{"status"}, // completed, retry, failed, error_update_status
	)
	pollerDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sms_sending",
			Subsystem: "scheduler",
			Name:      "poll_duration_seconds",
			Help:      "Duration of one poll cycle.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
