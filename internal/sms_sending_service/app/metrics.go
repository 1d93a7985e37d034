package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSentCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_sending",
			Name:      "messages_total",
			Help:      "Total messages handed to transports, by outcome.",
		},
		[]string{"provider", "transport", "status"}, // status: sent, failed, vetoed
	)

	sendDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sms_sending",
			Name:      "transport_send_duration_seconds",
			Help:      "Duration of transport sends.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "transport"},
	)

	failedRecipientsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_sending",
			Name:      "failed_recipients_total",
			Help:      "Total recipients reported as failed.",
		},
		[]string{"provider"},
	)

	jobsQueuedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_sending",
			Name:      "jobs_queued_total",
			Help:      "Total queued-send jobs pushed.",
		},
		[]string{"kind", "delayed"},
	)

	jobsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sms_sending",
			Name:      "jobs_processed_total",
			Help:      "Total queued-send jobs processed by workers.",
		},
		[]string{"kind", "status"}, // status: success, retry, failed, undecodable
	)

	jobProcessingDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sms_sending",
			Name:      "job_processing_duration_seconds",
			Help:      "Duration of queued-send job processing.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)
