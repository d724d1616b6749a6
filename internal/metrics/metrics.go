package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "nesttask"
)

var (
	batchDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

	// Push batch metrics
	PushBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_batches_total",
		Help:      "Count of push delivery batches.",
	}, []string{"status"})

	PushBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "push_batch_duration_seconds",
		Help:      "Time taken to deliver a push batch.",
		Buckets:   batchDurationBuckets,
	})

	PushSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_sent_total",
		Help:      "Count of device sends accepted by the gateway.",
	})

	PushFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_failed_total",
		Help:      "Count of device sends rejected by the gateway or the transport.",
	})

	PushInvalidTokensTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_invalid_tokens_total",
		Help:      "Count of device registrations the gateway reported as permanently invalid.",
	})

	PushAudienceSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "push_audience_size",
		Help:      "Resolved audience size per batch.",
		Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	// Reminder worker metrics
	ReminderRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminder_runs_total",
		Help:      "Count of deadline reminder scans.",
	}, []string{"status"})
)
