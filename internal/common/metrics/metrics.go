// Package metrics exposes the listener container's Prometheus gauges and
// counters, following the same promauto.NewCounterVec/NewGaugeVec shape
// the teacher uses throughout its dispatch-platform metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesReceived tracks messages pulled off the queue per poll.
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqslistener",
			Subsystem: "container",
			Name:      "messages_received_total",
			Help:      "Total messages returned by a receive call",
		},
		[]string{"container_id"},
	)

	// MessagesProcessed tracks the outcome of each message task.
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqslistener",
			Subsystem: "container",
			Name:      "messages_processed_total",
			Help:      "Total messages processed by the listener container",
		},
		[]string{"container_id", "result"}, // result: success, handler_error, conversion_error, validation_handled
	)

	// ProcessingDuration tracks how long a message task (convert + user
	// handler) takes to run.
	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sqslistener",
			Subsystem: "container",
			Name:      "processing_duration_seconds",
			Help:      "Time to convert and handle one message",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"container_id"},
	)

	// InFlightMessages tracks the number of message tasks currently
	// running, from task start (before the permit is acquired, so
	// tasks waiting for a permit count) until the task returns.
	InFlightMessages = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sqslistener",
			Subsystem: "container",
			Name:      "in_flight_messages",
			Help:      "Number of message tasks currently being processed",
		},
		[]string{"container_id"},
	)

	// AvailablePermits tracks the concurrency permit's free slots.
	AvailablePermits = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sqslistener",
			Subsystem: "container",
			Name:      "available_permits",
			Help:      "Available concurrency permits in the listener container",
		},
		[]string{"container_id"},
	)

	// PollErrors tracks receive errors, excluding clean shutdown
	// cancellation.
	PollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqslistener",
			Subsystem: "container",
			Name:      "poll_errors_total",
			Help:      "Total receive errors encountered by the poll loop",
		},
		[]string{"container_id"},
	)

	// BatchDeletesTotal tracks batch-delete calls issued by the
	// acknowledgement manager, by outcome.
	BatchDeletesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqslistener",
			Subsystem: "batchack",
			Name:      "batch_deletes_total",
			Help:      "Total batch-delete calls issued, by outcome",
		},
		[]string{"outcome"}, // outcome: success, partial_failure, error
	)

	// BatchDeleteSize tracks how many entries each batch-delete call
	// carried.
	BatchDeleteSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sqslistener",
			Subsystem: "batchack",
			Name:      "batch_delete_size",
			Help:      "Number of entries in each batch-delete call",
			Buckets:   []float64{1, 2, 5, 10},
		},
	)

	// PendingAcks tracks the total number of messages waiting to be
	// flushed across all queues.
	PendingAcks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sqslistener",
			Subsystem: "batchack",
			Name:      "pending_acks",
			Help:      "Total pending acknowledgements buffered across all queues",
		},
	)

	// DirectDeletes tracks single-message deletes issued outside the
	// batch acknowledgement manager.
	DirectDeletes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sqslistener",
			Subsystem: "container",
			Name:      "direct_deletes_total",
			Help:      "Total single-message delete calls, by outcome",
		},
		[]string{"outcome"}, // outcome: success, error
	)
)
