package listener

import (
	"time"

	"go.sqslistener.dev/internal/batchack"
	"go.sqslistener.dev/internal/convert"
)

// AckMode selects when a processed message is deleted (spec §4.8).
type AckMode int

const (
	// AckOnSuccess deletes only successfully-processed messages. Default.
	AckOnSuccess AckMode = iota
	// AckAlways deletes both successful and failed messages.
	AckAlways
	// AckManual never deletes automatically; the user handler or
	// converter must call ctx.Acknowledge() itself.
	AckManual
)

func (m AckMode) String() string {
	switch m {
	case AckAlways:
		return "ALWAYS"
	case AckManual:
		return "MANUAL"
	default:
		return "ON_SUCCESS"
	}
}

// BatchAckOptions configures the batch acknowledgement manager.
// MaxSize is clamped to [1, batchack.MaxBatchSize]; FlushInterval is
// clamped to >= 0 (spec §6 boundary behavior).
type BatchAckOptions struct {
	MaxSize       int
	FlushInterval time.Duration
}

// DefaultBatchAckOptions matches spec §6's enumerated defaults
// (maxSize=10, flushIntervalMs=100).
func DefaultBatchAckOptions() BatchAckOptions {
	return BatchAckOptions{MaxSize: batchack.MaxBatchSize, FlushInterval: 100 * time.Millisecond}
}

// Config is the container's frozen-after-Configure settings (spec §3,
// §6). A container starts from DefaultConfig and Configure edits a copy
// of its current settings; a zero Config is not the default, and zero
// fields are not replaced with defaults.
type Config struct {
	// QueueName is a queue name or a URL. References already starting
	// with http:// or https:// bypass ResolveQueueURL.
	QueueName string

	PollTimeoutSeconds        int32
	VisibilityTimeoutSeconds  int32
	MaxConcurrentMessages     int
	MaxMessagesPerPoll        int32 // not clamped by the library (spec §9 open question)
	AutoStartup               bool
	AckMode                   AckMode
	PollingErrorBackoffSeconds int

	// Converter overrides the default JSON-into-map converter. Set
	// this to convert.NewJSONConverter[T](...) for typed payloads.
	Converter convert.Converter

	EnableBatchAcknowledgement bool
	BatchAcknowledgement       BatchAckOptions

	// ID identifies this container in logs and metrics. Defaults to a
	// generated uuid if left empty at Start.
	ID string

	// OnPollResult, if set, is called after every Receive attempt with
	// whether it succeeded - wiring for an external readiness probe
	// (internal/common/health) without the container importing it.
	OnPollResult func(ok bool)
}

// DefaultConfig returns the enumerated defaults from spec §6.
func DefaultConfig() Config {
	return Config{
		PollTimeoutSeconds:         20,
		VisibilityTimeoutSeconds:   30,
		MaxConcurrentMessages:      10,
		MaxMessagesPerPoll:         10,
		AutoStartup:                true,
		AckMode:                    AckOnSuccess,
		PollingErrorBackoffSeconds: 5,
		BatchAcknowledgement:       DefaultBatchAckOptions(),
	}
}

func (c *Config) clampBatchAckOptions() {
	if c.BatchAcknowledgement.MaxSize < 1 {
		c.BatchAcknowledgement.MaxSize = 1
	}
	if c.BatchAcknowledgement.MaxSize > batchack.MaxBatchSize {
		c.BatchAcknowledgement.MaxSize = batchack.MaxBatchSize
	}
	if c.BatchAcknowledgement.FlushInterval < 0 {
		c.BatchAcknowledgement.FlushInterval = 0
	}
}
