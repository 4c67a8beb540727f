// Package config offers an optional TOML-file loader for queue
// profiles - several listener.Config values bundled under a name so a
// deployment can keep them out of code (spec §3). The core listener
// library never reads a file itself; only cmd/listener uses this.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"go.sqslistener.dev/internal/listener"
)

// QueueProfile mirrors the subset of listener.Config that's worth
// externalizing into a file: connection and polling knobs, not
// collaborators (converters, handlers) which remain Go code.
type QueueProfile struct {
	QueueName                   string `toml:"queue_name"`
	PollTimeoutSeconds          int32  `toml:"poll_timeout_seconds"`
	VisibilityTimeoutSeconds    int32  `toml:"visibility_timeout_seconds"`
	MaxConcurrentMessages       int    `toml:"max_concurrent_messages"`
	MaxMessagesPerPoll          int32  `toml:"max_messages_per_poll"`
	AutoStartup                 bool   `toml:"auto_startup"`
	AckMode                     string `toml:"ack_mode"` // ON_SUCCESS | ALWAYS | MANUAL
	PollingErrorBackoffSeconds  int    `toml:"polling_error_backoff_seconds"`
	EnableBatchAcknowledgement  bool   `toml:"enable_batch_acknowledgement"`
	BatchAckMaxSize             int    `toml:"batch_ack_max_size"`
	BatchAckFlushIntervalMillis int    `toml:"batch_ack_flush_interval_millis"`
}

// File is the top-level shape of a queue profile file: a table of named
// profiles, e.g.
//
//	[profiles.orders]
//	queue_name = "orders"
//	max_concurrent_messages = 20
type File struct {
	Profiles map[string]QueueProfile `toml:"profiles"`
}

// LoadFile parses a TOML queue-profile file at path.
func LoadFile(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &f, nil
}

// Profile looks up a named profile in a loaded file.
func (f *File) Profile(name string) (QueueProfile, error) {
	p, ok := f.Profiles[name]
	if !ok {
		return QueueProfile{}, fmt.Errorf("config: no queue profile named %q", name)
	}
	return p, nil
}

// Apply overlays the profile's fields onto a listener.Config, matching
// the teacher's Default*Config-then-override pattern.
func (p QueueProfile) Apply(cfg *listener.Config) error {
	cfg.QueueName = p.QueueName
	if p.PollTimeoutSeconds > 0 {
		cfg.PollTimeoutSeconds = p.PollTimeoutSeconds
	}
	if p.VisibilityTimeoutSeconds > 0 {
		cfg.VisibilityTimeoutSeconds = p.VisibilityTimeoutSeconds
	}
	if p.MaxConcurrentMessages > 0 {
		cfg.MaxConcurrentMessages = p.MaxConcurrentMessages
	}
	if p.MaxMessagesPerPoll > 0 {
		cfg.MaxMessagesPerPoll = p.MaxMessagesPerPoll
	}
	cfg.AutoStartup = p.AutoStartup
	if p.PollingErrorBackoffSeconds > 0 {
		cfg.PollingErrorBackoffSeconds = p.PollingErrorBackoffSeconds
	}

	mode, err := parseAckMode(p.AckMode)
	if err != nil {
		return err
	}
	cfg.AckMode = mode

	cfg.EnableBatchAcknowledgement = p.EnableBatchAcknowledgement
	if p.BatchAckMaxSize > 0 {
		cfg.BatchAcknowledgement.MaxSize = p.BatchAckMaxSize
	}
	if p.BatchAckFlushIntervalMillis > 0 {
		cfg.BatchAcknowledgement.FlushInterval = time.Duration(p.BatchAckFlushIntervalMillis) * time.Millisecond
	}
	return nil
}

func parseAckMode(s string) (listener.AckMode, error) {
	switch s {
	case "", "ON_SUCCESS":
		return listener.AckOnSuccess, nil
	case "ALWAYS":
		return listener.AckAlways, nil
	case "MANUAL":
		return listener.AckManual, nil
	default:
		return 0, fmt.Errorf("config: unknown ack_mode %q", s)
	}
}
