package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.sqslistener.dev/internal/listener"
)

const sample = `
[profiles.orders]
queue_name = "orders"
max_concurrent_messages = 20
ack_mode = "ALWAYS"
enable_batch_acknowledgement = true
batch_ack_max_size = 5
batch_ack_flush_interval_millis = 250

[profiles.invoices]
queue_name = "invoices"
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queues.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	return path
}

func TestLoadFileAndApply(t *testing.T) {
	f, err := LoadFile(writeSample(t))
	require.NoError(t, err)

	profile, err := f.Profile("orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", profile.QueueName)
	assert.Equal(t, 20, profile.MaxConcurrentMessages)

	cfg := listener.DefaultConfig()
	require.NoError(t, profile.Apply(&cfg))

	assert.Equal(t, "orders", cfg.QueueName)
	assert.Equal(t, 20, cfg.MaxConcurrentMessages)
	assert.Equal(t, listener.AckAlways, cfg.AckMode)
	assert.True(t, cfg.EnableBatchAcknowledgement)
	assert.Equal(t, 5, cfg.BatchAcknowledgement.MaxSize)
	assert.Equal(t, 250*time.Millisecond, cfg.BatchAcknowledgement.FlushInterval)
}

func TestApplyLeavesUnsetFieldsAtDefault(t *testing.T) {
	f, err := LoadFile(writeSample(t))
	require.NoError(t, err)

	profile, err := f.Profile("invoices")
	require.NoError(t, err)

	cfg := listener.DefaultConfig()
	require.NoError(t, profile.Apply(&cfg))

	assert.Equal(t, "invoices", cfg.QueueName)
	assert.Equal(t, listener.DefaultConfig().MaxConcurrentMessages, cfg.MaxConcurrentMessages)
	assert.Equal(t, listener.AckOnSuccess, cfg.AckMode)
}

func TestProfileNotFound(t *testing.T) {
	f, err := LoadFile(writeSample(t))
	require.NoError(t, err)

	_, err = f.Profile("does-not-exist")
	assert.Error(t, err)
}

func TestUnknownAckModeRejected(t *testing.T) {
	p := QueueProfile{QueueName: "x", AckMode: "BOGUS"}
	cfg := listener.DefaultConfig()
	err := p.Apply(&cfg)
	assert.Error(t, err)
}

func TestLoadFileMissingPath(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
