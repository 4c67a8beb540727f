// Package batchack implements the batch acknowledgement manager (C8):
// a per-queue deletion coalescer with size- and time-triggered flush,
// partial-failure reporting, and drain-on-shutdown (spec §4.5).
package batchack

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.sqslistener.dev/internal/broker"
	"go.sqslistener.dev/internal/common/logging"
	"go.sqslistener.dev/internal/common/metrics"
)

// MaxBatchSize is SQS's hard limit on entries per DeleteMessageBatch
// call; Manager clamps MaxSize to this even if a caller asks for more.
const MaxBatchSize = 10

type entry struct {
	messageID     string
	receiptHandle string
}

// Manager coalesces Acknowledge calls into batch-delete requests, one
// pending list per queue URL. It is safe for concurrent use by many
// message tasks.
type Manager struct {
	client broker.Client
	logger logging.Logger

	maxSize       int
	flushInterval time.Duration

	mu      sync.Mutex
	pending map[string][]entry
	timer   *time.Timer

	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// NewManager builds a Manager. maxSize is clamped to [1, MaxBatchSize];
// flushInterval is clamped to >= 0 (spec §6 boundary behavior).
func NewManager(client broker.Client, logger logging.Logger, maxSize int, flushInterval time.Duration) *Manager {
	if maxSize < 1 {
		maxSize = 1
	}
	if maxSize > MaxBatchSize {
		maxSize = MaxBatchSize
	}
	if flushInterval < 0 {
		flushInterval = 0
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	return &Manager{
		client:        client,
		logger:        logger,
		maxSize:       maxSize,
		flushInterval: flushInterval,
		pending:       make(map[string][]entry),
		bgCtx:         bgCtx,
		bgCancel:      cancel,
	}
}

// Acknowledge enqueues (messageID, receiptHandle) for eventual deletion
// from queueURL. If the queue's pending list reaches maxSize, the
// oldest maxSize entries are flushed synchronously on this call;
// otherwise a flush timer is armed if one isn't already scheduled.
func (m *Manager) Acknowledge(ctx context.Context, messageID, receiptHandle, queueURL string) {
	m.mu.Lock()
	list := append(m.pending[queueURL], entry{messageID: messageID, receiptHandle: receiptHandle})

	var batch []entry
	if len(list) >= m.maxSize {
		batch = append(batch, list[:m.maxSize]...)
		list = list[m.maxSize:]
	}
	if len(list) == 0 {
		delete(m.pending, queueURL)
	} else {
		m.pending[queueURL] = list
	}
	if batch == nil {
		m.scheduleFlushLocked()
	}
	m.updatePendingGaugeLocked()
	m.mu.Unlock()

	if batch != nil {
		m.flushBatch(ctx, queueURL, batch)
	}
}

// PendingCount returns the total number of messages buffered across
// all queues.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingCountLocked()
}

func (m *Manager) pendingCountLocked() int {
	n := 0
	for _, list := range m.pending {
		n += len(list)
	}
	return n
}

func (m *Manager) updatePendingGaugeLocked() {
	metrics.PendingAcks.Set(float64(m.pendingCountLocked()))
}

// scheduleFlushLocked arms the single outstanding flush timer if none
// is scheduled yet. Must be called with m.mu held.
func (m *Manager) scheduleFlushLocked() {
	if m.timer != nil {
		return
	}
	m.timer = time.AfterFunc(m.flushInterval, m.onTimerFire)
}

// onTimerFire flushes every non-empty queue once, in a deterministic
// (sorted) order, then clears the timer handle (spec §4.5: "on fire,
// flush every non-empty queue... clear the timer handle").
func (m *Manager) onTimerFire() {
	m.mu.Lock()
	m.timer = nil
	queues := m.sortedQueuesLocked()
	m.mu.Unlock()

	for _, q := range queues {
		m.flushQueue(m.bgCtx, q)
	}
}

func (m *Manager) sortedQueuesLocked() []string {
	queues := make([]string, 0, len(m.pending))
	for q := range m.pending {
		queues = append(queues, q)
	}
	sort.Strings(queues)
	return queues
}

// flushQueue flushes up to maxSize of the oldest pending entries for a
// single queue.
func (m *Manager) flushQueue(ctx context.Context, queueURL string) {
	m.mu.Lock()
	list, ok := m.pending[queueURL]
	if !ok || len(list) == 0 {
		m.mu.Unlock()
		return
	}
	n := m.maxSize
	if n > len(list) {
		n = len(list)
	}
	batch := append([]entry(nil), list[:n]...)
	remaining := list[n:]
	if len(remaining) == 0 {
		delete(m.pending, queueURL)
	} else {
		m.pending[queueURL] = remaining
	}
	m.updatePendingGaugeLocked()
	m.mu.Unlock()

	m.flushBatch(ctx, queueURL, batch)
}

// flushBatch issues one DeleteMessageBatch call for batch. A
// whole-call failure re-prepends batch to the pending list so a
// future flush retries the same entries in their original order; a
// partial per-entry failure is logged but not retried - the source
// treats per-entry failures as terminal (spec §4.5, §9 open question).
func (m *Manager) flushBatch(ctx context.Context, queueURL string, batch []entry) {
	if len(batch) == 0 {
		return
	}

	entries := make([]broker.DeleteBatchEntry, len(batch))
	for i, e := range batch {
		entries[i] = broker.DeleteBatchEntry{ID: e.messageID, ReceiptHandle: e.receiptHandle}
	}

	result, err := m.client.DeleteBatch(ctx, queueURL, entries)
	if err != nil {
		metrics.BatchDeletesTotal.WithLabelValues("error").Inc()
		m.logger.Error().Err(err).Str("queueUrl", queueURL).Int("batchSize", len(batch)).
			Msg("batch delete failed, re-queuing entries for a future flush")
		m.reprepend(queueURL, batch)
		return
	}

	metrics.BatchDeleteSize.Observe(float64(len(batch)))

	if len(result.Failed) == 0 {
		metrics.BatchDeletesTotal.WithLabelValues("success").Inc()
		return
	}

	metrics.BatchDeletesTotal.WithLabelValues("partial_failure").Inc()
	for _, f := range result.Failed {
		m.logger.Error().Str("messageId", f.ID).Str("code", f.Code).Str("message", f.Message).
			Str("queueUrl", queueURL).Msg("batch delete failed for message, not retrying")
	}
}

// reprepend restores a failed batch to the front of queueURL's pending
// list, preserving its original order, and arms a retry timer.
func (m *Manager) reprepend(queueURL string, batch []entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[queueURL] = append(append([]entry(nil), batch...), m.pending[queueURL]...)
	m.scheduleFlushLocked()
	m.updatePendingGaugeLocked()
}

// Shutdown cancels the flush timer and flushes every queue until
// empty, then returns. The container calls this from Stop after
// draining in-flight message tasks (spec §4.5, §4.6).
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			break
		}
		queues := m.sortedQueuesLocked()
		m.mu.Unlock()

		for _, q := range queues {
			m.flushQueue(ctx, q)
		}
	}

	m.bgCancel()
}
