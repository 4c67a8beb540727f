package batchack

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.sqslistener.dev/internal/broker"
	"go.sqslistener.dev/internal/broker/brokertest"
	"go.sqslistener.dev/internal/common/logging"
)

const queueURL = "https://sqs.example.com/123/orders"

func TestSizeTriggeredFlush(t *testing.T) {
	fake := brokertest.New()
	m := NewManager(fake, logging.Noop(), 10, time.Hour)

	for i := 0; i < 9; i++ {
		m.Acknowledge(context.Background(), id(i), "rh", queueURL)
	}
	assert.Equal(t, 0, fake.DeleteBatchCount(), "no flush before reaching maxSize")
	assert.Equal(t, 9, m.PendingCount())

	m.Acknowledge(context.Background(), id(9), "rh", queueURL)
	assert.Equal(t, 1, fake.DeleteBatchCount(), "10th enqueue should size-trigger a flush")
	assert.Equal(t, 0, m.PendingCount())
}

// Scenario B: 25 successful messages, maxSize=10, flushIntervalMs=100.
func TestScenarioB_BatchedAckOf25(t *testing.T) {
	fake := brokertest.New()
	m := NewManager(fake, logging.Noop(), 10, 100*time.Millisecond)

	for i := 0; i < 25; i++ {
		m.Acknowledge(context.Background(), id(i), "rh", queueURL)
	}
	assert.Equal(t, 2, fake.DeleteBatchCount(), "two size-triggered flushes of 10 each")
	assert.Equal(t, 5, m.PendingCount())

	m.Shutdown(context.Background())
	assert.Equal(t, 3, fake.DeleteBatchCount(), "shutdown flushes the remaining 5")
	assert.Equal(t, 0, m.PendingCount())

	for _, call := range fake.DeleteBatches {
		assert.LessOrEqual(t, len(call.Entries), 10)
	}
}

// Scenario C: partial batch failure - failed entry is not re-enqueued.
func TestScenarioC_PartialBatchFailure(t *testing.T) {
	fake := brokertest.New()
	fake.DeleteBatchResult = broker.DeleteBatchResult{
		Failed: []broker.BatchFailure{{ID: "msg-5", Code: "ReceiptHandleIsInvalid", Message: "expired"}},
	}
	m := NewManager(fake, logging.Noop(), 10, time.Hour)

	for i := 0; i < 10; i++ {
		m.Acknowledge(context.Background(), id(i), "rh", queueURL)
	}

	require.Equal(t, 1, fake.DeleteBatchCount())
	assert.Equal(t, 0, m.PendingCount(), "partial failures are terminal, not re-enqueued")
}

// Scenario D: whole-call failure - batch is re-prepended in original order.
func TestScenarioD_WholeCallFailureReprepends(t *testing.T) {
	fake := brokertest.New()
	fake.DeleteBatchOutcomes = []brokertest.DeleteBatchOutcome{
		{Err: errors.New("network error")},
	}
	m := NewManager(fake, logging.Noop(), 10, time.Hour)

	for i := 0; i < 10; i++ {
		m.Acknowledge(context.Background(), id(i), "rh", queueURL)
	}

	require.Equal(t, 1, fake.DeleteBatchCount())
	require.Equal(t, 10, m.PendingCount(), "whole-call failure restores all 10 entries")

	// Next flush (triggered by shutdown here) retries with the same
	// entries, in original order.
	m.Shutdown(context.Background())
	require.Equal(t, 2, fake.DeleteBatchCount())
	assert.Equal(t, 0, m.PendingCount())

	retried := fake.DeleteBatches[1].Entries
	require.Len(t, retried, 10)
	for i, e := range retried {
		assert.Equal(t, id(i), e.ID)
	}
}

func TestTimeTriggeredFlush(t *testing.T) {
	fake := brokertest.New()
	m := NewManager(fake, logging.Noop(), 10, 30*time.Millisecond)

	m.Acknowledge(context.Background(), "msg-1", "rh", queueURL)
	m.Acknowledge(context.Background(), "msg-2", "rh-other-queue", "https://sqs.example.com/123/other")

	assert.Equal(t, 0, fake.DeleteBatchCount())

	require.Eventually(t, func() bool {
		return fake.DeleteBatchCount() == 2
	}, time.Second, 5*time.Millisecond, "timer should flush both non-empty queues")
	assert.Equal(t, 0, m.PendingCount())
}

func TestOnlyOneTimerOutstanding(t *testing.T) {
	fake := brokertest.New()
	m := NewManager(fake, logging.Noop(), 10, 50*time.Millisecond)

	for i := 0; i < 5; i++ {
		m.Acknowledge(context.Background(), id(i), "rh", queueURL)
		m.mu.Lock()
		timerSet := m.timer != nil
		m.mu.Unlock()
		assert.True(t, timerSet)
	}

	require.Eventually(t, func() bool {
		return fake.DeleteBatchCount() == 1
	}, time.Second, 5*time.Millisecond)
}

// After Shutdown returns, PendingCount is 0 and no further broker calls
// are made (testable property 5).
func TestShutdownDrainsAndStopsCalling(t *testing.T) {
	fake := brokertest.New()
	m := NewManager(fake, logging.Noop(), 10, time.Hour)

	for i := 0; i < 3; i++ {
		m.Acknowledge(context.Background(), id(i), "rh", queueURL)
	}
	m.Shutdown(context.Background())

	assert.Equal(t, 0, m.PendingCount())
	calls := fake.DeleteBatchCount()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, fake.DeleteBatchCount(), "no further broker calls after shutdown")
}

func TestMaxSizeClampedToTen(t *testing.T) {
	fake := brokertest.New()
	m := NewManager(fake, logging.Noop(), 99, -5*time.Second)
	assert.Equal(t, MaxBatchSize, m.maxSize)
	assert.Equal(t, time.Duration(0), m.flushInterval)
}

func id(i int) string {
	return fmt.Sprintf("msg-%d", i)
}
