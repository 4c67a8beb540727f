// Package brokertest provides an in-memory broker.Client fake for unit
// tests of the listener container, batch ack manager, and converters -
// mirroring the teacher's SQSClientAPI fake-interface testing pattern
// (internal/queue/sqs/client.go) without requiring a network or
// LocalStack.
package brokertest

import (
	"context"
	"fmt"
	"sync"

	"go.sqslistener.dev/internal/broker"
)

// Fake is a scriptable broker.Client.
type Fake struct {
	mu sync.Mutex

	// Batches is consumed one at a time by Receive; once exhausted,
	// Receive blocks until ctx is cancelled (simulating an empty
	// long-poll that times out with nothing to return, without
	// actually sleeping in tests).
	Batches [][]broker.Message

	QueueURLs map[string]string // name -> resolved URL

	Deletes      []DeleteCall
	DeleteBatches []DeleteBatchCall
	DeleteErr    error
	DeleteBatchResult broker.DeleteBatchResult
	DeleteBatchErr    error
	ResolveErr        error
	ChangeVisibilityCalls []ChangeVisibilityCall
	ChangeVisibilityErr   error

	// DeleteBatchOutcomes, if set, is consumed one outcome per
	// DeleteBatch call (in order) before falling back to
	// DeleteBatchResult/DeleteBatchErr - lets a test script "the Nth
	// batch call fails, the rest succeed".
	DeleteBatchOutcomes []DeleteBatchOutcome

	// DeleteOutcomes, if set, is consumed one error per Delete call (in
	// order, nil meaning success) before falling back to DeleteErr -
	// lets a test script "the first delete for this message fails, a
	// later one succeeds".
	DeleteOutcomes []error

	receiveIdx     int
	deleteIdx      int
	deleteBatchIdx int
}

// DeleteBatchOutcome scripts the result of a single DeleteBatch call.
type DeleteBatchOutcome struct {
	Result broker.DeleteBatchResult
	Err    error
}

type DeleteCall struct {
	QueueURL      string
	ReceiptHandle string
}

type DeleteBatchCall struct {
	QueueURL string
	Entries  []broker.DeleteBatchEntry
}

func New() *Fake {
	return &Fake{QueueURLs: map[string]string{}}
}

func (f *Fake) ResolveQueueURL(ctx context.Context, name string) (string, error) {
	if f.ResolveErr != nil {
		return "", f.ResolveErr
	}
	if url, ok := f.QueueURLs[name]; ok {
		return url, nil
	}
	return "", fmt.Errorf("brokertest: no URL configured for queue %q", name)
}

func (f *Fake) Receive(ctx context.Context, in broker.ReceiveInput) ([]broker.Message, error) {
	f.mu.Lock()
	if f.receiveIdx < len(f.Batches) {
		batch := f.Batches[f.receiveIdx]
		f.receiveIdx++
		f.mu.Unlock()
		return batch, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *Fake) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deletes = append(f.Deletes, DeleteCall{QueueURL: queueURL, ReceiptHandle: receiptHandle})

	if f.deleteIdx < len(f.DeleteOutcomes) {
		err := f.DeleteOutcomes[f.deleteIdx]
		f.deleteIdx++
		return err
	}
	return f.DeleteErr
}

func (f *Fake) DeleteBatch(ctx context.Context, queueURL string, entries []broker.DeleteBatchEntry) (broker.DeleteBatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]broker.DeleteBatchEntry, len(entries))
	copy(cp, entries)
	f.DeleteBatches = append(f.DeleteBatches, DeleteBatchCall{QueueURL: queueURL, Entries: cp})

	if f.deleteBatchIdx < len(f.DeleteBatchOutcomes) {
		out := f.DeleteBatchOutcomes[f.deleteBatchIdx]
		f.deleteBatchIdx++
		return out.Result, out.Err
	}

	if f.DeleteBatchErr != nil {
		return broker.DeleteBatchResult{}, f.DeleteBatchErr
	}
	return f.DeleteBatchResult, nil
}

// ChangeVisibilityCalls records ChangeMessageVisibility invocations.
type ChangeVisibilityCall struct {
	QueueURL      string
	ReceiptHandle string
	Seconds       int32
}

func (f *Fake) ChangeMessageVisibility(ctx context.Context, queueURL, receiptHandle string, seconds int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChangeVisibilityCalls = append(f.ChangeVisibilityCalls, ChangeVisibilityCall{
		QueueURL: queueURL, ReceiptHandle: receiptHandle, Seconds: seconds,
	})
	return f.ChangeVisibilityErr
}

// DeleteCount returns the number of Delete calls observed so far.
func (f *Fake) DeleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Deletes)
}

// DeleteBatchCount returns the number of DeleteBatch calls observed so far.
func (f *Fake) DeleteBatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.DeleteBatches)
}
