// Package broker defines the external broker client capability the
// listener container depends on (spec §6, C1). The core library never
// imports the AWS SDK directly - every collaborator that needs to talk
// to SQS depends on this interface, and internal/broker/sqs provides
// the production implementation.
package broker

import (
	"context"
	"strings"
)

// AttributeType mirrors SQS's message attribute data types.
type AttributeType string

const (
	AttributeTypeString AttributeType = "String"
	AttributeTypeBinary AttributeType = "Binary"
	AttributeTypeNumber AttributeType = "Number"
)

// Attribute is a single SQS message attribute value.
type Attribute struct {
	DataType     AttributeType
	StringValue  string
	BinaryValue  []byte
}

// Message is an inbound broker message (spec §3).
type Message struct {
	MessageID         string
	ReceiptHandle     string
	Body              string
	MessageAttributes map[string]Attribute
	SystemAttributes  map[string]string
}

// ReceiveInput parameterizes a single receive call.
type ReceiveInput struct {
	QueueURL            string
	MaxNumberOfMessages  int32
	WaitTimeSeconds      int32
	VisibilityTimeout    int32
}

// DeleteBatchEntry identifies one message to delete within a batch call.
type DeleteBatchEntry struct {
	ID            string
	ReceiptHandle string
}

// BatchFailure describes one entry that a DeleteBatch call could not
// process, mirroring SQS's per-entry BatchResultErrorEntry.
type BatchFailure struct {
	ID      string
	Code    string
	Message string
}

// DeleteBatchResult is the outcome of a DeleteBatch call. Entries not
// present in Failed were deleted successfully.
type DeleteBatchResult struct {
	Failed []BatchFailure
}

// Client is the broker capability the listener container, batch ack
// manager, and message context depend on. All operations are safe to
// call concurrently from many goroutines.
type Client interface {
	// ResolveQueueURL resolves a queue name to its URL. Callers should
	// skip this for references that already look like a URL
	// (http:// or https:// prefix) - see ResolveQueueReference.
	ResolveQueueURL(ctx context.Context, name string) (string, error)

	// Receive issues one long-poll receive call, requesting all
	// system and message attributes.
	Receive(ctx context.Context, in ReceiveInput) ([]Message, error)

	// Delete removes a single message by receipt handle.
	Delete(ctx context.Context, queueURL, receiptHandle string) error

	// DeleteBatch removes up to 10 messages in one broker call.
	DeleteBatch(ctx context.Context, queueURL string, entries []DeleteBatchEntry) (DeleteBatchResult, error)

	// ChangeMessageVisibility extends or shortens how long a message
	// stays invisible to other consumers. Not part of the minimal
	// spec interface but needed by msgcontext.Context.ExtendVisibility
	// (see SPEC_FULL.md §11).
	ChangeMessageVisibility(ctx context.Context, queueURL, receiptHandle string, seconds int32) error
}

// ResolveQueueReference resolves ref to a queue URL, short-circuiting
// the broker round trip when ref already looks like a resolved URL
// (spec §6, §8 boundary behavior).
func ResolveQueueReference(ctx context.Context, client Client, ref string) (string, error) {
	if isURL(ref) {
		return ref, nil
	}
	return client.ResolveQueueURL(ctx, ref)
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
