// Package msgcontext provides the per-message handle (spec §4.2, C4)
// passed to converters, user handlers, and error handlers.
package msgcontext

import (
	"context"
	"strconv"
	"strings"

	"go.sqslistener.dev/internal/broker"
	"go.sqslistener.dev/internal/common/logging"
	"go.sqslistener.dev/internal/common/metrics"
)

// Acknowledger is the subset of acknowledgement behavior a Context
// needs: either the batch ack manager or a direct single-delete
// wrapper around the broker client. The listener container decides
// which implementation to hand to each Context at construction time
// (spec §4.8).
type Acknowledger interface {
	Acknowledge(ctx context.Context, messageID, receiptHandle, queueURL string)
}

// Redeleter receives notice that a direct delete failed because the
// receipt handle had already expired, so the message should be deleted
// on sight the next time it is received rather than reprocessed (spec
// §11, receipt-handle-expiry recovery). Only wired for direct,
// non-batched acknowledgement - the batch ack manager has no concept of
// "next poll" to defer to.
type Redeleter interface {
	MarkExpired(messageID string)
}

// Context is the read-only, per-message handle exposed to converters
// and user code. It is exclusively owned by the message task that
// created it and is discarded when that task completes.
type Context struct {
	message      broker.Message
	queueURL     string
	client       broker.Client
	acknowledger Acknowledger
	redeleter    Redeleter
	logger       logging.Logger

	acknowledged bool
}

// New builds a Context bound to a single received message. acknowledger
// may be nil, in which case Acknowledge falls back to a direct
// broker.Client.Delete call.
func New(msg broker.Message, queueURL string, client broker.Client, acknowledger Acknowledger, logger logging.Logger) *Context {
	return &Context{
		message:      msg,
		queueURL:     queueURL,
		client:       client,
		acknowledger: acknowledger,
		logger:       logger,
	}
}

// SetRedeleter wires the opportunistic-redelete recovery path (spec
// §11) into a Context built for direct (non-batched) acknowledgement.
// Left unset, a failed direct delete is simply logged and swallowed.
func (c *Context) SetRedeleter(r Redeleter) { c.redeleter = r }

func (c *Context) MessageID() string     { return c.message.MessageID }
func (c *Context) ReceiptHandle() string { return c.message.ReceiptHandle }
func (c *Context) QueueURL() string      { return c.queueURL }
func (c *Context) Body() []byte          { return []byte(c.message.Body) }

func (c *Context) MessageAttributes() map[string]broker.Attribute {
	return c.message.MessageAttributes
}

func (c *Context) SystemAttributes() map[string]string {
	return c.message.SystemAttributes
}

// ApproximateReceiveCount parses systemAttributes["ApproximateReceiveCount"]
// leniently: a missing or malformed value returns 0 (spec §3, testable
// property 6).
func (c *Context) ApproximateReceiveCount() int {
	raw, ok := c.message.SystemAttributes["ApproximateReceiveCount"]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// Acknowledge requests deletion of this message, via the batch ack
// manager if one was configured, otherwise a direct delete. It is
// idempotent from the caller's perspective and never returns an error.
// A direct-delete failure caused by an already-expired receipt handle
// is recovered rather than dropped: the message ID is handed to the
// configured Redeleter so the container deletes it on sight the next
// time it is received, instead of reprocessing it (spec §11). Any other
// transport failure is logged and swallowed.
func (c *Context) Acknowledge(ctx context.Context) {
	if c.acknowledged {
		return
	}
	c.acknowledged = true

	if c.acknowledger != nil {
		c.acknowledger.Acknowledge(ctx, c.message.MessageID, c.message.ReceiptHandle, c.queueURL)
		return
	}

	if err := c.client.Delete(ctx, c.queueURL, c.message.ReceiptHandle); err != nil {
		if c.redeleter != nil && isReceiptHandleExpired(err) {
			c.redeleter.MarkExpired(c.message.MessageID)
			c.logger.Info().Str("messageId", c.message.MessageID).Msg("receipt handle expired - marked for deletion on next poll")
			return
		}
		metrics.DirectDeletes.WithLabelValues("error").Inc()
		c.logger.Error().Err(err).Str("messageId", c.message.MessageID).Msg("failed to delete message")
		return
	}
	metrics.DirectDeletes.WithLabelValues("success").Inc()
}

// isReceiptHandleExpired recognizes SQS's ReceiptHandleIsInvalid error,
// the same substrings the teacher's isReceiptHandleExpiredError checked
// for.
func isReceiptHandleExpired(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "ReceiptHandleIsInvalid") ||
		strings.Contains(msg, "receipt handle has expired") ||
		strings.Contains(msg, "The receipt handle has expired")
}

// ExtendVisibility asks the broker to extend how long this message
// stays invisible to other consumers, for handlers doing long-running
// work. This is a thin passthrough with no background heartbeat
// scheduler - the caller decides when and how often to call it - since
// adding one would amount to an in-process retry scheduler, which
// spec §1 explicitly puts out of scope.
func (c *Context) ExtendVisibility(ctx context.Context, seconds int32) error {
	return c.client.ChangeMessageVisibility(ctx, c.queueURL, c.message.ReceiptHandle, seconds)
}
