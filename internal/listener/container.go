// Package listener implements the message listener container (C9): the
// long-poll -> dispatch -> ack pipeline with cooperative shutdown that
// is the centerpiece of this library (spec §4.6-§4.8).
package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"go.sqslistener.dev/internal/batchack"
	"go.sqslistener.dev/internal/broker"
	"go.sqslistener.dev/internal/common/logging"
	"go.sqslistener.dev/internal/common/metrics"
	"go.sqslistener.dev/internal/convert"
	"go.sqslistener.dev/internal/errorhandler"
	"go.sqslistener.dev/internal/msgcontext"
	"go.sqslistener.dev/internal/permit"
)

// pollJoinTimeout and handlerDrainTimeout are the fixed deadlines Stop
// races against (spec §4.6, §5).
const (
	pollJoinTimeout     = 2 * time.Second
	handlerDrainTimeout = 5 * time.Second
	drainPollInterval   = 100 * time.Millisecond
	backoffStep         = 200 * time.Millisecond
)

// State is one of the container's lifecycle states (spec §4.6).
type State int32

const (
	StateUnconfigured State = iota
	StateConfigured
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "CONFIGURED"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNCONFIGURED"
	}
}

// HandlerFunc is the user-supplied message listener (spec §6:
// "onMessage(payload, context) -> ok | fails"). Returning an error
// routes the failure to the configured errorhandler.Handler.
type HandlerFunc func(ctx context.Context, payload any, mctx *msgcontext.Context) error

// Container orchestrates polling, dispatch, ack-mode policy, and
// lifecycle (C9). The zero value is not usable; construct with New.
type Container struct {
	client broker.Client
	logger logging.Logger

	mu        sync.Mutex
	state     State
	cfg       Config
	permit    *permit.Permit
	converter convert.Converter
	errHandler errorhandler.Handler
	batchMgr  *batchack.Manager
	listener  HandlerFunc

	queueURL  string
	cancel    context.CancelFunc
	pollDone  chan struct{}
	redeletes *pendingRedeletes

	inFlight atomic.Int32
}

// New builds a Container bound to client. If logger is nil, a
// zerolog-backed default tagged "listener" is used.
func New(client broker.Client, logger logging.Logger) *Container {
	if logger == nil {
		logger = logging.Default("listener")
	}
	return &Container{
		client:    client,
		logger:    logger,
		state:     StateUnconfigured,
		cfg:       DefaultConfig(),
		redeletes: newPendingRedeletes(),
	}
}

// Configure replaces the container's configuration atomically and
// (re)creates its concurrency permit with the new max. Allowed in
// Unconfigured, Configured, or Stopped (spec §4.6); returns an error if
// called while Running or Stopping.
func (c *Container) Configure(fn func(*Config)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateRunning || c.state == StateStopping {
		return &ConfigurationError{Reason: "cannot configure while running"}
	}

	cfg := c.cfg
	if fn != nil {
		fn(&cfg)
	}
	cfg.clampBatchAckOptions()
	c.cfg = cfg
	c.permit = permit.New(cfg.MaxConcurrentMessages)

	if c.state == StateUnconfigured {
		c.state = StateConfigured
	}
	return nil
}

// SetMessageListener installs the user's message handler.
func (c *Container) SetMessageListener(h HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = h
}

// SetErrorHandler overrides the default error handler.
func (c *Container) SetErrorHandler(h errorhandler.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errHandler = h
}

// SetID sets the container id used in logs and metrics.
func (c *Container) SetID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.ID = id
}

// IsRunning reports whether the container is in the Running state.
func (c *Container) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateRunning
}

// IsAutoStartupEnabled reports the configured AutoStartup flag, for
// framework adapters that decide whether to call Start themselves.
func (c *Container) IsAutoStartupEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.AutoStartup
}

// Start resolves the queue reference, lazily builds default
// collaborators, and spawns the poll loop. It returns once the loop is
// spawned - it does not wait for it. Calling Start while already
// Running is a no-op (spec §4.6).
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRunning {
		c.logger.Debug().Msg("start called while already running, ignoring")
		c.mu.Unlock()
		return nil
	}
	if c.listener == nil {
		c.mu.Unlock()
		return &ConfigurationError{Reason: "no message listener configured"}
	}
	if c.permit == nil {
		c.permit = permit.New(c.cfg.MaxConcurrentMessages)
	}
	if c.cfg.ID == "" {
		c.cfg.ID = uuid.NewString()
	}
	c.logger = c.logger.With("container_id", c.cfg.ID)

	if c.converter == nil {
		if c.cfg.Converter != nil {
			c.converter = c.cfg.Converter
		} else {
			c.converter = convert.NewJSONConverter[map[string]any](convert.ValidationOptions{}, c.logger)
		}
	}
	if c.errHandler == nil {
		c.errHandler = errorhandler.NewDefault(c.logger)
	}
	if c.cfg.EnableBatchAcknowledgement && c.batchMgr == nil {
		c.batchMgr = batchack.NewManager(
			c.client,
			c.logger.With("component", "batchack"),
			c.cfg.BatchAcknowledgement.MaxSize,
			c.cfg.BatchAcknowledgement.FlushInterval,
		)
	}

	queueName := c.cfg.QueueName
	client := c.client
	logger := c.logger
	c.mu.Unlock()

	queueURL, err := broker.ResolveQueueReference(ctx, client, queueName)
	if err != nil {
		return &ConfigurationError{Reason: fmt.Sprintf("resolve queue %q: %v", queueName, err)}
	}

	pollCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.queueURL = queueURL
	c.cancel = cancel
	c.pollDone = make(chan struct{})
	c.state = StateRunning
	c.mu.Unlock()

	go c.runPoller(pollCtx)
	logger.Info().Str("queueUrl", queueURL).Msg("listener container started")
	return nil
}

// Stop transitions Running -> Stopping -> Stopped: it cancels the
// in-flight long-poll, races the poll loop against a 2s deadline,
// drains in-flight message tasks against a 5s deadline, then drains
// the batch ack manager. Idempotent if not running (spec §4.6).
func (c *Container) Stop() {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	cancel := c.cancel
	pollDone := c.pollDone
	batchMgr := c.batchMgr
	logger := c.logger
	c.mu.Unlock()

	cancel()

	select {
	case <-pollDone:
	case <-time.After(pollJoinTimeout):
		logger.Warn().Msg("poll loop did not exit within the join deadline")
	}

	deadline := time.Now().Add(handlerDrainTimeout)
	for c.inFlight.Load() > 0 && time.Now().Before(deadline) {
		time.Sleep(drainPollInterval)
	}
	if n := c.inFlight.Load(); n > 0 {
		logger.Warn().Int32("inFlight", n).Msg("stop deadline reached with message tasks still in flight")
	}

	if batchMgr != nil {
		batchMgr.Shutdown(context.Background())
	}

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()

	logger.Info().Msg("listener container stopped")
}

func (c *Container) runPoller(ctx context.Context) {
	defer close(c.pollDone)

	for c.IsRunning() {
		msgs, err := c.client.Receive(ctx, broker.ReceiveInput{
			QueueURL:            c.queueURL,
			MaxNumberOfMessages: c.cfg.MaxMessagesPerPoll,
			WaitTimeSeconds:     c.cfg.PollTimeoutSeconds,
			VisibilityTimeout:   c.cfg.VisibilityTimeoutSeconds,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || !c.IsRunning() {
				return
			}
			metrics.PollErrors.WithLabelValues(c.cfg.ID).Inc()
			c.logger.Error().Err(err).Msg("receive failed, backing off before next poll")
			if c.cfg.OnPollResult != nil {
				c.cfg.OnPollResult(false)
			}
			if !c.sleepBackoff(ctx) {
				return
			}
			continue
		}
		if c.cfg.OnPollResult != nil {
			c.cfg.OnPollResult(true)
		}

		if !c.IsRunning() {
			return
		}
		if len(msgs) == 0 {
			continue
		}

		metrics.MessagesReceived.WithLabelValues(c.cfg.ID).Add(float64(len(msgs)))

		var wg sync.WaitGroup
		for _, m := range msgs {
			m := m
			if c.redeletes.take(m.MessageID) {
				c.logger.Info().Str("messageId", m.MessageID).Msg("message was already processed - deleting now")
				if err := c.client.Delete(ctx, c.queueURL, m.ReceiptHandle); err != nil {
					c.logger.Warn().Err(err).Str("messageId", m.MessageID).Msg("failed to delete previously processed message")
				}
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.processMessage(m)
			}()
		}
		wg.Wait()
	}
}

// sleepBackoff sleeps PollingErrorBackoffSeconds in short steps,
// re-checking running between each so shutdown stays prompt (spec
// §4.7).
func (c *Container) sleepBackoff(ctx context.Context) bool {
	backoff := time.Duration(c.cfg.PollingErrorBackoffSeconds) * time.Second
	elapsed := time.Duration(0)
	for elapsed < backoff {
		if !c.IsRunning() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoffStep):
		}
		elapsed += backoffStep
	}
	return c.IsRunning()
}

func (c *Container) processMessage(msg broker.Message) {
	c.inFlight.Add(1)
	metrics.InFlightMessages.WithLabelValues(c.cfg.ID).Set(float64(c.inFlight.Load()))
	defer func() {
		c.inFlight.Add(-1)
		metrics.InFlightMessages.WithLabelValues(c.cfg.ID).Set(float64(c.inFlight.Load()))
	}()

	start := time.Now()
	ctx := context.Background()

	if err := c.permit.Acquire(ctx); err != nil {
		c.logger.Error().Err(err).Str("messageId", msg.MessageID).Msg("failed to acquire permit")
		return
	}
	defer func() {
		c.permit.Release()
		metrics.AvailablePermits.WithLabelValues(c.cfg.ID).Set(float64(c.permit.Available()))
		metrics.ProcessingDuration.WithLabelValues(c.cfg.ID).Observe(time.Since(start).Seconds())
	}()

	ack := c.acknowledger()
	mctx := msgcontext.New(msg, c.queueURL, c.client, ack, c.logger)
	if ack == nil {
		mctx.SetRedeleter(c)
	}

	value, err := c.converter.Convert(ctx, []byte(msg.Body), msg.MessageAttributes, mctx)
	if err != nil {
		if errors.Is(err, convert.ErrHandled) {
			c.logger.Debug().Str("messageId", msg.MessageID).Msg("validation policy already handled this message")
			metrics.MessagesProcessed.WithLabelValues(c.cfg.ID, "validation_handled").Inc()
			return
		}
		c.handleFailure(ctx, err, bestEffortPayload(msg.Body), mctx, "conversion_error")
		return
	}

	if err := c.listener(ctx, value, mctx); err != nil {
		c.handleFailure(ctx, err, value, mctx, "handler_error")
		return
	}

	c.applyAckPolicy(ctx, mctx, true)
	metrics.MessagesProcessed.WithLabelValues(c.cfg.ID, "success").Inc()
	c.logger.Debug().Str("messageId", msg.MessageID).Msg("message processed successfully")
}

func (c *Container) handleFailure(ctx context.Context, err error, payload any, mctx *msgcontext.Context, reason string) {
	c.errHandler.Handle(ctx, err, payload, mctx)
	c.applyAckPolicy(ctx, mctx, false)
	metrics.MessagesProcessed.WithLabelValues(c.cfg.ID, reason).Inc()
}

// bestEffortPayload gives the error handler something more structured
// than a raw body when the typed converter failed, without inventing
// a second validation pass - a plain untyped JSON decode, falling
// back to the raw body on failure (spec §4.7: "on failure, pass the
// raw body").
func bestEffortPayload(body string) any {
	var generic map[string]any
	if err := json.Unmarshal([]byte(body), &generic); err == nil {
		return generic
	}
	return body
}

func (c *Container) applyAckPolicy(ctx context.Context, mctx *msgcontext.Context, success bool) {
	switch c.cfg.AckMode {
	case AckAlways:
		mctx.Acknowledge(ctx)
	case AckOnSuccess:
		if success {
			mctx.Acknowledge(ctx)
		}
	case AckManual:
		// User code acknowledges explicitly, if at all.
	}
}

func (c *Container) acknowledger() msgcontext.Acknowledger {
	if c.batchMgr == nil {
		return nil
	}
	return c.batchMgr
}

// MarkExpired implements msgcontext.Redeleter, recording messageID so
// the poller deletes it on sight next time it is received rather than
// redelivering it to the message listener (spec §11).
func (c *Container) MarkExpired(messageID string) {
	c.redeletes.mark(messageID)
}
