// Package convert implements the payload converter (C5) and validating
// converter (C6): decoding a raw SQS body into a typed value and,
// optionally, running it through go-playground/validator/v10 under a
// configurable failure policy (spec §4.3).
package convert

import (
	"context"
	"encoding/json"

	"go.sqslistener.dev/internal/broker"
	"go.sqslistener.dev/internal/common/logging"
	"go.sqslistener.dev/internal/msgcontext"
)

// FailureMode selects what happens when validation fails.
type FailureMode int

const (
	// FailureModeThrow fails the conversion with *ValidationError; the
	// container routes it to the error handler. Default.
	FailureModeThrow FailureMode = iota
	// FailureModeAcknowledge logs the error, acknowledges the message
	// via mctx, and fails the conversion with ErrHandled so neither the
	// user handler nor the error handler runs.
	FailureModeAcknowledge
	// FailureModeReject logs the error and fails the conversion with
	// ErrHandled without acknowledging, leaving the message to become
	// visible again and retry (or dead-letter) on the broker's terms.
	FailureModeReject
)

// ValidatorOptions mirrors the source library's validator-forwarded
// flags. Go's validator package has no notion of groups or
// skip-missing-fields/stop-at-first-error, so these are accepted and
// retained for forward compatibility but currently have no effect -
// documented here rather than silently dropped (spec §3 data model).
type ValidatorOptions struct {
	SkipMissingFields bool
	Groups            []string
	StopOnFirstError  bool
}

// ValidationOptions configures whether and how a converter validates
// its decoded value.
type ValidationOptions struct {
	Enabled     bool
	FailureMode FailureMode
	Validator   ValidatorOptions
}

// Converter decodes a raw message body into a value the user handler
// receives. Implementations may call mctx.Acknowledge to drop a
// message without invoking the handler (e.g. FailureModeAcknowledge).
type Converter interface {
	Convert(ctx context.Context, body []byte, attrs map[string]broker.Attribute, mctx *msgcontext.Context) (any, error)
}

// JSONConverter decodes JSON bodies into *T, optionally validating the
// result against T's struct tags.
type JSONConverter[T any] struct {
	validation ValidationOptions
	validate   *fieldValidator
	logger     logging.Logger
}

// NewJSONConverter builds a JSONConverter for T. Passing a zero
// ValidationOptions (Enabled: false) disables validation entirely.
func NewJSONConverter[T any](opts ValidationOptions, logger logging.Logger) *JSONConverter[T] {
	jc := &JSONConverter[T]{validation: opts, logger: logger}
	if opts.Enabled {
		jc.validate = newFieldValidator()
	}
	return jc
}

func (c *JSONConverter[T]) Convert(ctx context.Context, body []byte, _ map[string]broker.Attribute, mctx *msgcontext.Context) (any, error) {
	var target T
	if err := json.Unmarshal(body, &target); err != nil {
		return nil, &ConversionError{Body: body, Err: err}
	}

	if c.validate == nil {
		return &target, nil
	}

	verr := c.validate.check(&target, body, c.logger)
	if verr == nil {
		return &target, nil
	}
	return nil, applyFailurePolicy(ctx, c.validation.FailureMode, verr, mctx, c.logger)
}
