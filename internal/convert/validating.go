package convert

import (
	"context"
	"encoding/json"

	"go.sqslistener.dev/internal/broker"
	"go.sqslistener.dev/internal/common/logging"
	"go.sqslistener.dev/internal/msgcontext"
)

// ValidatingConverter[T] wraps any Converter, applying the same
// THROW/ACKNOWLEDGE/REJECT policy machine to its decoded output. It
// lets validation be composed onto a converter that isn't JSONConverter
// (spec §4.3: "composable wrapper (or primary impl)"). If the inner
// converter's result is not already a *T, it is materialized into one
// by round-tripping it through JSON before validation runs (spec §4.3:
// "if the returned value is not already an instance of the target
// class, materialize one, then validate").
type ValidatingConverter[T any] struct {
	inner      Converter
	validation ValidationOptions
	validate   *fieldValidator
	logger     logging.Logger
}

func NewValidatingConverter[T any](inner Converter, opts ValidationOptions, logger logging.Logger) *ValidatingConverter[T] {
	vc := &ValidatingConverter[T]{inner: inner, validation: opts, logger: logger}
	if opts.Enabled {
		vc.validate = newFieldValidator()
	}
	return vc
}

func (c *ValidatingConverter[T]) Convert(ctx context.Context, body []byte, attrs map[string]broker.Attribute, mctx *msgcontext.Context) (any, error) {
	value, err := c.inner.Convert(ctx, body, attrs, mctx)
	if err != nil {
		return nil, err
	}

	if c.validate == nil {
		return value, nil
	}

	target, ok := value.(*T)
	if !ok {
		target, err = materialize[T](value, body)
		if err != nil {
			return nil, err
		}
	}

	verr := c.validate.check(target, body, c.logger)
	if verr == nil {
		return target, nil
	}
	return nil, applyFailurePolicy(ctx, c.validation.FailureMode, verr, mctx, c.logger)
}

// materialize remarshals value (whatever shape the inner converter
// produced - a map[string]any from a generic JSON decode, a different
// struct, etc.) into a *T by round-tripping it through JSON, the same
// representation every Converter already works in.
func materialize[T any](value any, body []byte) (*T, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, &ConversionError{Body: body, Err: err}
	}
	var target T
	if err := json.Unmarshal(raw, &target); err != nil {
		return nil, &ConversionError{Body: body, Err: err}
	}
	return &target, nil
}
