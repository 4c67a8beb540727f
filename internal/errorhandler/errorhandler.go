// Package errorhandler implements the error handler capability (C7):
// the last stop for a failure that wasn't already resolved by the
// conversion failure-policy machine.
package errorhandler

import (
	"context"
	"errors"

	"go.sqslistener.dev/internal/common/logging"
	"go.sqslistener.dev/internal/convert"
	"go.sqslistener.dev/internal/msgcontext"
)

// Handler reacts to an error raised while converting or handling a
// message. Implementations must not assume the message will be
// retried or dropped on their behalf - the container applies the
// acknowledgement policy independently (spec §4.6-§4.8).
type Handler interface {
	Handle(ctx context.Context, err error, payload any, mctx *msgcontext.Context)
}

// Default logs the error with the message id, expanding
// *convert.ValidationError's formatted constraints when present, and
// never acknowledges the message - matching spec §4.4's "default
// behavior".
type Default struct {
	logger logging.Logger
}

func NewDefault(logger logging.Logger) *Default {
	return &Default{logger: logger}
}

func (d *Default) Handle(_ context.Context, err error, _ any, mctx *msgcontext.Context) {
	event := d.logger.Error().Err(err)
	if mctx != nil {
		event = event.Str("messageId", mctx.MessageID())
	}

	var verr *convert.ValidationError
	if errors.As(err, &verr) {
		event.Str("validation", verr.Render()).Msg("message failed validation")
		return
	}

	var cerr *convert.ConversionError
	if errors.As(err, &cerr) {
		event.Msg("message body could not be converted")
		return
	}

	event.Msg("message handler failed")
}
