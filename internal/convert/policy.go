package convert

import (
	"context"

	"go.sqslistener.dev/internal/common/logging"
	"go.sqslistener.dev/internal/msgcontext"
)

// applyFailurePolicy implements the THROW/ACKNOWLEDGE/REJECT table from
// spec §4.3, shared by JSONConverter and ValidatingConverter.
func applyFailurePolicy(ctx context.Context, mode FailureMode, verr *ValidationError, mctx *msgcontext.Context, logger logging.Logger) error {
	switch mode {
	case FailureModeAcknowledge:
		if mctx == nil {
			logger.Warn().Msg("validation failure mode is ACKNOWLEDGE but no message context was supplied, degrading to THROW")
			return verr
		}
		logger.Error().Str("messageId", mctx.MessageID()).Str("validation", verr.Render()).Msg("validation failed, acknowledging message")
		mctx.Acknowledge(ctx)
		return ErrHandled

	case FailureModeReject:
		logger.Error().Str("messageId", messageIDOf(mctx)).Str("validation", verr.Render()).Msg("validation failed, rejecting message")
		return ErrHandled

	default: // FailureModeThrow
		return verr
	}
}

func messageIDOf(mctx *msgcontext.Context) string {
	if mctx == nil {
		return ""
	}
	return mctx.MessageID()
}
