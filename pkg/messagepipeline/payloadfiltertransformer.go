package messagepipeline

import (
	"context"

	"github.com/rs/zerolog"
)

// PayloadLimits bounds the payload size accepted by WithPayloadValidation.
type PayloadLimits struct {
	MinSize int
	// MaxSize of zero or less means no upper bound.
	MaxSize int
	// OnReject is called for each rejected message.
	OnReject func(msg *Message)
}

func (l PayloadLimits) accepts(n int) bool {
	return n >= l.MinSize && (l.MaxSize <= 0 || n <= l.MaxSize)
}

// WithPayloadValidation wraps inner with a payload size check. A rejected
// message is skipped, which the StreamingService acknowledges without
// processing.
func WithPayloadValidation[T any](inner MessageTransformer[T], limits PayloadLimits, logger zerolog.Logger) MessageTransformer[T] {
	return func(ctx context.Context, msg *Message) (*T, bool, error) {
		if !limits.accepts(len(msg.Payload)) {
			logger.Warn().
				Str("msg_id", msg.ID).
				Int("payload_size", len(msg.Payload)).
				Int("min_size", limits.MinSize).
				Int("max_size", limits.MaxSize).
				Msg("Rejecting message due to invalid payload size.")
			if limits.OnReject != nil {
				limits.OnReject(msg)
			}
			return nil, true, nil
		}
		return inner(ctx, msg)
	}
}
