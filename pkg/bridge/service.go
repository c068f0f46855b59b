package bridge

import (
	"context"
	"errors"

	"github.com/illmade-knight/go-storebridge/pkg/messagepipeline"
	"github.com/rs/zerolog"
)

// Inbound is a transport message reduced to what the dispatcher needs.
type Inbound struct {
	Topic   string
	Payload []byte
}

// InboundTransformer reads the topic attribute. A message without one gets
// an empty topic, which no allow-list accepts.
func InboundTransformer(_ context.Context, msg *messagepipeline.Message) (*Inbound, bool, error) {
	return &Inbound{
		Topic:   msg.Attributes[messagepipeline.TopicAttribute],
		Payload: msg.Payload,
	}, false, nil
}

// ServiceConfig configures the pipeline around the dispatcher.
type ServiceConfig struct {
	// MaxPayloadBytes drops larger messages before dispatch. Zero disables
	// the check.
	MaxPayloadBytes int
}

// NewService wires consumer to handler through a single-worker streaming
// pipeline, so messages are handled one at a time in delivery order. Every
// message is acknowledged whatever its outcome: delivery is at most once.
func NewService(
	cfg ServiceConfig,
	consumer messagepipeline.MessageConsumer,
	handler MessageHandler,
	metrics *Metrics,
	logger zerolog.Logger,
) (*messagepipeline.StreamingService[Inbound], error) {
	if handler == nil {
		return nil, errors.New("message handler cannot be nil")
	}

	transformer := messagepipeline.MessageTransformer[Inbound](InboundTransformer)
	if cfg.MaxPayloadBytes > 0 {
		transformer = messagepipeline.WithPayloadValidation(transformer, messagepipeline.PayloadLimits{
			MaxSize:  cfg.MaxPayloadBytes,
			OnReject: func(*messagepipeline.Message) { metrics.recordOutcome(OutcomeSkipped) },
		}, logger)
	}

	// Failures are already reported by the dispatcher. The returned error is only logged.
	processor := func(ctx context.Context, _ messagepipeline.Message, in *Inbound) error {
		out := handler.HandleMessage(ctx, in.Topic, in.Payload)
		if out.Status == StatusFailed {
			return out.Err
		}
		return nil
	}

	return messagepipeline.NewStreamingService[Inbound](
		messagepipeline.StreamingServiceConfig{NumWorkers: 1, Delivery: messagepipeline.AtMostOnce},
		consumer,
		transformer,
		processor,
		logger,
	)
}
