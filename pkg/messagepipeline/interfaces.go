package messagepipeline

import (
	"context"
)

// ====================================================================================
// This file defines the contracts of the streaming pipeline: a consumer delivers
// messages, a transformer turns each into a typed payload and a processor handles it.
// ====================================================================================

// MessageConsumer defines the interface for a message source (MQTT, Pub/Sub).
// It is responsible for fetching messages and handing them off to the pipeline.
type MessageConsumer interface {
	// Messages returns a read-only channel from which pipeline workers will receive messages.
	// The channel is closed once the consumer has stopped.
	Messages() <-chan Message
	// Start connects and begins consumption.
	Start(ctx context.Context) error
	// Stop gracefully ceases message consumption and waits for background tasks to finish.
	Stop(ctx context.Context) error
	// Done returns a channel that is closed when the consumer has completely shut down.
	Done() <-chan struct{}
}

// MessageTransformer turns a generic Message into a payload of type T.
//
// Returning skip=true acknowledges the message without processing it,
// filtering it from the pipeline.
type MessageTransformer[T any] func(ctx context.Context, msg *Message) (payload *T, skip bool, err error)

// StreamProcessor handles transformed messages of type T one by one. A
// returned error Nacks the message.
type StreamProcessor[T any] func(ctx context.Context, original Message, payload *T) error
