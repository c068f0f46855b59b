package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ErrHandlerPanic wraps a panic recovered while transforming or processing a
// message.
var ErrHandlerPanic = errors.New("message handler panicked")

// Delivery decides how a message that failed is settled.
type Delivery int

const (
	// AtLeastOnce Nacks a message whose transform or processing failed, so
	// the broker may deliver it again.
	AtLeastOnce Delivery = iota
	// AtMostOnce Acks every message whatever the outcome. Failures are
	// logged and the message is dropped.
	AtMostOnce
)

func (d Delivery) String() string {
	if d == AtMostOnce {
		return "at-most-once"
	}
	return "at-least-once"
}

// StreamingServiceConfig holds configuration for a StreamingService.
type StreamingServiceConfig struct {
	// NumWorkers defaults to 1. More than one worker gives up ordering.
	NumWorkers int
	Delivery   Delivery
}

// StreamingService consumes messages, transforms them one at a time and hands
// each to a processor. With a single worker, messages are processed strictly in
// the order the consumer delivers them.
type StreamingService[T any] struct {
	cfg         StreamingServiceConfig
	consumer    MessageConsumer
	transformer MessageTransformer[T]
	processor   StreamProcessor[T]
	logger      zerolog.Logger

	started atomic.Bool
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewStreamingService creates a new StreamingService.
func NewStreamingService[T any](
	cfg StreamingServiceConfig,
	consumer MessageConsumer,
	transformer MessageTransformer[T],
	processor StreamProcessor[T],
	logger zerolog.Logger,
) (*StreamingService[T], error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if consumer == nil {
		return nil, errors.New("consumer cannot be nil")
	}
	if transformer == nil {
		return nil, errors.New("transformer cannot be nil")
	}
	if processor == nil {
		return nil, errors.New("processor cannot be nil")
	}

	return &StreamingService[T]{
		cfg:         cfg,
		consumer:    consumer,
		transformer: transformer,
		processor:   processor,
		logger:      logger.With().Str("component", "StreamingService").Str("delivery", cfg.Delivery.String()).Logger(),
		done:        make(chan struct{}),
	}, nil
}

// Start starts the consumer and then the workers. Workers run until the
// consumer closes its channel or ctx is cancelled. Cancelling ctx only stops
// the receive loop: a message already being handled runs to completion with
// ctx's values but without its cancellation. Start may be called once.
func (s *StreamingService[T]) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("streaming service already started")
	}
	s.logger.Info().Msg("Starting streaming service...")

	if err := s.consumer.Start(ctx); err != nil {
		close(s.done)
		return fmt.Errorf("failed to start message consumer: %w", err)
	}

	s.logger.Info().Int("worker_count", s.cfg.NumWorkers).Msg("Starting processing workers...")
	s.wg.Add(s.cfg.NumWorkers)
	for i := 0; i < s.cfg.NumWorkers; i++ {
		go s.worker(ctx, i)
	}
	go func() {
		s.wg.Wait()
		close(s.done)
	}()
	return nil
}

// Done is closed once every worker has exited.
func (s *StreamingService[T]) Done() <-chan struct{} {
	return s.done
}

// Stop stops the consumer, then waits for the in-flight message until ctx
// is done.
func (s *StreamingService[T]) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping streaming service...")

	if err := s.consumer.Stop(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Error during consumer stop, continuing shutdown.")
	}
	if !s.started.Load() {
		return nil
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		s.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for processing workers to finish.")
		return ctx.Err()
	}
	s.logger.Info().Msg("Streaming service stopped.")
	return nil
}

func (s *StreamingService[T]) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()
	log := s.logger.With().Int("worker_id", workerID).Logger()
	handleCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Processing worker shutting down due to context cancellation.")
			return
		case msg, ok := <-s.consumer.Messages():
			if !ok {
				log.Info().Msg("Consumer channel closed, worker exiting.")
				return
			}
			skipped, err := s.handle(handleCtx, msg)
			s.settle(msg, skipped, err)
		}
	}
}

// handle runs transformer and processor, turning a panic in either into
// an error.
func (s *StreamingService[T]) handle(ctx context.Context, msg Message) (skipped bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	payload, skip, err := s.transformer(ctx, &msg)
	if err != nil {
		return false, fmt.Errorf("transform: %w", err)
	}
	if skip {
		return true, nil
	}
	return false, s.processor(ctx, msg, payload)
}

func (s *StreamingService[T]) settle(msg Message, skipped bool, err error) {
	switch {
	case err == nil:
		if skipped {
			s.logger.Debug().Str("msg_id", msg.ID).Msg("Transformer signaled to skip message, Acking.")
		}
		ack(msg)
	case s.cfg.Delivery == AtMostOnce:
		s.logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Message failed, Acking and dropping.")
		ack(msg)
	default:
		s.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Message failed, Nacking.")
		if msg.Nack != nil {
			msg.Nack()
		}
	}
}

func ack(msg Message) {
	if msg.Ack != nil {
		msg.Ack()
	}
}
