package bridge_test

import (
	"context"
	"sync"
	"time"

	"github.com/illmade-knight/go-storebridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-storebridge/pkg/storage"
)

var fixedTime = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

// staticSessions hands out one client and records saved sessions.
type staticSessions struct {
	client storage.Client
	err    error
	saved  []*storage.Session
}

func (s *staticSessions) Current(_ context.Context) (storage.Client, error) {
	return s.client, s.err
}

func (s *staticSessions) Save(_ context.Context, sess *storage.Session) error {
	s.saved = append(s.saved, sess)
	return nil
}

// mockConsumer feeds messages from a channel into the pipeline.
type mockConsumer struct {
	msgs     chan messagepipeline.Message
	done     chan struct{}
	stopOnce sync.Once
}

func newMockConsumer(buffer int) *mockConsumer {
	return &mockConsumer{
		msgs: make(chan messagepipeline.Message, buffer),
		done: make(chan struct{}),
	}
}

func (m *mockConsumer) Messages() <-chan messagepipeline.Message { return m.msgs }
func (m *mockConsumer) Start(_ context.Context) error              { return nil }
func (m *mockConsumer) Done() <-chan struct{}                      { return m.done }

func (m *mockConsumer) Stop(_ context.Context) error {
	m.stopOnce.Do(func() {
		close(m.msgs)
		close(m.done)
	})
	return nil
}

// ackTracker counts acknowledgements across goroutines.
type ackTracker struct {
	mu    sync.Mutex
	acks  int
	nacks int
}

func (a *ackTracker) message(id, topic string, payload []byte) messagepipeline.Message {
	msg := messagepipeline.Message{
		MessageData: messagepipeline.MessageData{ID: id, Payload: payload},
		Attributes:  map[string]string{},
		Ack: func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.acks++
		},
		Nack: func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.nacks++
		},
	}
	if topic != "" {
		msg.Attributes[messagepipeline.TopicAttribute] = topic
	}
	return msg
}

func (a *ackTracker) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks
}
