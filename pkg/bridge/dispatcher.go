package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/illmade-knight/go-storebridge/pkg/report"
	"github.com/illmade-knight/go-storebridge/pkg/storage"
	"github.com/illmade-knight/go-storebridge/pkg/topicpath"
	"github.com/rs/zerolog"
)

// Status is the terminal state of one handled message.
type Status int

const (
	StatusStored Status = iota
	StatusIgnored
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusStored:
		return OutcomeStored
	case StatusIgnored:
		return OutcomeIgnored
	default:
		return OutcomeFailed
	}
}

// Outcome describes what happened to a message. Path is the object path for
// stored messages and the failing path for failed ones. Err is a *StepError
// when a handling stage failed.
type Outcome struct {
	Status Status
	Topic  string
	Path   string
	Err    error
	Result storage.Result
}

// MessageHandler is invoked by the transport once per delivered message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, topic string, payload []byte) Outcome
}

// SessionSource hands out the storage client bound to the current session.
type SessionSource interface {
	Current(ctx context.Context) (storage.Client, error)
}

// DispatcherConfig holds the per-message policy.
type DispatcherConfig struct {
	AllowList topicpath.AllowList
	// MimeType is declared on every record. Defaults to DefaultMimeType.
	MimeType string
	// Timeout bounds the storage calls of one message. Zero means no bound.
	Timeout time.Duration
	// Clock stamps object names. Defaults to time.Now.
	Clock func() time.Time
}

// Dispatcher stores allow-listed messages: it ensures the topic's
// collections, builds the record and writes it. It never retries; a failed
// message is reported and dropped.
type Dispatcher struct {
	cfg      DispatcherConfig
	sessions SessionSource
	ensurer  *CollectionEnsurer
	reporter report.Reporter
	metrics  *Metrics
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher. metrics may be nil.
func NewDispatcher(cfg DispatcherConfig, sessions SessionSource, reporter report.Reporter, metrics *Metrics, logger zerolog.Logger) (*Dispatcher, error) {
	if sessions == nil {
		return nil, errors.New("session source cannot be nil")
	}
	if reporter == nil {
		return nil, errors.New("reporter cannot be nil")
	}
	if cfg.MimeType == "" {
		cfg.MimeType = DefaultMimeType
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Dispatcher{
		cfg:      cfg,
		sessions: sessions,
		ensurer:  NewCollectionEnsurer(metrics, logger),
		reporter: reporter,
		metrics:  metrics,
		logger:   logger.With().Str("component", "Dispatcher").Logger(),
	}, nil
}

// HandleMessage runs one message through filter, session, ensure, build and
// write. It is not safe for concurrent use with a shared session; the
// pipeline runs it from a single worker.
func (d *Dispatcher) HandleMessage(ctx context.Context, topic string, payload []byte) Outcome {
	d.logger.Info().Str("topic", topic).Int("payload_size", len(payload)).Msg("Message received.")

	if !d.cfg.AllowList.Allowed(topic) {
		d.metrics.recordOutcome(OutcomeIgnored)
		return Outcome{Status: StatusIgnored, Topic: topic}
	}

	start := time.Now()
	defer func() { d.metrics.observeHandle(time.Since(start)) }()

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	client, err := d.sessions.Current(ctx)
	if err != nil {
		return d.fail(topic, &StepError{Step: StepSession, Path: topicpath.Separator, Err: err})
	}

	dir, err := d.ensurer.Ensure(ctx, client, topicpath.MapTopic(topic))
	if err != nil {
		return d.fail(topic, err)
	}

	name := topicpath.ObjectName(topic, d.cfg.Clock())
	objectPath := dir + name

	record, err := NewStoredRecord(name, payload, d.cfg.MimeType)
	if err != nil {
		return d.fail(topic, &StepError{Step: StepBuild, Path: objectPath, Err: err})
	}
	body, err := record.Body()
	if err != nil {
		return d.fail(topic, &StepError{Step: StepBuild, Path: objectPath, Err: err})
	}

	res := client.WriteObject(ctx, objectPath, body)
	d.metrics.recordStorageCall(OperationWriteObject, res)
	if !res.OK() {
		return d.fail(topic, &StepError{Step: StepWrite, Path: objectPath, Result: res})
	}

	d.metrics.recordOutcome(OutcomeStored)
	d.reporter.Success(res.Msg(), objectPath)
	d.logger.Debug().Str("topic", topic).Str("path", objectPath).Msg("Message stored.")
	return Outcome{Status: StatusStored, Topic: topic, Path: objectPath, Result: res}
}

func (d *Dispatcher) fail(topic string, err error) Outcome {
	out := Outcome{Status: StatusFailed, Topic: topic, Err: err}
	msg := err.Error()
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		out.Path = stepErr.Path
		out.Result = stepErr.Result
		msg = stepErr.Msg()
	}
	d.metrics.recordOutcome(OutcomeFailed)
	d.reporter.Error(msg, out.Path)
	d.logger.Warn().Err(err).Str("topic", topic).Msg("Message dropped.")
	return out
}
