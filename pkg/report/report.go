// Package report turns bridge outcomes into user-facing status lines. Every
// line is a stable triple: a status word, a message and an optional subject.
package report

import (
	"sync"

	"github.com/rs/zerolog"
)

// Status words.
const (
	StatusSuccess = "Success"
	StatusError   = "Error"
	StatusWarning = "Warning"
)

// Reporter receives one call per reported outcome. subject may be empty.
type Reporter interface {
	Success(msg, subject string)
	Error(msg, subject string)
	Warning(msg, subject string)
}

// LogReporter writes outcomes through zerolog. With a console writer this
// renders as "<level> <status> - <msg> subject=<subject>".
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a reporter over logger.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With().Str("component", "Reporter").Logger()}
}

func (r *LogReporter) Success(msg, subject string) {
	r.emit(r.logger.Info(), StatusSuccess, msg, subject)
}

func (r *LogReporter) Error(msg, subject string) {
	r.emit(r.logger.Error(), StatusError, msg, subject)
}

func (r *LogReporter) Warning(msg, subject string) {
	r.emit(r.logger.Warn(), StatusWarning, msg, subject)
}

func (r *LogReporter) emit(ev *zerolog.Event, status, msg, subject string) {
	ev = ev.Str("status", status)
	if subject != "" {
		ev = ev.Str("subject", subject)
	}
	ev.Msg(status + " - " + msg)
}

// Entry is one recorded report.
type Entry struct {
	Status  string
	Msg     string
	Subject string
}

// Recorder keeps every report in memory. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *Recorder) Success(msg, subject string) { r.add(StatusSuccess, msg, subject) }
func (r *Recorder) Error(msg, subject string)   { r.add(StatusError, msg, subject) }
func (r *Recorder) Warning(msg, subject string) { r.add(StatusWarning, msg, subject) }

func (r *Recorder) add(status, msg, subject string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Status: status, Msg: msg, Subject: subject})
}

// Entries returns a copy of the recorded reports in order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Statuses returns only the status words, in order.
func (r *Recorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Status)
	}
	return out
}
