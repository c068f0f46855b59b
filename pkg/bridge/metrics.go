package bridge

import (
	"strconv"
	"time"

	"github.com/illmade-knight/go-storebridge/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// Message outcome labels.
const (
	OutcomeStored  = "stored"
	OutcomeIgnored = "ignored"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics holds the bridge's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	messages       *prometheus.CounterVec // by outcome
	storageCalls   *prometheus.CounterVec // by operation and result code
	handleDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registry disables metrics.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storebridge",
			Name:      "messages_total",
			Help:      "Messages received by the bridge, by outcome.",
		}, []string{"outcome"}),
		storageCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storebridge",
			Name:      "storage_calls_total",
			Help:      "Calls made to the storage service, by operation and result code.",
		}, []string{"operation", "result"}),
		handleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storebridge",
			Name:      "message_handle_duration_seconds",
			Help:      "Time spent handling one allow-listed message, storage calls included.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
	}
	for _, c := range []prometheus.Collector{m.messages, m.storageCalls, m.handleDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

// recordStorageCall labels a call "ok" or by its failure code.
func (m *Metrics) recordStorageCall(operation string, res storage.Result) {
	if m == nil {
		return
	}
	result := "ok"
	if !res.OK() {
		result = strconv.Itoa(res.Code())
	}
	m.storageCalls.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) observeHandle(d time.Duration) {
	if m == nil {
		return
	}
	m.handleDuration.Observe(d.Seconds())
}
