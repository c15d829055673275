package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the metrics of one embedded collector. A nil *Collector
// records nothing, so callers never need to check.
type Collector struct {
	EventsSampled *prometheus.CounterVec
	EventsDropped *prometheus.CounterVec
	Flushes       *prometheus.CounterVec
	WindowLength  *prometheus.GaugeVec
	FlushLatency  *prometheus.HistogramVec
}

// NewCollector creates the collector metrics and registers them on reg.
// Collectors sharing a registry share the vectors already registered there.
// A nil reg returns nil.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		return nil
	}
	m := &Collector{
		EventsSampled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passivecaptcha_collector_events_sampled_total",
				Help: "Raw events accepted by the sampling gate",
			},
			[]string{"channel"},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passivecaptcha_collector_events_dropped_total",
				Help: "Raw events rejected by the sampling gate",
			},
			[]string{"channel"},
		),
		Flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passivecaptcha_collector_flushes_total",
				Help: "Flush attempts by transport and outcome",
			},
			[]string{"transport", "outcome"},
		),
		WindowLength: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "passivecaptcha_collector_window_length",
				Help: "Live entries per channel window at the last flush",
			},
			[]string{"channel"},
		),
		FlushLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "passivecaptcha_collector_flush_latency_seconds",
				Help:    "Time from snapshot to verdict or terminal failure",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"transport"},
		),
	}
	m.EventsSampled = register(reg, m.EventsSampled)
	m.EventsDropped = register(reg, m.EventsDropped)
	m.Flushes = register(reg, m.Flushes)
	m.WindowLength = register(reg, m.WindowLength)
	m.FlushLatency = register(reg, m.FlushLatency)
	return m
}

// register returns the vector already on reg when an identical one exists.
// Any other registration error leaves c unregistered but usable.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	return c
}

func (m *Collector) Sampled(channel string) {
	if m != nil {
		m.EventsSampled.WithLabelValues(channel).Inc()
	}
}

func (m *Collector) Dropped(channel string) {
	if m != nil {
		m.EventsDropped.WithLabelValues(channel).Inc()
	}
}

func (m *Collector) Flush(transport, outcome string, d time.Duration) {
	if m != nil {
		m.Flushes.WithLabelValues(transport, outcome).Inc()
		m.FlushLatency.WithLabelValues(transport).Observe(d.Seconds())
	}
}

func (m *Collector) Windows(lens map[string]int) {
	if m != nil {
		for ch, n := range lens {
			m.WindowLength.WithLabelValues(ch).Set(float64(n))
		}
	}
}
