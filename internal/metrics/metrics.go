// Package metrics is the observational sink for the pipeline. Nothing here
// gates correctness: unknown metric names and missing tags are ignored.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventsProcessed = "sensor.events.processed"
	EventsLatency   = "sensor.events.latency"
	AlertsPublished = "alerts.published"
	MessagingSent   = "messaging.sent"
	MessagingError  = "messaging.error"
	namespacePrefix = "sensor_alerts"
)

// Sink must be safe for concurrent use by many workers and channels.
type Sink interface {
	IncrementCounter(name string, tags map[string]string)
	RecordDuration(name string, d time.Duration)
}

type Nop struct{}

func (Nop) IncrementCounter(string, map[string]string) {}
func (Nop) RecordDuration(string, time.Duration)       {}

type counterDef struct {
	vec    *prometheus.CounterVec
	labels []string
}

type Prometheus struct {
	counters map[string]counterDef
	histos   map[string]prometheus.Observer
}

// NewPrometheus registers the pipeline collectors on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		counters: make(map[string]counterDef),
		histos:   make(map[string]prometheus.Observer),
	}

	p.addCounter(reg, EventsProcessed, "Sensor readings classified, by sensor type and severity.", "type", "severity")
	p.addCounter(reg, AlertsPublished, "Alerts published to the real-time stream.", "severity")
	p.addCounter(reg, MessagingSent, "Channel send attempts that returned, by outcome.", "service", "severity", "success")
	p.addCounter(reg, MessagingError, "Channel send attempts that failed with an error.", "service", "severity")

	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(EventsLatency) + "_seconds",
		Help:    "Time spent processing one sensor reading.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
	reg.MustRegister(latency)
	p.histos[EventsLatency] = latency

	return p
}

func (p *Prometheus) addCounter(reg prometheus.Registerer, name, help string, labels ...string) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: promName(name) + "_total",
		Help: help,
	}, labels)
	reg.MustRegister(vec)
	p.counters[name] = counterDef{vec: vec, labels: labels}
}

func (p *Prometheus) IncrementCounter(name string, tags map[string]string) {
	def, ok := p.counters[name]
	if !ok {
		return
	}
	values := make([]string, len(def.labels))
	for i, l := range def.labels {
		values[i] = tags[l]
	}
	def.vec.WithLabelValues(values...).Inc()
}

func (p *Prometheus) RecordDuration(name string, d time.Duration) {
	if h, ok := p.histos[name]; ok {
		h.Observe(d.Seconds())
	}
}

// Counter exposes a labelled counter, mainly for assertions in tests.
func (p *Prometheus) Counter(name string, labelValues ...string) (prometheus.Counter, bool) {
	def, ok := p.counters[name]
	if !ok || len(labelValues) != len(def.labels) {
		return nil, false
	}
	return def.vec.WithLabelValues(labelValues...), true
}

func promName(name string) string {
	return namespacePrefix + "_" + strings.ReplaceAll(name, ".", "_")
}
