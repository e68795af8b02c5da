// Package metrics implements the metrics sink (C10): counter/gauge/
// histogram primitives consumed by the governor, transactional writer, and
// scheduler, with a pull-model snapshot for export.
//
// Built around a private prometheus/client_golang registry rather than a
// hand-rolled exporter, so the sink is a genuine pull-model collector
// instead of a JSON/StatsD text format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Labels is a flat label set attached to a metric observation.
type Labels map[string]string

// HistogramBucketsMs are the millisecond buckets used for latency histograms.
var HistogramBucketsMs = []float64{1, 5, 10, 50, 100}

// Sink is the abstract capability the governor, writer, and scheduler
// publish through. Names follow the stable, dotted taxonomy
// (pipeline.chunks_processed, governor.cpu.saturation_pct,
// writer.queue_depth, ...).
type Sink interface {
	IncCounter(name string, labels Labels, delta uint64)
	SetGauge(name string, labels Labels, value float64)
	ObserveHistogram(name string, labels Labels, valueMs float64)
	Snapshot() Snapshot
}

// Snapshot is the pull-model export payload.
type Snapshot struct {
	Counters   map[string]float64
	Gauges     map[string]float64
	Histograms map[string]HistogramSnapshot
}

// HistogramSnapshot is a single metric's bucketed observation counts.
type HistogramSnapshot struct {
	SampleCount uint64
	SampleSum   float64
	Buckets     map[float64]uint64
}

// NoopSink discards every observation. It is the default when a caller
// (governor, txwriter, scheduler) is constructed without an explicit Sink,
// so metrics publication is always safe to call unconditionally on the hot
// path.
type NoopSink struct{}

func (NoopSink) IncCounter(string, Labels, uint64)      {}
func (NoopSink) SetGauge(string, Labels, float64)       {}
func (NoopSink) ObserveHistogram(string, Labels, float64) {}
func (NoopSink) Snapshot() Snapshot {
	return Snapshot{Counters: map[string]float64{}, Gauges: map[string]float64{}, Histograms: map[string]HistogramSnapshot{}}
}

// PrometheusSink backs Sink with real prometheus/client_golang collectors
// registered against a private registry — no HTTP scrape endpoint is
// started here; exposing one is left to the caller.
type PrometheusSink struct {
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labelKeys  map[string][]string
}

// NewPrometheusSink constructs an empty sink with its own private registry.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelKeys:  make(map[string][]string),
	}
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '.' || r == '-' {
			out = append(out, '_')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

func labelKeys(labels Labels) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	return keys
}

func (s *PrometheusSink) counterVec(name string, labels Labels) *prometheus.CounterVec {
	if cv, ok := s.counters[name]; ok {
		return cv
	}
	keys := labelKeys(labels)
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: sanitize(name),
		Help: fmt.Sprintf("adapipe counter %s", name),
	}, keys)
	s.registry.MustRegister(cv)
	s.counters[name] = cv
	s.labelKeys[name] = keys
	return cv
}

func (s *PrometheusSink) gaugeVec(name string, labels Labels) *prometheus.GaugeVec {
	if gv, ok := s.gauges[name]; ok {
		return gv
	}
	keys := labelKeys(labels)
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: sanitize(name),
		Help: fmt.Sprintf("adapipe gauge %s", name),
	}, keys)
	s.registry.MustRegister(gv)
	s.gauges[name] = gv
	s.labelKeys[name] = keys
	return gv
}

func (s *PrometheusSink) histogramVec(name string, labels Labels) *prometheus.HistogramVec {
	if hv, ok := s.histograms[name]; ok {
		return hv
	}
	keys := labelKeys(labels)
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    sanitize(name),
		Help:    fmt.Sprintf("adapipe histogram %s", name),
		Buckets: HistogramBucketsMs,
	}, keys)
	s.registry.MustRegister(hv)
	s.histograms[name] = hv
	s.labelKeys[name] = keys
	return hv
}

// IncCounter increments the named counter by delta.
func (s *PrometheusSink) IncCounter(name string, labels Labels, delta uint64) {
	s.counterVec(name, labels).With(prometheus.Labels(labels)).Add(float64(delta))
}

// SetGauge sets the named gauge to value (last-writer-wins).
func (s *PrometheusSink) SetGauge(name string, labels Labels, value float64) {
	s.gaugeVec(name, labels).With(prometheus.Labels(labels)).Set(value)
}

// ObserveHistogram records one observation, in milliseconds, for name.
func (s *PrometheusSink) ObserveHistogram(name string, labels Labels, valueMs float64) {
	s.histogramVec(name, labels).With(prometheus.Labels(labels)).Observe(valueMs)
}

// Snapshot gathers the private registry and flattens it into the pull-model
// export shape.
func (s *PrometheusSink) Snapshot() Snapshot {
	out := Snapshot{
		Counters:   make(map[string]float64),
		Gauges:     make(map[string]float64),
		Histograms: make(map[string]HistogramSnapshot),
	}

	families, err := s.registry.Gather()
	if err != nil {
		return out
	}

	for _, mf := range families {
		name := mf.GetName()
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			out.Counters[name] = total
		case dto.MetricType_GAUGE:
			for _, m := range mf.GetMetric() {
				out.Gauges[name] = m.GetGauge().GetValue()
			}
		case dto.MetricType_HISTOGRAM:
			for _, m := range mf.GetMetric() {
				h := m.GetHistogram()
				buckets := make(map[float64]uint64, len(h.GetBucket()))
				for _, b := range h.GetBucket() {
					buckets[b.GetUpperBound()] = b.GetCumulativeCount()
				}
				out.Histograms[name] = HistogramSnapshot{
					SampleCount: h.GetSampleCount(),
					SampleSum:   h.GetSampleSum(),
					Buckets:     buckets,
				}
			}
		}
	}
	return out
}
