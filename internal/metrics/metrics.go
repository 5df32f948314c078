package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Namespace prefixes every metric exported by the service.
const Namespace = "furnidesk"

// Registry creates Prometheus collectors lazily, keyed by metric name. The
// label names of a metric are fixed by its first use; later calls missing a
// label report it as empty and extra labels are dropped.
type Registry struct {
	mu         sync.Mutex
	reg        *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labelNames map[string][]string
	startTime  time.Time
}

// NewRegistry creates a new metrics registry
func NewRegistry() *Registry {
	return &Registry{
		reg:        prometheus.NewRegistry(),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelNames: make(map[string][]string),
		startTime:  time.Now(),
	}
}

var globalRegistry = newGlobalRegistry()

func newGlobalRegistry() *Registry {
	r := NewRegistry()
	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// GetRegistry returns the global registry instance
func GetRegistry() *Registry {
	return globalRegistry
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) labelValues(name string, labels map[string]string) []string {
	names := r.labelNames[name]
	values := make([]string, len(names))
	for i, n := range names {
		values[i] = labels[n]
	}
	return values
}

func (r *Registry) counter(name string, labels map[string]string, description string) prometheus.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec, ok := r.counters[name]
	if !ok {
		names := sortedKeys(labels)
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      helpText(name, description),
		}, names)
		if err := r.reg.Register(vec); err != nil {
			return nil
		}
		r.counters[name] = vec
		r.labelNames[name] = names
	}
	return vec.WithLabelValues(r.labelValues(name, labels)...)
}

func (r *Registry) gauge(name string, labels map[string]string, description string) prometheus.Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec, ok := r.gauges[name]
	if !ok {
		names := sortedKeys(labels)
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      helpText(name, description),
		}, names)
		if err := r.reg.Register(vec); err != nil {
			return nil
		}
		r.gauges[name] = vec
		r.labelNames[name] = names
	}
	return vec.WithLabelValues(r.labelValues(name, labels)...)
}

func (r *Registry) histogram(name string, labels map[string]string, description string) prometheus.Observer {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec, ok := r.histograms[name]
	if !ok {
		names := sortedKeys(labels)
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      name,
			Help:      helpText(name, description),
			Buckets:   prometheus.DefBuckets,
		}, names)
		if err := r.reg.Register(vec); err != nil {
			return nil
		}
		r.histograms[name] = vec
		r.labelNames[name] = names
	}
	return vec.WithLabelValues(r.labelValues(name, labels)...)
}

func helpText(name, description string) string {
	if description == "" {
		return name
	}
	return description
}

// IncrementCounter increments a counter metric
func (r *Registry) IncrementCounter(name string, labels map[string]string, description string) {
	r.AddToCounter(name, 1, labels, description)
}

// AddToCounter adds a non-negative value to a counter metric
func (r *Registry) AddToCounter(name string, value float64, labels map[string]string, description string) {
	if value < 0 {
		return
	}
	if c := r.counter(name, labels, description); c != nil {
		c.Add(value)
	}
}

// RecordTimer observes a duration, in seconds, on a histogram
func (r *Registry) RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	r.Observe(name, duration.Seconds(), labels, description)
}

// Observe records a raw value on a histogram
func (r *Registry) Observe(name string, value float64, labels map[string]string, description string) {
	if h := r.histogram(name, labels, description); h != nil {
		h.Observe(value)
	}
}

// SetGauge sets a gauge metric value
func (r *Registry) SetGauge(name string, value float64, labels map[string]string, description string) {
	if g := r.gauge(name, labels, description); g != nil {
		g.Set(value)
	}
}

// AddToGauge moves a gauge up or down
func (r *Registry) AddToGauge(name string, delta float64, labels map[string]string, description string) {
	if g := r.gauge(name, labels, description); g != nil {
		g.Add(delta)
	}
}

// Value returns the current value of a counter or gauge, or the sample count
// of a histogram.
func (r *Registry) Value(name string, labels map[string]string) (float64, bool) {
	families, err := r.reg.Gather()
	if err != nil {
		return 0, false
	}

	fqName := prometheus.BuildFQName(Namespace, "", name)
	for _, mf := range families {
		if mf.GetName() != fqName {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !labelsMatch(m.GetLabel(), labels) {
				continue
			}
			switch {
			case m.Counter != nil:
				return m.GetCounter().GetValue(), true
			case m.Gauge != nil:
				return m.GetGauge().GetValue(), true
			case m.Histogram != nil:
				return float64(m.GetHistogram().GetSampleCount()), true
			}
		}
	}
	return 0, false
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	for _, p := range pairs {
		if want[p.GetName()] != p.GetValue() {
			return false
		}
	}
	return true
}

// Uptime returns how long the registry has existed.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Convenience functions for global registry

// IncrementCounter increments a counter in the global registry
func IncrementCounter(name string, labels map[string]string, description string) {
	globalRegistry.IncrementCounter(name, labels, description)
}

// AddToCounter adds to a counter in the global registry
func AddToCounter(name string, value float64, labels map[string]string, description string) {
	globalRegistry.AddToCounter(name, value, labels, description)
}

// RecordTimer records timing in the global registry
func RecordTimer(name string, duration time.Duration, labels map[string]string, description string) {
	globalRegistry.RecordTimer(name, duration, labels, description)
}

// Observe records a value in the global registry
func Observe(name string, value float64, labels map[string]string, description string) {
	globalRegistry.Observe(name, value, labels, description)
}

// SetGauge sets a gauge in the global registry
func SetGauge(name string, value float64, labels map[string]string, description string) {
	globalRegistry.SetGauge(name, value, labels, description)
}

// AddToGauge moves a gauge in the global registry
func AddToGauge(name string, delta float64, labels map[string]string, description string) {
	globalRegistry.AddToGauge(name, delta, labels, description)
}

// Handler serves the global registry
func Handler() http.Handler {
	return globalRegistry.Handler()
}
