// Package metrics provides Prometheus-compatible in-process metrics for
// snippetd. Metrics are exported by writing the text exposition format to a
// file that a node_exporter textfile collector (or snippetctl stats) reads.
package metrics

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType represents the type of metric.
type MetricType int

const (
	// TypeCounter is a monotonically increasing counter.
	TypeCounter MetricType = iota
	// TypeGauge is a value that can go up and down.
	TypeGauge
	// TypeHistogram is a distribution of values.
	TypeHistogram
)

// String returns the string representation of the metric type.
func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Labels represents metric labels.
type Labels map[string]string

// String renders labels in exposition form, sorted by key.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	return "{" + l.pairs() + "}"
}

func (l Labels) pairs() string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(l))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, l[k]))
	}
	return strings.Join(parts, ",")
}

type desc struct {
	name   string
	help   string
	labels Labels
}

// Name returns the metric name.
func (d desc) Name() string { return d.name }

// Help returns the help text.
func (d desc) Help() string { return d.help }

// Counter is a monotonically increasing counter.
type Counter struct {
	desc
	value atomic.Uint64
}

// NewCounter creates a new Counter.
func NewCounter(name, help string, labels Labels) *Counter {
	return &Counter{desc: desc{name, help, labels}}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add adds v to the counter.
func (c *Counter) Add(v uint64) { c.value.Add(v) }

// Value returns the current value.
func (c *Counter) Value() uint64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	desc
	value atomic.Int64
}

// NewGauge creates a new Gauge.
func NewGauge(name, help string, labels Labels) *Gauge {
	return &Gauge{desc: desc{name, help, labels}}
}

// Set sets the gauge to v.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	desc
	buckets []float64

	mu     sync.Mutex
	counts []uint64 // per bucket, last slot is +Inf
	sum    float64
	count  uint64
}

// LatencyBuckets are upper bounds in seconds suited to per-keystroke work.
var LatencyBuckets = []float64{
	0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1,
}

// DurationBuckets are upper bounds in seconds for I/O-bound operations.
var DurationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewHistogram creates a histogram. Buckets are sorted; nil uses
// DurationBuckets.
func NewHistogram(name, help string, labels Labels, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DurationBuckets
	}
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)

	return &Histogram{
		desc:    desc{name, help, labels},
		buckets: sorted,
		counts:  make([]uint64, len(sorted)+1),
	}
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++
	// First bucket whose upper bound is >= v.
	h.counts[sort.SearchFloat64s(h.buckets, v)]++
}

// ObserveDuration records a duration in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Timer returns a timer that records its elapsed time when stopped.
func (h *Histogram) Timer() *HistogramTimer {
	return &HistogramTimer{histogram: h, start: time.Now()}
}

// Count returns the number of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of observations.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Cumulative returns the cumulative count per bucket, +Inf last.
func (h *Histogram) Cumulative() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]uint64, len(h.counts))
	var total uint64
	for i, c := range h.counts {
		total += c
		out[i] = total
	}
	return out
}

// HistogramTimer measures one duration into a histogram.
type HistogramTimer struct {
	histogram *Histogram
	start     time.Time
}

// Stop records and returns the elapsed time.
func (t *HistogramTimer) Stop() time.Duration {
	d := time.Since(t.start)
	t.histogram.ObserveDuration(d)
	return d
}

// Registry holds named metrics.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram

	namespace string
	subsystem string
}

// NewRegistry creates a new Registry.
func NewRegistry(namespace, subsystem string) *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
		namespace:  namespace,
		subsystem:  subsystem,
	}
}

func (r *Registry) fullName(name string) string {
	var parts []string
	if r.namespace != "" {
		parts = append(parts, r.namespace)
	}
	if r.subsystem != "" {
		parts = append(parts, r.subsystem)
	}
	return strings.Join(append(parts, name), "_")
}

// RegisterCounter registers a counter, returning the existing one if the
// name is taken.
func (r *Registry) RegisterCounter(name, help string, labels Labels) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	full := r.fullName(name)
	if c, ok := r.counters[full]; ok {
		return c
	}
	c := NewCounter(full, help, labels)
	r.counters[full] = c
	return c
}

// RegisterGauge registers a gauge, returning the existing one if the name
// is taken.
func (r *Registry) RegisterGauge(name, help string, labels Labels) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()

	full := r.fullName(name)
	if g, ok := r.gauges[full]; ok {
		return g
	}
	g := NewGauge(full, help, labels)
	r.gauges[full] = g
	return g
}

// RegisterHistogram registers a histogram, returning the existing one if
// the name is taken.
func (r *Registry) RegisterHistogram(name, help string, labels Labels, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	full := r.fullName(name)
	if h, ok := r.histograms[full]; ok {
		return h
	}
	h := NewHistogram(full, help, labels, buckets)
	r.histograms[full] = h
	return h
}

// Counter returns a registered counter by short name.
func (r *Registry) Counter(name string) *Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[r.fullName(name)]
}

// Gauge returns a registered gauge by short name.
func (r *Registry) Gauge(name string) *Gauge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[r.fullName(name)]
}

// WritePrometheus writes all metrics in Prometheus text format, sorted by
// name.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var buf bytes.Buffer

	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		fmt.Fprintf(&buf, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
		fmt.Fprintf(&buf, "%s%s %d\n", c.name, c.labels.String(), c.Value())
	}

	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		fmt.Fprintf(&buf, "# HELP %s %s\n# TYPE %s gauge\n", g.name, g.help, g.name)
		fmt.Fprintf(&buf, "%s%s %d\n", g.name, g.labels.String(), g.Value())
	}

	for _, name := range sortedKeys(r.histograms) {
		h := r.histograms[name]
		fmt.Fprintf(&buf, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)

		prefix := "{"
		if len(h.labels) > 0 {
			prefix = "{" + h.labels.pairs() + ","
		}
		cumulative := h.Cumulative()
		for i, bound := range h.buckets {
			fmt.Fprintf(&buf, "%s_bucket%sle=\"%g\"} %d\n", h.name, prefix, bound, cumulative[i])
		}
		fmt.Fprintf(&buf, "%s_bucket%sle=\"+Inf\"} %d\n", h.name, prefix, cumulative[len(h.buckets)])
		fmt.Fprintf(&buf, "%s_sum%s %g\n", h.name, h.labels.String(), h.Sum())
		fmt.Fprintf(&buf, "%s_count%s %d\n", h.name, h.labels.String(), h.Count())
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteTextfile atomically replaces path with the current exposition.
func (r *Registry) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".metrics-*")
	if err != nil {
		return fmt.Errorf("create temp metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := r.WritePrometheus(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metrics file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace metrics file: %w", err)
	}
	return nil
}

// Snapshot returns the current value of every counter and gauge, and the
// count and sum of every histogram.
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]any)
	for name, c := range r.counters {
		snapshot[name] = c.Value()
	}
	for name, g := range r.gauges {
		snapshot[name] = g.Value()
	}
	for name, h := range r.histograms {
		snapshot[name+"_count"] = h.Count()
		snapshot[name+"_sum"] = h.Sum()
	}
	return snapshot
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
