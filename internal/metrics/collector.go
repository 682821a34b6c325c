// Package metrics provides a lightweight, Prometheus-compatible
// collector for the sync engine. It renders text/plain in Prometheus
// exposition format without pulling in prometheus/client_golang.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector.
var Collector = NewMetricsCollector()

// MetricsCollector aggregates counters and gauges.
type MetricsCollector struct {
	counters  sync.Map // key -> *Counter
	gauges    sync.Map // key -> *Gauge
	startTime time.Time
}

// NewMetricsCollector creates a new collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{startTime: time.Now()}
}

// Uptime returns how long the collector has been running.
func (c *MetricsCollector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.value.Add(1) }

// Add increments the counter by n.
func (c *Counter) Add(n int64) { c.value.Add(n) }

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) { g.value.Store(v) }

// Inc increments the gauge by 1.
func (g *Gauge) Inc() { g.value.Add(1) }

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() { g.value.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() int64 { return g.value.Load() }

// Counter returns or creates a counter with the given name and labels.
func (c *MetricsCollector) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	ctr := &Counter{name: name, help: help, labels: labels}
	actual, _ := c.counters.LoadOrStore(key, ctr)
	return actual.(*Counter)
}

// Gauge returns or creates a gauge with the given name and labels.
func (c *MetricsCollector) Gauge(name, help, labels string) *Gauge {
	key := name + "{" + labels + "}"
	if v, ok := c.gauges.Load(key); ok {
		return v.(*Gauge)
	}
	g := &Gauge{name: name, help: help, labels: labels}
	actual, _ := c.gauges.LoadOrStore(key, g)
	return actual.(*Gauge)
}

// Handler returns an http.HandlerFunc that renders all metrics in
// Prometheus text format. Output is sorted for stable scrapes.
func (c *MetricsCollector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		fmt.Fprintf(&sb, "# HELP lmsync_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE lmsync_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "lmsync_uptime_seconds %d\n\n", int64(c.Uptime().Seconds()))

		// Group samples by family so HELP/TYPE precede every sample.
		counters := make(map[string][]*Counter)
		c.counters.Range(func(_, value any) bool {
			ctr := value.(*Counter)
			counters[ctr.name] = append(counters[ctr.name], ctr)
			return true
		})
		for _, name := range sortedKeys(counters) {
			family := counters[name]
			fmt.Fprintf(&sb, "# HELP %s %s\n", name, family[0].help)
			fmt.Fprintf(&sb, "# TYPE %s counter\n", name)
			for _, ctr := range family {
				writeSample(&sb, name, ctr.labels, ctr.Value())
			}
		}

		gauges := make(map[string][]*Gauge)
		c.gauges.Range(func(_, value any) bool {
			g := value.(*Gauge)
			gauges[g.name] = append(gauges[g.name], g)
			return true
		})
		for _, name := range sortedKeys(gauges) {
			family := gauges[name]
			fmt.Fprintf(&sb, "# HELP %s %s\n", name, family[0].help)
			fmt.Fprintf(&sb, "# TYPE %s gauge\n", name)
			for _, g := range family {
				writeSample(&sb, name, g.labels, g.Value())
			}
		}

		fmt.Fprint(w, sb.String())
	}
}

func writeSample(sb *strings.Builder, name, labels string, value int64) {
	if labels != "" {
		fmt.Fprintf(sb, "%s{%s} %d\n", name, labels, value)
	} else {
		fmt.Fprintf(sb, "%s %d\n", name, value)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
