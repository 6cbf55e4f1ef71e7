// Package metrics provides a lightweight, Prometheus-compatible
// metrics collector. It outputs text/plain in Prometheus exposition
// format without requiring the prometheus/client_golang dependency.
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

// MetricsCollector aggregates named counters.
type MetricsCollector struct {
	counters  sync.Map // name -> *Counter
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

// Value returns the current counter value.
func (c *Counter) Value() int64 { return c.value.Load() }

// GetCounter returns (creating if needed) a counter. Labels are given
// as "key=value" pairs.
func (c *MetricsCollector) GetCounter(name, help string, labels ...string) *Counter {
	key := name
	labelStr := formatLabels(labels)
	if labelStr != "" {
		key = name + "{" + labelStr + "}"
	}
	if v, ok := c.counters.Load(key); ok {
		return v.(*Counter)
	}
	counter := &Counter{name: name, help: help, labels: labelStr}
	actual, _ := c.counters.LoadOrStore(key, counter)
	return actual.(*Counter)
}

func formatLabels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		k, v, ok := strings.Cut(l, "=")
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q", k, v))
	}
	return strings.Join(parts, ",")
}

// Expose renders all metrics in Prometheus exposition format.
func (c *MetricsCollector) Expose() string {
	var b strings.Builder

	type line struct {
		name, help, labels string
		value              int64
	}
	var lines []line
	c.counters.Range(func(_, v any) bool {
		ct := v.(*Counter)
		lines = append(lines, line{ct.name, ct.help, ct.labels, ct.Value()})
		return true
	})
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].name != lines[j].name {
			return lines[i].name < lines[j].name
		}
		return lines[i].labels < lines[j].labels
	})

	seen := make(map[string]bool)
	for _, l := range lines {
		if !seen[l.name] {
			seen[l.name] = true
			fmt.Fprintf(&b, "# HELP %s %s\n", l.name, l.help)
			fmt.Fprintf(&b, "# TYPE %s counter\n", l.name)
		}
		if l.labels != "" {
			fmt.Fprintf(&b, "%s{%s} %d\n", l.name, l.labels, l.value)
		} else {
			fmt.Fprintf(&b, "%s %d\n", l.name, l.value)
		}
	}

	fmt.Fprintf(&b, "# HELP faqbot_uptime_seconds Process uptime in seconds\n")
	fmt.Fprintf(&b, "# TYPE faqbot_uptime_seconds gauge\n")
	fmt.Fprintf(&b, "faqbot_uptime_seconds %d\n", int64(c.Uptime().Seconds()))

	return b.String()
}

// Handler serves the exposition format over HTTP.
func (c *MetricsCollector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, c.Expose())
	})
}

// Domain helpers used by the server and dispatcher.

// DeliveryReceived counts one accepted webhook POST.
func DeliveryReceived() {
	Collector.GetCounter("faqbot_deliveries_total", "Webhook deliveries received").Inc()
}

// EventClassified counts one classified inbound event by kind.
func EventClassified(kind string) {
	Collector.GetCounter("faqbot_events_total", "Inbound events by kind", "kind="+kind).Inc()
}

// EventDropped counts an event dropped for missing channel credentials.
func EventDropped() {
	Collector.GetCounter("faqbot_events_dropped_total", "Events dropped for missing channel credentials").Inc()
}

// DispatchError counts a handler failure caught at the dispatch boundary.
func DispatchError() {
	Collector.GetCounter("faqbot_dispatch_errors_total", "Handler failures caught at the dispatch boundary").Inc()
}

// GraphRequest counts one outbound platform API request by endpoint.
func GraphRequest(endpoint string) {
	Collector.GetCounter("faqbot_graph_requests_total", "Outbound platform API requests by endpoint", "endpoint="+endpoint).Inc()
}

// GraphError counts a failed outbound platform API request by endpoint.
func GraphError(endpoint string) {
	Collector.GetCounter("faqbot_graph_errors_total", "Failed outbound platform API requests by endpoint", "endpoint="+endpoint).Inc()
}

// CompletionFallback counts a chat completion that substituted the fallback reply.
func CompletionFallback() {
	Collector.GetCounter("faqbot_completion_fallbacks_total", "Completions that substituted the fallback reply").Inc()
}
