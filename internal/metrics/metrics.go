// Package metrics provides the counter/observation sink the pipeline reports
// through, plus an in-process registry implementation with snapshots for the
// status surfaces.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Sink receives pipeline counters and timings. Implementations must be safe
// for concurrent use.
type Sink interface {
	Increment(name string, labels map[string]string)
	Observe(name string, value float64, labels map[string]string)
}

// Point is one named, labeled value in a snapshot.
type Point struct {
	Name   string            `json:"name"`
	Labels map[string]string `json:"labels,omitempty"`
	Value  float64           `json:"value"`
	Count  int64             `json:"count,omitempty"`
}

// Snapshot captures registry contents at a moment in time.
type Snapshot struct {
	Counters     []Point `json:"counters"`
	Observations []Point `json:"observations"`
}

type entry struct {
	name   string
	labels map[string]string
	value  float64
	count  int64
}

// Registry is the in-process Sink used by the daemon.
type Registry struct {
	mu           sync.Mutex
	counters     map[string]entry
	observations map[string]entry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:     make(map[string]entry),
		observations: make(map[string]entry),
	}
}

// Increment bumps a counter by one.
func (r *Registry) Increment(name string, labels map[string]string) {
	key, lcopy := metricKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.counters[key]
	if e.name == "" {
		e = entry{name: name, labels: lcopy}
	}
	e.value++
	r.counters[key] = e
}

// Observe accumulates a value series; snapshots expose the running sum and count.
func (r *Registry) Observe(name string, value float64, labels map[string]string) {
	key, lcopy := metricKey(name, labels)
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.observations[key]
	if e.name == "" {
		e = entry{name: name, labels: lcopy}
	}
	e.value += value
	e.count++
	r.observations[key] = e
}

// Snapshot returns a stable-ordered copy of all recorded metrics.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		Counters:     make([]Point, 0, len(r.counters)),
		Observations: make([]Point, 0, len(r.observations)),
	}
	for _, e := range r.counters {
		snap.Counters = append(snap.Counters, Point{Name: e.name, Labels: copyLabels(e.labels), Value: e.value})
	}
	for _, e := range r.observations {
		snap.Observations = append(snap.Observations, Point{Name: e.name, Labels: copyLabels(e.labels), Value: e.value, Count: e.count})
	}
	sortPoints(snap.Counters)
	sortPoints(snap.Observations)
	return snap
}

// Noop discards all metrics. Useful for tests and CLI one-shots.
type Noop struct{}

func (Noop) Increment(string, map[string]string)        {}
func (Noop) Observe(string, float64, map[string]string) {}

func metricKey(name string, labels map[string]string) (string, map[string]string) {
	if len(labels) == 0 {
		return name, nil
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	lcopy := make(map[string]string, len(labels))
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", k, labels[k])
		lcopy[k] = labels[k]
	}
	return b.String(), lcopy
}

func copyLabels(labels map[string]string) map[string]string {
	if len(labels) == 0 {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func sortPoints(points []Point) {
	sort.Slice(points, func(i, j int) bool {
		if points[i].Name != points[j].Name {
			return points[i].Name < points[j].Name
		}
		return fmt.Sprint(points[i].Labels) < fmt.Sprint(points[j].Labels)
	})
}
