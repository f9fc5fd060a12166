// Package trace implements the Observability Layer (spec §4.11, §5 "Shared
// resources"): a per-request, append-only, bounded ring buffer of node
// executions, totally ordered by a monotonically increasing event counter
// plus wall-clock timestamp, and an otel span wrapper around the same
// boundaries.
package trace

import (
	"sync"
	"time"
)

// NodeExecution records one operator or stage's execution, following the
// original implementation's ExecutionTrace/NodeExecution shape (
// original_source/rust/core/observability/execution_trace.rs): node
// identity, timing, row count, and success/error.
type NodeExecution struct {
	Seq         uint64
	NodeID      string
	NodeType    string
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	RowsProcessed int
	Success     bool
	Error       string
}

// ExecutionTrace is the bounded, append-only record of one request's
// execution, with a per-request lock guarding concurrent appends from the
// request's sibling plan tasks (spec §5: "concurrent appends use a
// per-request lock").
type ExecutionTrace struct {
	mu sync.Mutex

	RequestID string
	capacity  int
	counter   uint64

	Nodes               []NodeExecution
	Timings             map[string]time.Duration
	RowCounts           map[string]int
	FilterSelectivity   map[string]float64
	ConfidenceProgression []float64
	GrainResolutionPath []string
	// dropped counts events evicted by the ring buffer once capacity was
	// reached, so callers can report "trace truncated" rather than silently
	// losing data.
	dropped int
}

// NewExecutionTrace constructs a bounded trace for one request. capacity
// bounds the ring buffer (spec §5: "a bounded ring per request").
func NewExecutionTrace(requestID string, capacity int) *ExecutionTrace {
	if capacity <= 0 {
		capacity = 256
	}
	return &ExecutionTrace{
		RequestID:         requestID,
		capacity:          capacity,
		Timings:           make(map[string]time.Duration),
		RowCounts:         make(map[string]int),
		FilterSelectivity: make(map[string]float64),
	}
}

// RecordNode appends a node execution, evicting the oldest entry if the
// ring buffer is at capacity. Seq is assigned under the lock so events are
// totally ordered even when appended from concurrent sibling tasks (spec
// §5: "Trace events within a task are totally ordered by a monotonically
// increasing event counter plus wall-clock timestamp").
func (t *ExecutionTrace) RecordNode(n NodeExecution) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.counter++
	n.Seq = t.counter
	if len(t.Nodes) >= t.capacity {
		t.Nodes = t.Nodes[1:]
		t.dropped++
	}
	t.Nodes = append(t.Nodes, n)
	if n.NodeID != "" {
		t.Timings[n.NodeID] = n.Duration
		t.RowCounts[n.NodeID] = n.RowsProcessed
	}
}

// RecordConfidence appends one point to the confidence progression.
func (t *ExecutionTrace) RecordConfidence(score float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ConfidenceProgression = append(t.ConfidenceProgression, score)
}

// SetGrainResolutionPath records the entity path walked by the grain
// resolver, if any rebasing occurred.
func (t *ExecutionTrace) SetGrainResolutionPath(path []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.GrainResolutionPath = path
}

// Dropped reports how many node-execution records were evicted by the ring
// buffer since trace creation.
func (t *ExecutionTrace) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Snapshot returns a copy of the recorded nodes, safe to read without
// holding the trace's lock afterward.
func (t *ExecutionTrace) Snapshot() []NodeExecution {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]NodeExecution, len(t.Nodes))
	copy(out, t.Nodes)
	return out
}
