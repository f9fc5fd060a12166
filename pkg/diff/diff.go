// Package diff implements the Grain Diff Engine (spec §4.7): a full outer
// join of two ExecutionResults on their shared grain_key, tolerance-aware
// comparison, and deterministic top-N ranking.
package diff

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/reconciliation-rca/engine/pkg/exec"
	"github.com/reconciliation-rca/engine/pkg/rcerrors"
	"github.com/reconciliation-rca/engine/pkg/tabular"
)

// DiffKind classifies one diff cell by which sides produced a value
// (spec §4.7: "kind ∈ {mismatch, missing_right, missing_left}").
type DiffKind string

const (
	KindMismatch     DiffKind = "mismatch"
	KindMissingRight DiffKind = "missing_right"
	KindMissingLeft  DiffKind = "missing_left"
	KindAgreeing     DiffKind = "agreeing"
)

// Difference is one grain-key cell of the diff (spec §4.7 "differences[]").
type Difference struct {
	GrainValue string
	ValueA     float64
	ValueB     float64
	Impact     float64
	Kind       DiffKind
}

// Tolerance is the per-metric equality policy (spec §4.7 "Tolerance").
// Defaults (zero value) are strict: abs_tol = 0, rel_tol = 0.
type Tolerance struct {
	AbsTolerance float64
	RelTolerance float64
}

// equal reports whether a and b are within tolerance: |a-b| ≤
// max(abs_tol, rel_tol·max(|a|,|b|)).
func (t Tolerance) equal(a, b float64) bool {
	diff := math.Abs(a - b)
	bound := t.AbsTolerance
	rel := t.RelTolerance * math.Max(math.Abs(a), math.Abs(b))
	if rel > bound {
		bound = rel
	}
	return diff <= bound
}

// Result is the Grain Diff Engine's output (spec §4.7).
type Result struct {
	TotalGrainUnitsA int
	TotalGrainUnitsB int
	MismatchCount    int
	MissingRightCount int
	MissingLeftCount int
	AgreeingCount    int
	Differences      []Difference
	GrainKey         []string
	MetricColumnA    string
	MetricColumnB    string
}

// Engine computes full-outer-join diffs between two ExecutionResults that
// share a grain_key.
type Engine struct {
	TopN int
}

// NewEngine constructs a diff Engine keeping the top `topN` differences by
// absolute impact.
func NewEngine(topN int) *Engine {
	if topN <= 0 {
		topN = 25
	}
	return &Engine{TopN: topN}
}

// Diff computes the full outer join of a and b on their shared grain_key
// (spec §4.7). metricA and metricB name the metric column on each side
// (they may differ, e.g. "total_outstanding" vs "outstanding_total"); the
// output aligns them under a canonical name internally.
func (e *Engine) Diff(a, b *exec.ExecutionResult, metricA, metricB string, tol Tolerance) (*Result, error) {
	if len(a.GrainKey) == 0 || len(b.GrainKey) == 0 {
		return nil, fmt.Errorf("diff requires a non-empty grain_key on both sides: %w", rcerrors.ErrInvalidConstraint)
	}
	if !sameKeys(a.GrainKey, b.GrainKey) {
		return nil, fmt.Errorf("grain_key mismatch between sides (%v vs %v): %w", a.GrainKey, b.GrainKey, rcerrors.ErrInvalidConstraint)
	}

	keys := make([]tabular.JoinKeyPair, len(a.GrainKey))
	for i, k := range a.GrainKey {
		keys[i] = tabular.JoinKeyPair{LeftColumn: k, RightColumn: k}
	}
	joined, err := a.DataFrame.Join(b.DataFrame, keys, tabular.JoinFull)
	if err != nil {
		return nil, fmt.Errorf("full outer join on grain_key: %w", err)
	}

	rightMetric := metricB
	if a.DataFrame.Schema().Has(metricB) {
		rightMetric = "right_" + metricB
	}

	seenA := map[string]bool{}
	seenB := map[string]bool{}
	result := &Result{GrainKey: a.GrainKey, MetricColumnA: metricA, MetricColumnB: metricB}
	var differences []Difference

	for i := 0; i < joined.NumRows(); i++ {
		grainVal := grainValueOf(joined, a.GrainKey, i)
		rawA := joined.ValueAt(metricA, i)
		rawB := joined.ValueAt(rightMetric, i)

		hasA := rawA != nil
		hasB := rawB != nil
		if hasA {
			seenA[grainVal] = true
		}
		if hasB {
			seenB[grainVal] = true
		}

		valA := toFloat(rawA)
		valB := toFloat(rawB)

		switch {
		case hasA && !hasB:
			result.MissingRightCount++
			differences = append(differences, Difference{GrainValue: grainVal, ValueA: valA, ValueB: 0, Impact: math.Abs(valA), Kind: KindMissingRight})
		case !hasA && hasB:
			result.MissingLeftCount++
			differences = append(differences, Difference{GrainValue: grainVal, ValueA: 0, ValueB: valB, Impact: math.Abs(valB), Kind: KindMissingLeft})
		case hasA && hasB && !tol.equal(valA, valB):
			result.MismatchCount++
			differences = append(differences, Difference{GrainValue: grainVal, ValueA: valA, ValueB: valB, Impact: math.Abs(valA - valB), Kind: KindMismatch})
		case hasA && hasB:
			result.AgreeingCount++
		}
	}

	result.TotalGrainUnitsA = len(seenA)
	result.TotalGrainUnitsB = len(seenB)

	// Determinism: order by (−|impact|, grain_value_lexicographic) — spec
	// §4.7 "Determinism".
	sort.SliceStable(differences, func(i, j int) bool {
		if differences[i].Impact != differences[j].Impact {
			return differences[i].Impact > differences[j].Impact
		}
		return differences[i].GrainValue < differences[j].GrainValue
	})
	if len(differences) > e.TopN {
		differences = differences[:e.TopN]
	}
	result.Differences = differences

	return result, nil
}

func sameKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func grainValueOf(df *tabular.DataFrame, grainKey []string, row int) string {
	parts := make([]string, len(grainKey))
	for i, k := range grainKey {
		parts[i] = fmt.Sprintf("%v", df.ValueAt(k, row))
	}
	return strings.Join(parts, "|")
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	default:
		return 0
	}
}
