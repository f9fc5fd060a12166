// Package attribution implements the Attribution Engine (spec §4.8):
// enriching the diff's top-N differences with contribution share and
// sample source rows, without re-executing any plan.
package attribution

import (
	"fmt"
	"strings"

	"github.com/reconciliation-rca/engine/pkg/diff"
	"github.com/reconciliation-rca/engine/pkg/exec"
	"github.com/reconciliation-rca/engine/pkg/tabular"
)

// SampleRow is one source row pulled from an ExecutionResult's DataFrame to
// make a delta inspectable (spec §4.8: "up to K sample source rows from
// each side, drawn from the input results, not re-executed").
type SampleRow map[string]any

// Attributed is one diff Difference enriched with contribution share and
// sample evidence.
type Attributed struct {
	diff.Difference
	ContributionShare float64
	SamplesA          []SampleRow
	SamplesB          []SampleRow
}

// Engine enriches diff differences with attribution evidence.
type Engine struct {
	// SamplesPerSide bounds how many rows are drawn from each side per
	// difference ("K" in spec §4.8).
	SamplesPerSide int
}

// NewEngine constructs an attribution Engine sampling up to k rows per side.
func NewEngine(k int) *Engine {
	if k <= 0 {
		k = 3
	}
	return &Engine{SamplesPerSide: k}
}

// Attribute enriches result.Differences with contribution_share (impact /
// Σ impacts) and up to SamplesPerSide rows from each side's ExecutionResult
// matching the difference's grain value.
func (e *Engine) Attribute(result *diff.Result, a, b *exec.ExecutionResult) []Attributed {
	var totalImpact float64
	for _, d := range result.Differences {
		totalImpact += d.Impact
	}

	out := make([]Attributed, 0, len(result.Differences))
	for _, d := range result.Differences {
		share := 0.0
		if totalImpact > 0 {
			share = d.Impact / totalImpact
		}
		out = append(out, Attributed{
			Difference:        d,
			ContributionShare: share,
			SamplesA:          sampleRows(a, result.GrainKey, d.GrainValue, e.SamplesPerSide),
			SamplesB:          sampleRows(b, result.GrainKey, d.GrainValue, e.SamplesPerSide),
		})
	}
	return out
}

// sampleRows draws up to limit rows from res whose grain-key columns match
// grainValue. grainValue must be formatted identically to pkg/diff's own
// grain-value encoding (%v-formatted key column values joined with "|") so
// the two packages agree on which rows belong to which diff cell.
func sampleRows(res *exec.ExecutionResult, grainKey []string, grainValue string, limit int) []SampleRow {
	if res == nil || res.DataFrame == nil {
		return nil
	}
	var out []SampleRow
	for i := 0; i < res.DataFrame.NumRows() && len(out) < limit; i++ {
		if grainValueOf(res.DataFrame, grainKey, i) == grainValue {
			out = append(out, SampleRow(res.DataFrame.Row(i)))
		}
	}
	return out
}

func grainValueOf(df *tabular.DataFrame, grainKey []string, row int) string {
	parts := make([]string, len(grainKey))
	for i, k := range grainKey {
		parts[i] = fmt.Sprintf("%v", df.ValueAt(k, row))
	}
	return strings.Join(parts, "|")
}
