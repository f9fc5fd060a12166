package attribution

import (
	"testing"

	"github.com/reconciliation-rca/engine/pkg/diff"
	"github.com/reconciliation-rca/engine/pkg/exec"
	"github.com/reconciliation-rca/engine/pkg/tabular"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttribute_ComputesContributionShareAndSamples(t *testing.T) {
	schema := tabular.Schema{
		{Name: "loan_id", Type: tabular.FieldString},
		{Name: "total", Type: tabular.FieldFloat64},
	}
	a := &exec.ExecutionResult{
		GrainKey: []string{"loan_id"},
		DataFrame: tabular.NewDataFrame(schema, []map[string]any{
			{"loan_id": "L1", "total": 100.0},
			{"loan_id": "L2", "total": 10.0},
		}),
	}
	b := &exec.ExecutionResult{
		GrainKey: []string{"loan_id"},
		DataFrame: tabular.NewDataFrame(schema, []map[string]any{
			{"loan_id": "L1", "total": 0.0},
			{"loan_id": "L2", "total": 0.0},
		}),
	}
	result := &diff.Result{
		GrainKey: []string{"loan_id"},
		Differences: []diff.Difference{
			{GrainValue: "L1", ValueA: 100, ValueB: 0, Impact: 100, Kind: diff.KindMismatch},
			{GrainValue: "L2", ValueA: 10, ValueB: 0, Impact: 10, Kind: diff.KindMismatch},
		},
	}

	engine := NewEngine(2)
	attributed := engine.Attribute(result, a, b)
	require.Len(t, attributed, 2)

	assert.InDelta(t, 100.0/110.0, attributed[0].ContributionShare, 1e-9)
	require.Len(t, attributed[0].SamplesA, 1)
	assert.Equal(t, "L1", attributed[0].SamplesA[0]["loan_id"])
}

func TestAttribute_ZeroTotalImpactYieldsZeroShare(t *testing.T) {
	engine := NewEngine(1)
	result := &diff.Result{
		GrainKey:    []string{"loan_id"},
		Differences: []diff.Difference{{GrainValue: "L1", Impact: 0, Kind: diff.KindAgreeing}},
	}
	attributed := engine.Attribute(result, &exec.ExecutionResult{}, &exec.ExecutionResult{})
	require.Len(t, attributed, 1)
	assert.Equal(t, 0.0, attributed[0].ContributionShare)
}
