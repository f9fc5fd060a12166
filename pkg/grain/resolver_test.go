package grain

import (
	"testing"

	"github.com/reconciliation-rca/engine/pkg/catalog"
	"github.com/reconciliation-rca/engine/pkg/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureRegistry(t *testing.T) *catalog.Registry {
	t.Helper()
	entities := []catalog.Entity{
		{ID: "loan", Name: "Loan"},
		{ID: "customer", Name: "Customer"},
	}
	tables := []catalog.Table{
		{Name: "ledger.loans", System: "ledger", Entity: "loan", Columns: []catalog.Column{
			{Name: "loan_id", Type: catalog.DataTypeString},
			{Name: "customer_id", Type: catalog.DataTypeString},
		}},
		{Name: "billing.loan_customer_map", System: "billing", Entity: "loan", Columns: []catalog.Column{
			{Name: "loan_id", Type: catalog.DataTypeString},
			{Name: "customer_id", Type: catalog.DataTypeString},
		}},
	}
	rules := []catalog.Rule{
		{ID: "r1", System: "ledger", Metric: "m1", SourceEntities: []string{"loan"}, Formula: "1", TargetGrain: []string{"loan_id"}},
	}
	metrics := []catalog.Metric{{ID: "m1", DisplayName: "M1", DefaultAggregation: "sum"}}
	edges := []catalog.LineageEdge{
		{
			From:         "loan",
			To:           "customer",
			Relationship: catalog.RelationMapsGrain,
			JoinKeys:     []catalog.JoinKey{{LeftColumn: "loan_id", RightColumn: "loan_id", Operator: "="}},
			Table:        "billing.loan_customer_map",
		},
	}
	reg, err := catalog.FromMemory(entities, tables, rules, metrics, edges, nil)
	require.NoError(t, err)
	return reg
}

func fixturePlan() *planner.LogicalPlan {
	return &planner.LogicalPlan{
		RuleID:       "r1",
		GrainKey:     []string{"loan_id"},
		MetricColumn: "m1",
		Operators: []planner.Operator{
			{Kind: planner.OpScan, Scan: &planner.ScanSpec{Table: "ledger.loans"}},
		},
	}
}

func TestResolve_PassesThroughWhenGrainAlreadyMatches(t *testing.T) {
	reg := fixtureRegistry(t)
	resolver := NewResolver(reg, 50)
	plan := fixturePlan()

	out, err := resolver.Resolve(plan, "loan", "loan", []string{"loan_id"})
	require.NoError(t, err)
	assert.Same(t, plan, out)
}

func TestResolve_RebasesViaMapsGrainEdge(t *testing.T) {
	reg := fixtureRegistry(t)
	resolver := NewResolver(reg, 50)
	plan := fixturePlan()

	out, err := resolver.Resolve(plan, "loan", "customer", []string{"customer_id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_id"}, out.GrainKey)

	var sawFanoutCheckedJoin bool
	for _, op := range out.Operators {
		if op.Kind == planner.OpJoin && op.Join.RequiresFanoutCheck {
			sawFanoutCheckedJoin = true
		}
	}
	assert.True(t, sawFanoutCheckedJoin)
}

func TestResolve_UnresolvableWhenNoRebaseablePath(t *testing.T) {
	reg := fixtureRegistry(t)
	resolver := NewResolver(reg, 50)
	plan := fixturePlan()

	_, err := resolver.Resolve(plan, "loan", "nonexistent", []string{"x"})
	assert.Error(t, err)
}

func TestCheckFanout_RejectsExcessiveCardinality(t *testing.T) {
	err := CheckFanout(10, 10_000, 50)
	assert.Error(t, err)
}

func TestCheckFanout_AllowsWithinCeiling(t *testing.T) {
	err := CheckFanout(10, 400, 50)
	assert.NoError(t, err)
}
