package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconciliation-rca/engine/pkg/catalog"
	"github.com/reconciliation-rca/engine/pkg/safety"
	"github.com/reconciliation-rca/engine/pkg/trace"
)

func writeCSV(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func fixtureRegistry(t *testing.T) *catalog.Registry {
	t.Helper()
	dir := t.TempDir()
	ledgerPath := writeCSV(t, dir, "ledger.csv", "loan_id,balance\nL1,100\nL2,50\n")
	billingPath := writeCSV(t, dir, "billing.csv", "loan_id,balance\nL1,100\nL2,40\n")

	entities := []catalog.Entity{{ID: "loan", Name: "Loan"}}
	tables := []catalog.Table{
		{
			Name:         "ledger.loans",
			System:       "ledger",
			Entity:       "loan",
			PhysicalPath: ledgerPath,
			Columns: []catalog.Column{
				{Name: "loan_id", Type: catalog.DataTypeString},
				{Name: "balance", Type: catalog.DataTypeFloat64},
			},
			PrimaryKey: []string{"loan_id"},
		},
		{
			Name:         "billing.loans",
			System:       "billing",
			Entity:       "loan",
			PhysicalPath: billingPath,
			Columns: []catalog.Column{
				{Name: "loan_id", Type: catalog.DataTypeString},
				{Name: "balance", Type: catalog.DataTypeFloat64},
			},
			PrimaryKey: []string{"loan_id"},
		},
	}
	rules := []catalog.Rule{
		{ID: "ledger.balance", System: "ledger", Metric: "balance", SourceEntities: []string{"loan"}, Formula: "balance", TargetGrain: []string{"loan_id"}},
		{ID: "billing.balance", System: "billing", Metric: "balance", SourceEntities: []string{"loan"}, Formula: "balance", TargetGrain: []string{"loan_id"}},
	}
	metrics := []catalog.Metric{{ID: "balance", DisplayName: "Balance", DefaultAggregation: "sum"}}

	reg, err := catalog.FromMemory(entities, tables, rules, metrics, nil, nil)
	require.NoError(t, err)
	return reg
}

func TestRun_ProducesClassifiedDifferencesEndToEnd(t *testing.T) {
	reg := fixtureRegistry(t)
	o := New(reg, nil, safety.DefaultLimits())

	resp, tr, err := o.Run(context.Background(), Request{Query: "why does ledger balance differ from billing balance"})
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, "balance", resp.Metric)
	require.Len(t, resp.DataDiff, 1)
	assert.Equal(t, "L2", resp.DataDiff[0].GrainValue)
	assert.GreaterOrEqual(t, resp.Confidence, 0.0)
	assert.LessOrEqual(t, resp.Confidence, 1.0)
	assert.NotEmpty(t, tr.Snapshot())
}

func TestRun_FailsWhenOnlyOneSystemResolves(t *testing.T) {
	reg := fixtureRegistry(t)
	o := New(reg, nil, safety.DefaultLimits())

	_, _, err := o.Run(context.Background(), Request{Query: "ledger balance query"})
	require.Error(t, err)
}

// fixtureRebaseRegistry models a rule whose natural grain (loan) differs from
// the task's required grain (customer), connected by a maps_grain edge — the
// same shape as the grain resolver's own maps_grain fixture, but wired
// through a rule the orchestrator can actually compile and run.
func fixtureRebaseRegistry(t *testing.T) *catalog.Registry {
	t.Helper()
	dir := t.TempDir()
	loansPath := writeCSV(t, dir, "loans.csv", "loan_id,customer_id,amount\nL1,C1,100\nL2,C1,50\nL3,C2,30\n")
	mapPath := writeCSV(t, dir, "loan_customer_map.csv", "loan_id,customer_id\nL1,C1\nL2,C1\nL3,C2\n")

	entities := []catalog.Entity{
		{ID: "loan", Name: "Loan"},
		{ID: "customer", Name: "Customer"},
	}
	tables := []catalog.Table{
		{
			Name:         "ledger.loans",
			System:       "ledger",
			Entity:       "loan",
			PhysicalPath: loansPath,
			Columns: []catalog.Column{
				{Name: "loan_id", Type: catalog.DataTypeString},
				{Name: "customer_id", Type: catalog.DataTypeString},
				{Name: "amount", Type: catalog.DataTypeFloat64},
			},
			PrimaryKey: []string{"loan_id"},
		},
		{
			Name:         "billing.loan_customer_map",
			System:       "billing",
			Entity:       "loan",
			PhysicalPath: mapPath,
			Columns: []catalog.Column{
				{Name: "loan_id", Type: catalog.DataTypeString},
				{Name: "customer_id", Type: catalog.DataTypeString},
			},
		},
	}
	rules := []catalog.Rule{
		{ID: "ledger.balance_by_loan", System: "ledger", Metric: "balance", SourceEntities: []string{"loan"}, Formula: "amount", TargetGrain: []string{"loan_id"}},
	}
	metrics := []catalog.Metric{{ID: "balance", DisplayName: "Balance", DefaultAggregation: "sum"}}
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

// TestRunSide_RebasesOntoRequiredEntity guards the fix for the orchestrator
// calling Resolve with the rule's own entity on both sides of the rebase,
// which made grain rebasing a silent no-op for every cross-grain rule (spec
// §8 S4/S5 loan-to-customer rebase via a maps_grain edge). Passing a
// requiredEntity distinct from the rule's natural entity is the case the
// same-grain fixtureRegistry above never exercises.
func TestRunSide_RebasesOntoRequiredEntity(t *testing.T) {
	reg := fixtureRebaseRegistry(t)
	o := New(reg, nil, safety.DefaultLimits())
	rule, ok := reg.Rule("ledger.balance_by_loan")
	require.True(t, ok)

	tr := trace.NewExecutionTrace("test", 64)
	result, err := o.runSide(context.Background(), tr, rule, []string{"customer_id"}, "customer")
	require.NoError(t, err)

	assert.Equal(t, []string{"customer_id"}, result.GrainKey)

	totals := map[string]float64{}
	for i := 0; i < result.DataFrame.NumRows(); i++ {
		row := result.DataFrame.Row(i)
		totals[row["customer_id"].(string)] = row["balance"].(float64)
	}
	assert.Equal(t, map[string]float64{"C1": 150, "C2": 30}, totals)
}
