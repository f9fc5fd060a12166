package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureCatalog() ([]Entity, []Table, []Rule, []Metric, []LineageEdge, []TimeRule) {
	entities := []Entity{
		{ID: "loan", Name: "Loan", NaturalKey: []string{"loan_id"}},
		{ID: "customer", Name: "Customer", NaturalKey: []string{"customer_id"}},
	}
	tables := []Table{
		{
			Name:   "ledger.loans",
			System: "ledger",
			Entity: "loan",
			Columns: []Column{
				{Name: "loan_id", Type: DataTypeString, Tags: []ColumnTag{TagKeyNatural}},
				{Name: "customer_id", Type: DataTypeString},
				{Name: "outstanding", Type: DataTypeFloat64, Tags: []ColumnTag{TagFactAmount}},
			},
			PrimaryKey: []string{"loan_id"},
		},
		{
			Name:   "billing.loan_customer_map",
			System: "billing",
			Entity: "loan",
			Columns: []Column{
				{Name: "loan_id", Type: DataTypeString},
				{Name: "customer_id", Type: DataTypeString},
			},
		},
	}
	rules := []Rule{
		{
			ID:             "ledger.total_outstanding",
			System:         "ledger",
			Metric:         "total_outstanding",
			SourceEntities: []string{"loan"},
			Formula:        "outstanding",
			TargetGrain:    []string{"loan_id"},
		},
	}
	metrics := []Metric{
		{ID: "total_outstanding", DisplayName: "Total Outstanding", DefaultAggregation: "sum"},
	}
	edges := []LineageEdge{
		{
			From:         "loan",
			To:           "customer",
			Relationship: RelationMapsGrain,
			JoinKeys:     []JoinKey{{LeftColumn: "loan_id", RightColumn: "loan_id", Operator: "="}},
			Table:        "billing.loan_customer_map",
		},
	}
	return entities, tables, rules, metrics, edges, nil
}

func TestFromMemory_ValidCatalog(t *testing.T) {
	entities, tables, rules, metrics, edges, timeRules := fixtureCatalog()
	reg, err := FromMemory(entities, tables, rules, metrics, edges, timeRules)
	require.NoError(t, err)

	e, ok := reg.Entity("loan")
	require.True(t, ok)
	assert.Equal(t, "Loan", e.Name)

	tbl, ok := reg.Table("ledger.loans")
	require.True(t, ok)
	assert.True(t, tbl.HasColumn("outstanding"))

	rs := reg.RulesForSystemMetric("ledger", "total_outstanding")
	require.Len(t, rs, 1)
	assert.Equal(t, "ledger.total_outstanding", rs[0].ID)

	assert.Equal(t, []string{"billing", "ledger"}, reg.AllSystems())
}

func TestFromMemory_RejectsUnknownEntity(t *testing.T) {
	entities, tables, rules, metrics, edges, timeRules := fixtureCatalog()
	tables[0].Entity = "nonexistent"
	_, err := FromMemory(entities, tables, rules, metrics, edges, timeRules)
	require.Error(t, err)
}

func TestFromMemory_RejectsRuleWithEmptyGrain(t *testing.T) {
	entities, tables, rules, metrics, edges, timeRules := fixtureCatalog()
	rules[0].TargetGrain = nil
	_, err := FromMemory(entities, tables, rules, metrics, edges, timeRules)
	require.Error(t, err)
}

func TestFromMemory_RejectsMapsGrainEdgeWithoutTable(t *testing.T) {
	entities, tables, rules, metrics, edges, timeRules := fixtureCatalog()
	edges[0].Table = ""
	_, err := FromMemory(entities, tables, rules, metrics, edges, timeRules)
	require.Error(t, err)
}

func TestFromMemory_RejectsMapsGrainEdgeMissingJoinColumn(t *testing.T) {
	entities, tables, rules, metrics, edges, timeRules := fixtureCatalog()
	edges[0].JoinKeys = []JoinKey{{LeftColumn: "does_not_exist", RightColumn: "loan_id", Operator: "="}}
	_, err := FromMemory(entities, tables, rules, metrics, edges, timeRules)
	require.Error(t, err)
}
