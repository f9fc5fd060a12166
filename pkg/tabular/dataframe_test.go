package tabular

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSchema() Schema {
	return Schema{
		{Name: "loan_id", Type: FieldString},
		{Name: "customer_id", Type: FieldString},
		{Name: "outstanding", Type: FieldFloat64},
	}
}

func sampleFrame() *DataFrame {
	return NewDataFrame(sampleSchema(), []map[string]any{
		{"loan_id": "L1", "customer_id": "C1", "outstanding": 100.0},
		{"loan_id": "L2", "customer_id": "C1", "outstanding": 50.0},
		{"loan_id": "L3", "customer_id": "C2", "outstanding": 0.0},
	})
}

func TestFilter_KeepsMatchingRows(t *testing.T) {
	df := sampleFrame()
	out, err := df.Filter("outstanding > 0")
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumRows())
}

func TestFilter_EmptyPredicateIsNoOp(t *testing.T) {
	df := sampleFrame()
	out, err := df.Filter("")
	require.NoError(t, err)
	assert.Equal(t, df.NumRows(), out.NumRows())
}

func TestDerive_AppendsComputedColumn(t *testing.T) {
	df := sampleFrame()
	out, err := df.Derive("outstanding_cents", "outstanding * 100", FieldFloat64)
	require.NoError(t, err)
	assert.Equal(t, 10000.0, out.ValueAt("outstanding_cents", 0))
}

func TestDerive_RejectsDuplicateColumn(t *testing.T) {
	df := sampleFrame()
	_, err := df.Derive("outstanding", "outstanding", FieldFloat64)
	assert.Error(t, err)
}

func TestProject_KeepsOnlyRequestedColumns(t *testing.T) {
	df := sampleFrame()
	out, err := df.Project([]string{"loan_id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"loan_id"}, out.Schema().Names())
}

func TestProject_RejectsUnknownColumn(t *testing.T) {
	df := sampleFrame()
	_, err := df.Project([]string{"does_not_exist"})
	assert.Error(t, err)
}

func TestSortBy_OrdersDeterministically(t *testing.T) {
	df := sampleFrame()
	out := df.SortBy("customer_id", "loan_id")
	assert.Equal(t, "L1", out.ValueAt("loan_id", 0))
	assert.Equal(t, "L2", out.ValueAt("loan_id", 1))
	assert.Equal(t, "L3", out.ValueAt("loan_id", 2))
}

func mapSchema() Schema {
	return Schema{
		{Name: "loan_id", Type: FieldString},
		{Name: "customer_id", Type: FieldString},
	}
}

func customerSchema() Schema {
	return Schema{
		{Name: "customer_id", Type: FieldString},
		{Name: "region", Type: FieldString},
	}
}

func TestJoin_InnerDropsUnmatchedRows(t *testing.T) {
	left := sampleFrame()
	right := NewDataFrame(customerSchema(), []map[string]any{
		{"customer_id": "C1", "region": "west"},
	})
	out, err := left.Join(right, []JoinKeyPair{{LeftColumn: "customer_id", RightColumn: "customer_id"}}, JoinInner)
	require.NoError(t, err)
	assert.Equal(t, 2, out.NumRows())
	assert.True(t, out.Schema().Has("right_customer_id"))
}

func TestJoin_FullOuterKeepsUnmatchedBothSides(t *testing.T) {
	left := sampleFrame()
	right := NewDataFrame(customerSchema(), []map[string]any{
		{"customer_id": "C1", "region": "west"},
		{"customer_id": "C9", "region": "east"},
	})
	out, err := left.Join(right, []JoinKeyPair{{LeftColumn: "customer_id", RightColumn: "customer_id"}}, JoinFull)
	require.NoError(t, err)
	// 2 rows matching C1, 1 unmatched left row (C2), 1 unmatched right row (C9)
	assert.Equal(t, 4, out.NumRows())
}

func TestGroupBy_AggregatesPerKey(t *testing.T) {
	df := sampleFrame()
	out, err := df.GroupBy([]string{"customer_id"}, []Aggregation{
		{Column: "outstanding", Func: AggSum, As: "total"},
		{Column: "outstanding", Func: AggCount, As: "n"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())

	totals := map[string]float64{}
	for i := 0; i < out.NumRows(); i++ {
		totals[out.ValueAt("customer_id", i).(string)] = out.ValueAt("total", i).(float64)
	}
	assert.Equal(t, 150.0, totals["C1"])
	assert.Equal(t, 0.0, totals["C2"])
}

func TestGroupBy_RejectsUnknownKey(t *testing.T) {
	df := sampleFrame()
	_, err := df.GroupBy([]string{"nope"}, nil)
	assert.Error(t, err)
}

func TestDataset_ScanJoinGroupCollect(t *testing.T) {
	ctx := context.Background()
	left := FromDataFrame(sampleFrame())
	right := FromDataFrame(NewDataFrame(customerSchema(), []map[string]any{
		{"customer_id": "C1", "region": "west"},
		{"customer_id": "C2", "region": "east"},
	}))

	scanned, err := left.Scan(ctx, nil, Predicate{Expr: "outstanding >= 0"})
	require.NoError(t, err)

	joined, err := scanned.Join(ctx, right, []JoinKeyPair{{LeftColumn: "customer_id", RightColumn: "customer_id"}}, JoinInner)
	require.NoError(t, err)

	grouped, err := joined.Group(ctx, []string{"region"}, []Aggregation{{Column: "outstanding", Func: AggSum, As: "total"}})
	require.NoError(t, err)

	df, err := grouped.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, df.NumRows())
}
