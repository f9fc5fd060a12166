package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtureTaggedTable() Table {
	return Table{
		Name:   "ledger.loans",
		System: "ledger",
		Entity: "loan",
		Columns: []Column{
			{Name: "loan_id", Type: DataTypeString, Tags: []ColumnTag{TagKeyNatural}},
			{Name: "as_of", Type: DataTypeTime, Tags: []ColumnTag{TagTimeEvent}},
			{Name: "outstanding", Type: DataTypeFloat64, Tags: []ColumnTag{TagFactAmount}},
			{Name: "notes", Type: DataTypeString},
		},
	}
}

func TestColumnsMatching_FindsColumnsByTag(t *testing.T) {
	table := fixtureTaggedTable()

	matched, err := table.ColumnsMatching(`.tags[]? == "fact/amount"`)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "outstanding", matched[0].Name)
}

func TestColumnsMatching_ReturnsNoneWhenNoTagMatches(t *testing.T) {
	table := fixtureTaggedTable()

	matched, err := table.ColumnsMatching(`.tags[]? == "semantic/currency"`)
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestColumnsMatching_MatchesOnNameAndType(t *testing.T) {
	table := fixtureTaggedTable()

	matched, err := table.ColumnsMatching(`.type == "time" or .name == "notes"`)
	require.NoError(t, err)
	var names []string
	for _, c := range matched {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"as_of", "notes"}, names)
}

func TestColumnsMatching_InvalidFilterFails(t *testing.T) {
	table := fixtureTaggedTable()

	_, err := table.ColumnsMatching(`.tags[`)
	assert.Error(t, err)
}
