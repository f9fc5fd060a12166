// Package tabular implements the embedded columnar data layer the executor
// (pkg/exec) depends on abstractly (spec §6: "open(path) → Dataset, scan(cols,
// pred), join(other, keys, how), group(keys, aggs), collect() → DataFrame").
// This package is the one concrete implementation; spec §1 non-goal (i)
// ("not a SQL engine") keeps its surface intentionally narrow: scan, filter,
// join, derive, group, project — exactly the LogicalPlan operator set.
package tabular

import (
	"fmt"
	"sort"
)

// FieldType is the declared type of a DataFrame column.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldFloat64 FieldType = "float64"
	FieldInt64   FieldType = "int64"
	FieldBool    FieldType = "bool"
	FieldTime    FieldType = "time"
)

// Field describes one column of a DataFrame schema.
type Field struct {
	Name string
	Type FieldType
}

// Schema is an ordered list of fields.
type Schema []Field

// Names returns the field names in schema order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Name
	}
	return out
}

// Has reports whether the schema declares the named field.
func (s Schema) Has(name string) bool {
	for _, f := range s {
		if f.Name == name {
			return true
		}
	}
	return false
}

// column is a single column's storage: boxed values plus a parallel null
// bitmap. Boxing keeps the implementation a single generic type instead of
// one Go type per FieldType; DESIGN.md records this as the deliberate
// standard-library-shaped tradeoff (no third-party columnar/Arrow library
// appeared anywhere in the example pack to ground a typed-array design on).
type column struct {
	values []any
	null   []bool
}

// DataFrame is an in-memory, column-oriented table: the concrete value type
// ExecutionResult wraps (spec §3 "ExecutionResult").
type DataFrame struct {
	schema  Schema
	columns map[string]*column
	numRows int
}

// NewDataFrame builds a DataFrame from row-oriented data, a natural
// ingestion shape for catalog fixtures and tests; internally the data is
// transposed into column storage.
func NewDataFrame(schema Schema, rows []map[string]any) *DataFrame {
	df := &DataFrame{
		schema:  schema,
		columns: make(map[string]*column, len(schema)),
		numRows: len(rows),
	}
	for _, f := range schema {
		col := &column{values: make([]any, len(rows)), null: make([]bool, len(rows))}
		for i, row := range rows {
			v, ok := row[f.Name]
			if !ok || v == nil {
				col.null[i] = true
				continue
			}
			col.values[i] = v
		}
		df.columns[f.Name] = col
	}
	return df
}

// Schema returns the DataFrame's column schema.
func (df *DataFrame) Schema() Schema { return df.schema }

// NumRows returns the number of rows.
func (df *DataFrame) NumRows() int { return df.numRows }

// Row materialises row i as a map, the shape expr-lang predicates and
// Derive expressions evaluate against.
func (df *DataFrame) Row(i int) map[string]any {
	row := make(map[string]any, len(df.schema))
	for _, f := range df.schema {
		col := df.columns[f.Name]
		if col.null[i] {
			row[f.Name] = nil
		} else {
			row[f.Name] = col.values[i]
		}
	}
	return row
}

// Column returns the raw values and null bitmap for a column.
func (df *DataFrame) Column(name string) ([]any, []bool, bool) {
	col, ok := df.columns[name]
	if !ok {
		return nil, nil, false
	}
	return col.values, col.null, true
}

// ValueAt returns the value of column `name` at row `i`, or nil if null.
func (df *DataFrame) ValueAt(name string, i int) any {
	col, ok := df.columns[name]
	if !ok || col.null[i] {
		return nil
	}
	return col.values[i]
}

// Project keeps only the named columns, in the given order — the terminal
// operator of every LogicalPlan (spec §4.4 step 6).
func (df *DataFrame) Project(cols []string) (*DataFrame, error) {
	for _, c := range cols {
		if !df.schema.Has(c) {
			return nil, fmt.Errorf("project: unknown column %q", c)
		}
	}
	newSchema := make(Schema, 0, len(cols))
	for _, c := range cols {
		for _, f := range df.schema {
			if f.Name == c {
				newSchema = append(newSchema, f)
				break
			}
		}
	}
	out := &DataFrame{schema: newSchema, columns: make(map[string]*column, len(cols)), numRows: df.numRows}
	for _, c := range cols {
		out.columns[c] = df.columns[c]
	}
	return out, nil
}

// sliceRows returns the rows at the given indices, preserving order — used by
// Filter and SortBy to build a new DataFrame without copying unused rows.
func (df *DataFrame) sliceRows(indices []int) *DataFrame {
	out := &DataFrame{schema: df.schema, columns: make(map[string]*column, len(df.schema)), numRows: len(indices)}
	for _, f := range df.schema {
		src := df.columns[f.Name]
		col := &column{values: make([]any, len(indices)), null: make([]bool, len(indices))}
		for j, idx := range indices {
			col.values[j] = src.values[idx]
			col.null[j] = src.null[idx]
		}
		out.columns[f.Name] = col
	}
	return out
}

// SortBy orders rows by the named columns, ascending, using a stable sort so
// repeated sorts compose (used to make diff output and grouped results
// deterministic — spec §4.7 "Determinism", §8 "byte-identical results").
func (df *DataFrame) SortBy(cols ...string) *DataFrame {
	indices := make([]int, df.numRows)
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		ia, ib := indices[a], indices[b]
		for _, c := range cols {
			va, vb := df.ValueAt(c, ia), df.ValueAt(c, ib)
			cmp := compareValues(va, vb)
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return df.sliceRows(indices)
}

// compareValues orders two boxed scalar values, nil last, matching the
// grain-value lexicographic tie-break spec §4.7 requires for diff determinism.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	switch av := a.(type) {
	case string:
		bv, _ := b.(string)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case float64:
		bv := toFloat(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case int64:
		bv := toFloat(b)
		av2 := float64(av)
		switch {
		case av2 < bv:
			return -1
		case av2 > bv:
			return 1
		default:
			return 0
		}
	case bool:
		bv, _ := b.(bool)
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	default:
		return 0
	}
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
