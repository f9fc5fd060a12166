package tabular

import (
	"fmt"
)

// Filter evaluates predicate against every row and keeps only the rows for
// which it is true — the LogicalPlan Filter operator (spec §4.4 step 3:
// "Filter: append rule.filter as a Filter node evaluated with expr-lang").
// An empty predicate keeps every row.
func (df *DataFrame) Filter(predicate string) (*DataFrame, error) {
	if predicate == "" {
		return df, nil
	}
	keep := make([]int, 0, df.numRows)
	for i := 0; i < df.numRows; i++ {
		ok, err := evalBool(predicate, df.Row(i))
		if err != nil {
			return nil, fmt.Errorf("filter row %d: %w", i, err)
		}
		if ok {
			keep = append(keep, i)
		}
	}
	return df.sliceRows(keep), nil
}

// Derive evaluates expression against every row and appends the result as a
// new column named `as` — the LogicalPlan Derive operator (spec §4.4 step 4:
// "Derive: evaluate rule.formula ... producing one new column per rule").
func (df *DataFrame) Derive(as, expression string, fieldType FieldType) (*DataFrame, error) {
	if df.schema.Has(as) {
		return nil, fmt.Errorf("derive: column %q already exists", as)
	}
	values := make([]any, df.numRows)
	nulls := make([]bool, df.numRows)
	for i := 0; i < df.numRows; i++ {
		v, err := evalValue(expression, df.Row(i))
		if err != nil {
			return nil, fmt.Errorf("derive %q row %d: %w", as, i, err)
		}
		if v == nil {
			nulls[i] = true
		} else {
			values[i] = v
		}
	}
	out := &DataFrame{
		schema:  append(append(Schema{}, df.schema...), Field{Name: as, Type: fieldType}),
		columns: make(map[string]*column, len(df.schema)+1),
		numRows: df.numRows,
	}
	for name, col := range df.columns {
		out.columns[name] = col
	}
	out.columns[as] = &column{values: values, null: nulls}
	return out, nil
}

// JoinType enumerates the join semantics pkg/grain and pkg/diff need: inner
// joins for ordinary lineage traversal, and a full outer join for the grain
// diff step (spec §4.7: "a full outer join on grain_key").
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
	JoinFull  JoinType = "full"
)

// JoinKeyPair names one equality condition of a join: left.LeftColumn =
// right.RightColumn.
type JoinKeyPair struct {
	LeftColumn  string
	RightColumn string
}

// Join implements the LogicalPlan Join operator (spec §4.4 step 2: "append a
// Join node for each lineage edge traversed") and the grain-diff full outer
// join (spec §4.7). Joined column names from the right side that collide
// with the left are prefixed "right_" to keep the output schema unambiguous.
func (df *DataFrame) Join(other *DataFrame, keys []JoinKeyPair, how JoinType) (*DataFrame, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("join: no join keys given")
	}
	for _, k := range keys {
		if !df.schema.Has(k.LeftColumn) {
			return nil, fmt.Errorf("join: left side missing column %q", k.LeftColumn)
		}
		if !other.schema.Has(k.RightColumn) {
			return nil, fmt.Errorf("join: right side missing column %q", k.RightColumn)
		}
	}

	type rightIdx struct {
		idx int
	}
	index := make(map[string][]rightIdx, other.numRows)
	for j := 0; j < other.numRows; j++ {
		index[joinKeyOf(other, keys, false, j)] = append(index[joinKeyOf(other, keys, false, j)], rightIdx{idx: j})
	}

	rightFields, rightNameOf := joinedRightSchema(df.schema, other.schema)
	outSchema := append(append(Schema{}, df.schema...), rightFields...)

	var leftIdxOut, rightIdxOut []int // -1 denotes an unmatched (null) side
	matchedRight := make([]bool, other.numRows)

	for i := 0; i < df.numRows; i++ {
		matches := index[joinKeyOf(df, keys, true, i)]
		if len(matches) == 0 {
			if how == JoinLeft || how == JoinFull {
				leftIdxOut = append(leftIdxOut, i)
				rightIdxOut = append(rightIdxOut, -1)
			}
			continue
		}
		for _, m := range matches {
			leftIdxOut = append(leftIdxOut, i)
			rightIdxOut = append(rightIdxOut, m.idx)
			matchedRight[m.idx] = true
		}
	}
	if how == JoinFull {
		for j := 0; j < other.numRows; j++ {
			if !matchedRight[j] {
				leftIdxOut = append(leftIdxOut, -1)
				rightIdxOut = append(rightIdxOut, j)
			}
		}
	}

	out := &DataFrame{schema: outSchema, columns: make(map[string]*column, len(outSchema)), numRows: len(leftIdxOut)}
	for _, f := range df.schema {
		col := &column{values: make([]any, len(leftIdxOut)), null: make([]bool, len(leftIdxOut))}
		for row, li := range leftIdxOut {
			if li < 0 {
				col.null[row] = true
				continue
			}
			col.values[row] = df.ValueAt(f.Name, li)
			if col.values[row] == nil {
				col.null[row] = true
			}
		}
		out.columns[f.Name] = col
	}
	for _, f := range other.schema {
		outName := rightNameOf[f.Name]
		col := &column{values: make([]any, len(rightIdxOut)), null: make([]bool, len(rightIdxOut))}
		for row, ri := range rightIdxOut {
			if ri < 0 {
				col.null[row] = true
				continue
			}
			col.values[row] = other.ValueAt(f.Name, ri)
			if col.values[row] == nil {
				col.null[row] = true
			}
		}
		out.columns[outName] = col
	}
	return out, nil
}

func joinedRightSchema(left, right Schema) (Schema, map[string]string) {
	nameOf := make(map[string]string, len(right))
	out := make(Schema, 0, len(right))
	for _, f := range right {
		name := f.Name
		if left.Has(name) {
			name = "right_" + name
		}
		nameOf[f.Name] = name
		out = append(out, Field{Name: name, Type: f.Type})
	}
	return out, nameOf
}

func joinKeyOf(df *DataFrame, keys []JoinKeyPair, isLeft bool, row int) string {
	s := ""
	for _, k := range keys {
		col := k.RightColumn
		if isLeft {
			col = k.LeftColumn
		}
		s += fmt.Sprintf("%v\x1f", df.ValueAt(col, row))
	}
	return s
}

// AggFunc enumerates the aggregation functions the Group operator supports
// (spec §4.4 step 5: "Group: group rows by target_grain, aggregating the
// derived column per rule.metric.default_aggregation").
type AggFunc string

const (
	AggSum   AggFunc = "sum"
	AggAvg   AggFunc = "avg"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
	AggCount AggFunc = "count"
	AggFirst AggFunc = "first"
)

// Aggregation names one output column of a Group operator: apply Func to
// Column, producing a column named As.
type Aggregation struct {
	Column string
	Func   AggFunc
	As     string
}

// GroupBy implements the LogicalPlan Group operator: partitions rows by the
// values of `keys`, applies each Aggregation within each partition, and
// returns one output row per distinct key combination, sorted by key for
// determinism (spec §4.7).
func (df *DataFrame) GroupBy(keys []string, aggs []Aggregation) (*DataFrame, error) {
	for _, k := range keys {
		if !df.schema.Has(k) {
			return nil, fmt.Errorf("group: unknown key column %q", k)
		}
	}
	for _, a := range aggs {
		if a.Func != AggCount && !df.schema.Has(a.Column) {
			return nil, fmt.Errorf("group: unknown aggregation column %q", a.Column)
		}
	}

	type bucket struct {
		keyVals []any
		rows    []int
	}
	order := []string{}
	buckets := map[string]*bucket{}
	for i := 0; i < df.numRows; i++ {
		keyStr := ""
		keyVals := make([]any, len(keys))
		for ki, k := range keys {
			v := df.ValueAt(k, i)
			keyVals[ki] = v
			keyStr += fmt.Sprintf("%v\x1f", v)
		}
		b, ok := buckets[keyStr]
		if !ok {
			b = &bucket{keyVals: keyVals}
			buckets[keyStr] = b
			order = append(order, keyStr)
		}
		b.rows = append(b.rows, i)
	}

	outSchema := make(Schema, 0, len(keys)+len(aggs))
	for _, k := range keys {
		for _, f := range df.schema {
			if f.Name == k {
				outSchema = append(outSchema, f)
				break
			}
		}
	}
	for _, a := range aggs {
		typ := FieldFloat64
		if a.Func == AggCount {
			typ = FieldInt64
		} else if a.Func == AggFirst {
			typ = fieldTypeOf(df.schema, a.Column)
		}
		outSchema = append(outSchema, Field{Name: a.As, Type: typ})
	}

	rows := make([]map[string]any, 0, len(order))
	for _, keyStr := range order {
		b := buckets[keyStr]
		row := make(map[string]any, len(outSchema))
		for ki, k := range keys {
			row[k] = b.keyVals[ki]
		}
		for _, a := range aggs {
			row[a.As] = aggregate(df, a, b.rows)
		}
		rows = append(rows, row)
	}
	return NewDataFrame(outSchema, rows).SortBy(keys...), nil
}

func fieldTypeOf(s Schema, name string) FieldType {
	for _, f := range s {
		if f.Name == name {
			return f.Type
		}
	}
	return FieldString
}

func aggregate(df *DataFrame, a Aggregation, rows []int) any {
	switch a.Func {
	case AggCount:
		return int64(len(rows))
	case AggFirst:
		if len(rows) == 0 {
			return nil
		}
		return df.ValueAt(a.Column, rows[0])
	}

	var sum float64
	var n int
	var min, max float64
	first := true
	for _, i := range rows {
		v := df.ValueAt(a.Column, i)
		if v == nil {
			continue
		}
		f := toFloat(v)
		sum += f
		n++
		if first || f < min {
			min = f
		}
		if first || f > max {
			max = f
		}
		first = false
	}
	switch a.Func {
	case AggSum:
		return sum
	case AggAvg:
		if n == 0 {
			return 0.0
		}
		return sum / float64(n)
	case AggMin:
		return min
	case AggMax:
		return max
	default:
		return nil
	}
}
