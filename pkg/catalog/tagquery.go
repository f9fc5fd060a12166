package catalog

import (
	"fmt"

	"github.com/itchyny/gojq"
)

// ColumnsMatching evaluates a jq filter against each column's metadata (name,
// type, nullable, semantic tags — spec §3 "Table") and returns the columns
// for which the filter produces a truthy result. This fronts the columnar
// data layer with the same jq-based metadata filtering the teacher's
// transform executor uses for its "jq" transform type, repointed here at
// column metadata instead of arbitrary JSON payloads.
func (t *Table) ColumnsMatching(jqFilter string) ([]Column, error) {
	query, err := gojq.Parse(jqFilter)
	if err != nil {
		return nil, fmt.Errorf("parsing column metadata filter %q: %w", jqFilter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compiling column metadata filter %q: %w", jqFilter, err)
	}

	var matched []Column
	for _, c := range t.Columns {
		tags := make([]string, len(c.Tags))
		for i, tag := range c.Tags {
			tags[i] = string(tag)
		}
		input := map[string]any{
			"name":     c.Name,
			"type":     string(c.Type),
			"nullable": c.Nullable,
			"tags":     tags,
		}

		iter := code.Run(input)
		for {
			v, ok := iter.Next()
			if !ok {
				break
			}
			if err, ok := v.(error); ok {
				return nil, fmt.Errorf("evaluating column metadata filter on %q.%q: %w", t.Name, c.Name, err)
			}
			if truthy(v) {
				matched = append(matched, c)
				break
			}
		}
	}
	return matched, nil
}

func truthy(v any) bool {
	return v != nil && v != false
}
