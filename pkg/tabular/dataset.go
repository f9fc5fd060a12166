package tabular

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Predicate is the boxed argument Scan takes: an expr-lang boolean
// expression evaluated against each row's column map. An empty Expr means
// "no filter" — the LogicalPlan Scan operator has no predicate of its own
// (filtering is a separate Filter node), but callers that only need a scan
// over physical storage can still push one down.
type Predicate struct {
	Expr string
}

// Dataset is the abstract tabular-data interface the rest of the engine
// depends on (spec §6: "an embedded tabular-data library ... open(path) →
// Dataset, scan(cols, pred), join(other, keys, how), group(keys, aggs),
// collect() → DataFrame"). inMemoryDataset below is the only implementation;
// the interface exists so pkg/exec never imports CSV/SQL specifics.
type Dataset interface {
	Scan(ctx context.Context, cols []string, pred Predicate) (Dataset, error)
	Join(ctx context.Context, other Dataset, keys []JoinKeyPair, how JoinType) (Dataset, error)
	Group(ctx context.Context, keys []string, aggs []Aggregation) (Dataset, error)
	Collect(ctx context.Context) (*DataFrame, error)
}

type inMemoryDataset struct {
	df *DataFrame
}

// FromDataFrame wraps an already-built DataFrame as a Dataset, the path
// pkg/grain and pkg/exec use once a table's rows are materialised in memory.
func FromDataFrame(df *DataFrame) Dataset {
	return &inMemoryDataset{df: df}
}

func (d *inMemoryDataset) Scan(ctx context.Context, cols []string, pred Predicate) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := d.df
	var err error
	if pred.Expr != "" {
		out, err = out.Filter(pred.Expr)
		if err != nil {
			return nil, err
		}
	}
	if len(cols) > 0 {
		out, err = out.Project(cols)
		if err != nil {
			return nil, err
		}
	}
	return &inMemoryDataset{df: out}, nil
}

func (d *inMemoryDataset) Join(ctx context.Context, other Dataset, keys []JoinKeyPair, how JoinType) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	otherDF, err := other.Collect(ctx)
	if err != nil {
		return nil, err
	}
	joined, err := d.df.Join(otherDF, keys, how)
	if err != nil {
		return nil, err
	}
	return &inMemoryDataset{df: joined}, nil
}

func (d *inMemoryDataset) Group(ctx context.Context, keys []string, aggs []Aggregation) (Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	grouped, err := d.df.GroupBy(keys, aggs)
	if err != nil {
		return nil, err
	}
	return &inMemoryDataset{df: grouped}, nil
}

func (d *inMemoryDataset) Collect(ctx context.Context) (*DataFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.df, nil
}

// Open loads a table's physical CSV file into a Dataset. Physical tables in
// the catalogue (catalog.Table.PhysicalPath) name a CSV file with a header
// row; this is the one physical format the reference deployment ships with
// (spec §1 non-goal: "not a general-purpose connector framework" — Open is
// deliberately narrow, not a pluggable-source registry).
func Open(path string, schema Schema) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %q: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %q: %w", path, err)
	}
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[strings.TrimSpace(h)] = i
	}

	var rows []map[string]any
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		row := make(map[string]any, len(schema))
		for _, f := range schema {
			idx, ok := colIdx[f.Name]
			if !ok || idx >= len(record) {
				row[f.Name] = nil
				continue
			}
			row[f.Name] = parseCell(record[idx], f.Type)
		}
		rows = append(rows, row)
	}

	return &inMemoryDataset{df: NewDataFrame(schema, rows)}, nil
}

func parseCell(raw string, t FieldType) any {
	if raw == "" {
		return nil
	}
	switch t {
	case FieldFloat64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil
		}
		return v
	case FieldInt64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil
		}
		return v
	case FieldBool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil
		}
		return v
	default:
		return raw
	}
}
