// Package planner implements the Rule Compiler (spec §4.4): given a catalog
// rule, produce a LogicalPlan — a closed tagged union of operators the
// executor (pkg/exec) runs in exactly the order they were appended.
package planner

import "github.com/reconciliation-rca/engine/pkg/catalog"

// OpKind discriminates the LogicalPlan operator union (spec §6: "the core
// depends abstractly on open/scan/join/group/collect" — these operator kinds
// are the closed set compiled onto a plan).
type OpKind string

const (
	OpScan   OpKind = "scan"
	OpFilter OpKind = "filter"
	OpJoin   OpKind = "join"
	OpDerive OpKind = "derive"
	OpGroup  OpKind = "group"
	OpProject OpKind = "project"
)

// ScanSpec seeds a plan from a physical table.
type ScanSpec struct {
	Table string
}

// FilterSpec is a predicate, expr-lang syntax, evaluated against the
// accumulated row schema at this point in the plan.
type FilterSpec struct {
	Predicate string
}

// JoinSpec is one Join operator; How is the join type derived from the traversed relationship
// (spec §4.4 step 2: "parent_of → left join from child to parent; has_many →
// left join from parent to child").
type JoinSpec struct {
	RightTable string
	Keys       []catalog.JoinKey
	How        string // "inner", "left", "full"
	// ThroughTable is set when the edge traverses a maps_grain mapping table
	// rather than joining RightTable directly.
	ThroughTable string
	// RequiresFanoutCheck marks a join appended by the grain resolver for a
	// maps_grain edge: the executor must verify, at runtime, that the
	// mapping table's cardinality on the fact side is bounded by
	// FanoutCeiling × the fact side's row count before running the join
	// (spec §4.5: "this is a runtime check after ingestion, not a
	// compile-time check").
	RequiresFanoutCheck bool
	FanoutCeiling       int
}

// DeriveSpec evaluates a formula expression, producing one new column.
type DeriveSpec struct {
	As         string
	Expression string
}

// GroupSpec partitions by Keys and aggregates Column with Aggregation,
// naming the output column As.
type GroupSpec struct {
	Keys        []string
	Column      string
	Aggregation string
	As          string
}

// ProjectSpec is the terminal operator: the plan's output schema.
type ProjectSpec struct {
	Columns []string
}

// Operator is one node of a LogicalPlan. Exactly one of the Spec fields is
// populated, selected by Kind — Go has no sum types, so this is the
// idiomatic tagged-union shape (mirrors the teacher's models.Node, which
// discriminates on a Type string and a single typed Config payload).
type Operator struct {
	Kind    OpKind
	Scan    *ScanSpec
	Filter  *FilterSpec
	Join    *JoinSpec
	Derive  *DeriveSpec
	Group   *GroupSpec
	Project *ProjectSpec
}

// LogicalPlan is an ordered list of operators compiled from one rule,
// plus the grain it ultimately groups by — the field downstream diff reads
// instead of re-deriving it (spec §4.6: "results carry an explicit grain_key
// field so downstream diff does not guess").
type LogicalPlan struct {
	RuleID    string
	Operators []Operator
	GrainKey  []string
	// MetricColumn is the name of the derived metric column, the second half
	// of the terminal project (spec §8 invariant 1: "target_grain(r) ∪
	// {metric_column(r)}").
	MetricColumn string
}

func (p *LogicalPlan) append(op Operator) {
	p.Operators = append(p.Operators, op)
}
