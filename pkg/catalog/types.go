// Package catalog implements the Metadata Registry (spec §4.1): a
// read-optimised, immutable-after-load in-memory catalogue of entities,
// tables, rules, metrics, and lineage edges.
package catalog

import "time"

// Entity is a business concept (loan, customer, emi, transaction).
type Entity struct {
	ID         string
	Name       string
	NaturalKey []string // natural key columns
	Parents    []string // parent entity ids, for multi-grain hierarchies
}

// ColumnTag is a semantic tag attached to a Column (spec §3 "Table").
type ColumnTag string

const (
	TagKeyNatural ColumnTag = "key/natural"
	TagTimeEvent  ColumnTag = "time/event"
	TagFactAmount ColumnTag = "fact/amount"
)

// DataType is the declared column data type.
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeFloat64 DataType = "float64"
	DataTypeInt64   DataType = "int64"
	DataTypeBool    DataType = "bool"
	DataTypeTime    DataType = "time"
)

// Column describes one column of a Table.
type Column struct {
	Name     string
	Type     DataType
	Nullable bool
	Tags     []ColumnTag
}

// HasTag reports whether the column carries the given semantic tag.
func (c Column) HasTag(tag ColumnTag) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Table is a named columnar dataset (spec §3 "Table").
type Table struct {
	Name         string // schema-qualified name
	System       string // system label, e.g. "ledger", "billing"
	Entity       string // owning entity id
	Columns      []Column
	PrimaryKey   []string
	PhysicalPath string
}

// Column looks up a column by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Rule is a computation that materialises a metric for one system at a
// declared grain (spec §3 "Rule").
type Rule struct {
	ID             string
	System         string
	Metric         string
	SourceEntities []string // ordered
	Formula        string   // expr-lang expression referencing column names
	TargetGrain    []string // ordered column names
	Filter         string   // optional predicate, expr-lang syntax
	TimePredicate  string   // optional time predicate, expr-lang syntax
}

// Metric is a measurement name (spec §3 "Metric").
type Metric struct {
	ID                string
	DisplayName       string
	Units             string
	DefaultAggregation string // "sum", "count", "avg", "min", "max"
	AllowedDimensions []string
	AbsTolerance      float64
	RelTolerance      float64
}

// Relationship labels a LineageEdge (spec §3 "Entity").
type Relationship string

const (
	RelationParentOf  Relationship = "parent_of"
	RelationHasMany   Relationship = "has_many"
	RelationBelongsTo Relationship = "belongs_to"
	RelationMapsGrain Relationship = "maps_grain"
)

// JoinKey is one column-pair-operator triple used to traverse a LineageEdge.
type JoinKey struct {
	LeftColumn  string
	RightColumn string
	Operator    string // "=", "<=", ">=", etc. — almost always "="
}

// LineageEdge is a directed, typed relationship between entities used for
// join-path planning (spec §3 "Lineage Edge").
type LineageEdge struct {
	From         string
	To           string
	Relationship Relationship
	JoinKeys     []JoinKey
	// Table is the join/mapping table the edge traverses through, when the
	// edge isn't a direct column-to-column relation on the from/to tables
	// themselves (maps_grain edges always name one).
	Table string
	// FanoutCeiling overrides the grain resolver's global fan-out ceiling
	// for this edge specifically (spec §9 open question: "a per-edge
	// override is a reasonable extension"). Zero means "use the global default".
	FanoutCeiling int
}

// TimeRule declares how freshness is evaluated for a table (used by C9's
// freshness classification and C10's confidence model).
type TimeRule struct {
	Table           string
	Column          string // the time/event column this rule governs
	LastUpdatedFunc string // "max_column" or "ingestion_timestamp"
	LastUpdated     time.Time
}
