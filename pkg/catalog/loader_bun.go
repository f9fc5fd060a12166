package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

func decodeJoinKeys(raw string) ([]JoinKey, error) {
	if raw == "" {
		return nil, nil
	}
	var keys []JoinKey
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// entityRow, tableRow, columnRow, ruleRow, metricRow, edgeRow, and
// timeRuleRow are the relational shapes of a one-table-per-concept
// metadata schema (spec §6: "a relational schema with one table per
// concept"), following the teacher's bun model convention
// (internal/infrastructure/storage/models): a bun.BaseModel embed naming
// the table, snake_case bun tags, and a notnull/pk annotation per column.
type entityRow struct {
	bun.BaseModel `bun:"table:catalog_entities,alias:e"`

	ID         string   `bun:"id,pk"`
	Name       string   `bun:"name,notnull"`
	NaturalKey []string `bun:"natural_key,array"`
	Parents    []string `bun:"parents,array"`
}

type columnRow struct {
	bun.BaseModel `bun:"table:catalog_columns,alias:c"`

	TableName string   `bun:"table_name,pk"`
	Name      string   `bun:"name,pk"`
	Type      string   `bun:"data_type,notnull"`
	Nullable  bool     `bun:"nullable,notnull"`
	Tags      []string `bun:"tags,array"`
}

type tableRow struct {
	bun.BaseModel `bun:"table:catalog_tables,alias:t"`

	Name         string   `bun:"name,pk"`
	System       string   `bun:"system,notnull"`
	Entity       string   `bun:"entity_id,notnull"`
	PrimaryKey   []string `bun:"primary_key,array"`
	PhysicalPath string   `bun:"physical_path,notnull"`
}

type ruleRow struct {
	bun.BaseModel `bun:"table:catalog_rules,alias:r"`

	ID             string   `bun:"id,pk"`
	System         string   `bun:"system,notnull"`
	Metric         string   `bun:"metric_id,notnull"`
	SourceEntities []string `bun:"source_entities,array"`
	Formula        string   `bun:"formula,notnull"`
	TargetGrain    []string `bun:"target_grain,array"`
	Filter         string   `bun:"filter_predicate"`
	TimePredicate  string   `bun:"time_predicate"`
}

type metricRow struct {
	bun.BaseModel `bun:"table:catalog_metrics,alias:m"`

	ID                 string   `bun:"id,pk"`
	DisplayName        string   `bun:"display_name,notnull"`
	Units              string   `bun:"units"`
	DefaultAggregation string   `bun:"default_aggregation,notnull"`
	AllowedDimensions  []string `bun:"allowed_dimensions,array"`
	AbsTolerance       float64  `bun:"abs_tolerance"`
	RelTolerance       float64  `bun:"rel_tolerance"`
}

type edgeRow struct {
	bun.BaseModel `bun:"table:catalog_lineage_edges,alias:le"`

	ID            int64  `bun:"id,pk,autoincrement"`
	FromEntity    string `bun:"from_entity,notnull"`
	ToEntity      string `bun:"to_entity,notnull"`
	Relationship  string `bun:"relationship,notnull"`
	JoinKeysJSON  string `bun:"join_keys,type:jsonb,notnull"`
	Table         string `bun:"mapping_table"`
	FanoutCeiling int    `bun:"fanout_ceiling"`
}

type timeRuleRow struct {
	bun.BaseModel `bun:"table:catalog_time_rules,alias:tr"`

	TableName       string `bun:"table_name,pk"`
	Column          string `bun:"time_column,notnull"`
	LastUpdatedFunc string `bun:"last_updated_func,notnull"`
}

// OpenBunDB opens a Postgres connection pool via bun/pgdriver, following the
// teacher's internal/infrastructure/storage.NewDB wiring.
func OpenBunDB(dsn string) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to catalog database: %w", err)
	}
	return db, nil
}

// LoadRelational reads the catalogue from a relational schema (one table
// per concept) via bun, joins columns onto their owning tables, and builds
// a validated Registry. Like LoadFlatFile, this is all-or-nothing.
func LoadRelational(ctx context.Context, db *bun.DB) (*Registry, error) {
	var entityRows []entityRow
	if err := db.NewSelect().Model(&entityRows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("loading catalog_entities: %w", err)
	}

	var tableRows []tableRow
	if err := db.NewSelect().Model(&tableRows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("loading catalog_tables: %w", err)
	}

	var columnRows []columnRow
	if err := db.NewSelect().Model(&columnRows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("loading catalog_columns: %w", err)
	}

	var ruleRows []ruleRow
	if err := db.NewSelect().Model(&ruleRows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("loading catalog_rules: %w", err)
	}

	var metricRows []metricRow
	if err := db.NewSelect().Model(&metricRows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("loading catalog_metrics: %w", err)
	}

	var edgeRows []edgeRow
	if err := db.NewSelect().Model(&edgeRows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("loading catalog_lineage_edges: %w", err)
	}

	var timeRuleRows []timeRuleRow
	if err := db.NewSelect().Model(&timeRuleRows).Scan(ctx); err != nil {
		return nil, fmt.Errorf("loading catalog_time_rules: %w", err)
	}

	columnsByTable := map[string][]Column{}
	for _, c := range columnRows {
		tags := make([]ColumnTag, len(c.Tags))
		for i, t := range c.Tags {
			tags[i] = ColumnTag(t)
		}
		columnsByTable[c.TableName] = append(columnsByTable[c.TableName], Column{
			Name:     c.Name,
			Type:     DataType(c.Type),
			Nullable: c.Nullable,
			Tags:     tags,
		})
	}

	entities := make([]Entity, len(entityRows))
	for i, e := range entityRows {
		entities[i] = Entity{ID: e.ID, Name: e.Name, NaturalKey: e.NaturalKey, Parents: e.Parents}
	}

	tables := make([]Table, len(tableRows))
	for i, t := range tableRows {
		tables[i] = Table{
			Name:         t.Name,
			System:       t.System,
			Entity:       t.Entity,
			Columns:      columnsByTable[t.Name],
			PrimaryKey:   t.PrimaryKey,
			PhysicalPath: t.PhysicalPath,
		}
	}

	rules := make([]Rule, len(ruleRows))
	for i, r := range ruleRows {
		rules[i] = Rule{
			ID:             r.ID,
			System:         r.System,
			Metric:         r.Metric,
			SourceEntities: r.SourceEntities,
			Formula:        r.Formula,
			TargetGrain:    r.TargetGrain,
			Filter:         r.Filter,
			TimePredicate:  r.TimePredicate,
		}
	}

	metrics := make([]Metric, len(metricRows))
	for i, m := range metricRows {
		metrics[i] = Metric{
			ID:                 m.ID,
			DisplayName:        m.DisplayName,
			Units:              m.Units,
			DefaultAggregation: m.DefaultAggregation,
			AllowedDimensions:  m.AllowedDimensions,
			AbsTolerance:       m.AbsTolerance,
			RelTolerance:       m.RelTolerance,
		}
	}

	edges := make([]LineageEdge, len(edgeRows))
	for i, e := range edgeRows {
		joinKeys, err := decodeJoinKeys(e.JoinKeysJSON)
		if err != nil {
			return nil, fmt.Errorf("decoding join keys for edge %s->%s: %w", e.FromEntity, e.ToEntity, err)
		}
		edges[i] = LineageEdge{
			From:          e.FromEntity,
			To:            e.ToEntity,
			Relationship:  Relationship(e.Relationship),
			JoinKeys:      joinKeys,
			Table:         e.Table,
			FanoutCeiling: e.FanoutCeiling,
		}
	}

	timeRules := make([]TimeRule, len(timeRuleRows))
	for i, tr := range timeRuleRows {
		timeRules[i] = TimeRule{Table: tr.TableName, Column: tr.Column, LastUpdatedFunc: tr.LastUpdatedFunc}
	}

	reg := newRegistry(entities, tables, rules, metrics, edges, timeRules)
	if err := reg.validate(); err != nil {
		return nil, fmt.Errorf("relational catalog failed validation: %w", err)
	}
	return reg, nil
}
