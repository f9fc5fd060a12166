package catalog

import (
	"fmt"
	"sort"

	"github.com/reconciliation-rca/engine/pkg/rcerrors"
)

// Registry is the read-optimised in-memory catalogue described in spec §4.1.
// It is constructed once per process by one of the loaders (LoadFlatFile,
// LoadRelational, FromMemory; see loader_*.go) and is safe
// for concurrent reads from then on without synchronisation — spec §5
// "Shared resources": "The metadata registry is read-only after load,
// accessed without synchronisation."
type Registry struct {
	entities map[string]*Entity
	tables   map[string]*Table
	rules    map[string]*Rule
	metrics  map[string]*Metric
	edges    []LineageEdge
	timeRules map[string]*TimeRule // keyed by table name

	// indices
	rulesBySystemMetric map[string][]*Rule // key: system + "::" + metric
	tablesBySystem      map[string][]*Table
	edgesFrom           map[string][]LineageEdge
	edgesTo             map[string][]LineageEdge
}

func systemMetricKey(system, metric string) string { return system + "::" + metric }

// newRegistry builds the index maps over the raw catalogue contents. Callers
// (the loaders) must call validate() before exposing the result — spec §4.1:
// "Load failure is fatal; partial registries are not exposed."
func newRegistry(entities []Entity, tables []Table, rules []Rule, metrics []Metric, edges []LineageEdge, timeRules []TimeRule) *Registry {
	r := &Registry{
		entities:            make(map[string]*Entity, len(entities)),
		tables:              make(map[string]*Table, len(tables)),
		rules:               make(map[string]*Rule, len(rules)),
		metrics:             make(map[string]*Metric, len(metrics)),
		edges:               edges,
		timeRules:           make(map[string]*TimeRule, len(timeRules)),
		rulesBySystemMetric: make(map[string][]*Rule),
		tablesBySystem:      make(map[string][]*Table),
		edgesFrom:           make(map[string][]LineageEdge),
		edgesTo:             make(map[string][]LineageEdge),
	}

	for i := range entities {
		r.entities[entities[i].ID] = &entities[i]
	}
	for i := range tables {
		r.tables[tables[i].Name] = &tables[i]
		r.tablesBySystem[tables[i].System] = append(r.tablesBySystem[tables[i].System], tables[i])
	}
	for i := range rules {
		r.rules[rules[i].ID] = &rules[i]
		key := systemMetricKey(rules[i].System, rules[i].Metric)
		r.rulesBySystemMetric[key] = append(r.rulesBySystemMetric[key], &rules[i])
	}
	for i := range metrics {
		r.metrics[metrics[i].ID] = &metrics[i]
	}
	for i := range timeRules {
		r.timeRules[timeRules[i].Table] = &timeRules[i]
	}
	for _, e := range edges {
		r.edgesFrom[e.From] = append(r.edgesFrom[e.From], e)
		r.edgesTo[e.To] = append(r.edgesTo[e.To], e)
	}

	return r
}

// Entity looks up an entity by id.
func (r *Registry) Entity(id string) (*Entity, bool) {
	e, ok := r.entities[id]
	return e, ok
}

// Table looks up a table by its schema-qualified name.
func (r *Registry) Table(name string) (*Table, bool) {
	t, ok := r.tables[name]
	return t, ok
}

// Rule looks up a rule by id.
func (r *Registry) Rule(id string) (*Rule, bool) {
	rule, ok := r.rules[id]
	return rule, ok
}

// Metric looks up a metric by id.
func (r *Registry) Metric(id string) (*Metric, bool) {
	m, ok := r.metrics[id]
	return m, ok
}

// TimeRule looks up the freshness time rule for a table, if any.
func (r *Registry) TimeRule(table string) (*TimeRule, bool) {
	t, ok := r.timeRules[table]
	return t, ok
}

// RulesForSystemMetric returns every rule that materialises the given
// metric for the given system (spec §3 "Metric": "The same metric id may
// have one rule per system" — plural in general, since a system may run
// several candidate rules for the same metric at different grains).
func (r *Registry) RulesForSystemMetric(system, metric string) []*Rule {
	return r.rulesBySystemMetric[systemMetricKey(system, metric)]
}

// TablesForSystem returns every table labelled with the given system.
func (r *Registry) TablesForSystem(system string) []Table {
	return r.tablesBySystem[system]
}

// EdgesFrom returns lineage edges whose From entity is the given id.
func (r *Registry) EdgesFrom(entityID string) []LineageEdge {
	return r.edgesFrom[entityID]
}

// EdgesTo returns lineage edges whose To entity is the given id.
func (r *Registry) EdgesTo(entityID string) []LineageEdge {
	return r.edgesTo[entityID]
}

// AllEdges returns every lineage edge in the registry.
func (r *Registry) AllEdges() []LineageEdge {
	return r.edges
}

// AllMetrics returns every metric, sorted by id for deterministic iteration.
func (r *Registry) AllMetrics() []*Metric {
	out := make([]*Metric, 0, len(r.metrics))
	for _, m := range r.metrics {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllSystems returns the distinct system labels present across all tables,
// sorted, used by the intent compiler to ground an LLM prompt (spec §4.2).
func (r *Registry) AllSystems() []string {
	seen := map[string]bool{}
	for _, t := range r.tables {
		seen[t.System] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// validate enforces the load-time invariants from spec §4.1 and §3:
//   - every referenced entity, column, and table exists
//   - every rule's target_grain is non-empty; whether its columns exist on
//     the table(s) the rule scans is not checked
//   - every maps_grain edge's join keys are present on the edge table
//
// It returns the first violation found, wrapped with rcerrors.ErrMetadataNotFound
// or rcerrors.ErrInvalidConstraint so callers can classify the failure.
func (r *Registry) validate() error {
	for _, t := range r.tables {
		if _, ok := r.entities[t.Entity]; !ok {
			return fmt.Errorf("table %q references unknown entity %q: %w", t.Name, t.Entity, rcerrors.ErrMetadataNotFound)
		}
		for _, pk := range t.PrimaryKey {
			if !t.HasColumn(pk) {
				return fmt.Errorf("table %q primary key references unknown column %q: %w", t.Name, pk, rcerrors.ErrMetadataNotFound)
			}
		}
	}

	for _, rule := range r.rules {
		for _, se := range rule.SourceEntities {
			if _, ok := r.entities[se]; !ok {
				return fmt.Errorf("rule %q references unknown source entity %q: %w", rule.ID, se, rcerrors.ErrMetadataNotFound)
			}
		}
		if len(rule.TargetGrain) == 0 {
			return fmt.Errorf("rule %q has an empty target_grain: %w", rule.ID, rcerrors.ErrInvalidConstraint)
		}
		if _, ok := r.metrics[rule.Metric]; !ok {
			return fmt.Errorf("rule %q references unknown metric %q: %w", rule.ID, rule.Metric, rcerrors.ErrMetadataNotFound)
		}
	}

	for _, e := range r.edges {
		if _, ok := r.entities[e.From]; !ok {
			return fmt.Errorf("lineage edge references unknown from-entity %q: %w", e.From, rcerrors.ErrMetadataNotFound)
		}
		if _, ok := r.entities[e.To]; !ok {
			return fmt.Errorf("lineage edge references unknown to-entity %q: %w", e.To, rcerrors.ErrMetadataNotFound)
		}
		if len(e.JoinKeys) == 0 {
			return fmt.Errorf("lineage edge %s->%s has no join keys: %w", e.From, e.To, rcerrors.ErrInvalidConstraint)
		}
		if e.Relationship == RelationMapsGrain {
			if e.Table == "" {
				return fmt.Errorf("maps_grain edge %s->%s does not name a mapping table: %w", e.From, e.To, rcerrors.ErrInvalidConstraint)
			}
			mapTable, ok := r.tables[e.Table]
			if !ok {
				return fmt.Errorf("maps_grain edge %s->%s references unknown table %q: %w", e.From, e.To, e.Table, rcerrors.ErrMetadataNotFound)
			}
			for _, jk := range e.JoinKeys {
				if !mapTable.HasColumn(jk.LeftColumn) {
					return fmt.Errorf("maps_grain edge %s->%s join key %q missing on table %q: %w", e.From, e.To, jk.LeftColumn, e.Table, rcerrors.ErrInvalidConstraint)
				}
			}
		}
	}

	return nil
}
