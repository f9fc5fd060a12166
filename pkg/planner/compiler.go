package planner

import (
	"fmt"

	"github.com/reconciliation-rca/engine/pkg/catalog"
	"github.com/reconciliation-rca/engine/pkg/rcerrors"
)

// RuleCompiler implements C4 (spec §4.4): given a rule id, produce a
// LogicalPlan by seeding a scan, joining in every other source entity along
// the shortest/lowest-fan-out lineage path, filtering, deriving the metric,
// grouping to the target grain, and projecting the terminal schema.
type RuleCompiler struct {
	registry *catalog.Registry
}

// NewRuleCompiler constructs a compiler bound to a catalog registry.
func NewRuleCompiler(registry *catalog.Registry) *RuleCompiler {
	return &RuleCompiler{registry: registry}
}

// Compile runs the six-step algorithm of spec §4.4 for the given rule id.
func (c *RuleCompiler) Compile(ruleID string) (*LogicalPlan, error) {
	rule, ok := c.registry.Rule(ruleID)
	if !ok {
		return nil, fmt.Errorf("rule %q: %w", ruleID, rcerrors.ErrMetadataNotFound)
	}
	if len(rule.SourceEntities) == 0 {
		return nil, fmt.Errorf("rule %q declares no source entities: %w", ruleID, rcerrors.ErrInvalidConstraint)
	}

	plan := &LogicalPlan{RuleID: rule.ID, GrainKey: rule.TargetGrain}

	// Step 1: seed scan with the table owned by the first source entity.
	seedEntity := rule.SourceEntities[0]
	seedTable, err := c.tableForEntity(seedEntity, rule.System)
	if err != nil {
		return nil, err
	}
	plan.append(Operator{Kind: OpScan, Scan: &ScanSpec{Table: seedTable.Name}})
	included := map[string]bool{seedEntity: true}

	// Step 2: for every additional source entity, join it in via the
	// shortest/lowest-fan-out lineage path from an already-included entity.
	for _, entity := range rule.SourceEntities[1:] {
		if included[entity] {
			continue
		}
		path, err := c.shortestPath(entity, included)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", ruleID, err)
		}
		// path runs from entity to an already-included entity; walk it back
		// from the included end so each join brings in one more entity's
		// table, ending with entity's own.
		current := entity
		for _, edge := range path {
			current = edge.destinationFor(current)
		}
		for i := len(path) - 1; i >= 0; i-- {
			edge := path[i]
			next := edge.destinationFor(current)
			how := joinTypeFor(edge.Relationship)
			rightTable, err := c.tableForEntity(next, rule.System)
			if err != nil {
				return nil, err
			}
			plan.append(Operator{Kind: OpJoin, Join: &JoinSpec{
				RightTable:   rightTable.Name,
				Keys:         edge.JoinKeys,
				How:          how,
				ThroughTable: edge.Table,
			}})
			current = next
		}
		included[entity] = true
	}

	// Step 3: filter for the rule's predicate and time-scope predicate.
	if rule.Filter != "" {
		plan.append(Operator{Kind: OpFilter, Filter: &FilterSpec{Predicate: rule.Filter}})
	}
	if rule.TimePredicate != "" {
		plan.append(Operator{Kind: OpFilter, Filter: &FilterSpec{Predicate: rule.TimePredicate}})
	}

	// Step 4: derive the metric column from the formula.
	metricColumn := rule.Metric
	plan.append(Operator{Kind: OpDerive, Derive: &DeriveSpec{As: metricColumn, Expression: rule.Formula}})
	plan.MetricColumn = metricColumn

	// Step 5: group by target_grain, aggregating with the metric's
	// default_aggregation.
	metric, ok := c.registry.Metric(rule.Metric)
	if !ok {
		return nil, fmt.Errorf("rule %q references unknown metric %q: %w", rule.ID, rule.Metric, rcerrors.ErrMetadataNotFound)
	}
	plan.append(Operator{Kind: OpGroup, Group: &GroupSpec{
		Keys:        rule.TargetGrain,
		Column:      metricColumn,
		Aggregation: metric.DefaultAggregation,
		As:          metricColumn,
	}})

	// Step 6: terminal project of target_grain ∪ {metric_column} — spec §8
	// invariant 1.
	cols := make([]string, 0, len(rule.TargetGrain)+1)
	cols = append(cols, rule.TargetGrain...)
	cols = append(cols, metricColumn)
	plan.append(Operator{Kind: OpProject, Project: &ProjectSpec{Columns: cols}})

	return plan, nil
}

// tableForEntity finds a table in the given system owned by the given
// entity. Rules reference entities, not tables directly; the compiler
// resolves the physical table from the registry's system+entity indices.
func (c *RuleCompiler) tableForEntity(entity, system string) (*catalog.Table, error) {
	for _, t := range c.registry.TablesForSystem(system) {
		if t.Entity == entity {
			tbl := t
			return &tbl, nil
		}
	}
	return nil, fmt.Errorf("no table for entity %q in system %q: %w", entity, system, rcerrors.ErrUnresolvablePath)
}

func joinTypeFor(rel catalog.Relationship) string {
	switch rel {
	case catalog.RelationParentOf:
		return "left" // left join from child to parent
	case catalog.RelationHasMany:
		return "left" // left join from parent to child
	case catalog.RelationBelongsTo:
		return "left"
	case catalog.RelationMapsGrain:
		return "inner"
	default:
		return "left"
	}
}

// pathEdge pairs a lineage edge with the direction it is traversed in, so
// destinationFor can report which entity a join lands on.
type pathEdge struct {
	catalog.LineageEdge
	reversed bool
}

// frontier is one queued state of the breadth-first lineage-path search in
// shortestPath: the entity reached, the path of edges taken to reach it, and
// the cumulative fan-out estimate used to break ties between equal-length
// paths.
type frontier struct {
	entity string
	path   []pathEdge
	fanout int
}

func (e pathEdge) destinationFor(source string) string {
	if e.reversed {
		if e.From == source {
			return e.To
		}
		return e.From
	}
	if e.To == source {
		return e.From
	}
	return e.To
}

// shortestPath finds the shortest sequence of lineage edges connecting
// `target` to any entity already in `included`, breaking ties by lowest
// estimated fan-out (product of edge fan-out ceilings) — spec §4.4
// "Tie-breaks". Edges are traversable in either direction since a join path
// is symmetric; only the relationship/fan-out semantics are direction-aware.
func (c *RuleCompiler) shortestPath(target string, included map[string]bool) ([]pathEdge, error) {
	if included[target] {
		return nil, nil
	}

	visited := map[string]bool{target: true}
	queue := []frontier{{entity: target, fanout: 1}}
	var best *frontier

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if included[cur.entity] && len(cur.path) > 0 {
			if best == nil || len(cur.path) < len(best.path) ||
				(len(cur.path) == len(best.path) && cur.fanout < best.fanout) {
				f := cur
				best = &f
			}
			continue
		}
		if best != nil && len(cur.path) >= len(best.path) {
			continue
		}

		for _, e := range c.registry.EdgesFrom(cur.entity) {
			c.exploreEdge(cur.entity, e, false, visited, cur.path, cur.fanout, &queue)
		}
		for _, e := range c.registry.EdgesTo(cur.entity) {
			c.exploreEdge(cur.entity, e, true, visited, cur.path, cur.fanout, &queue)
		}
	}

	if best == nil {
		return nil, fmt.Errorf("no lineage path from %q to an included entity: %w", target, rcerrors.ErrUnresolvablePath)
	}
	return best.path, nil
}

// exploreEdge extends the BFS frontier across e. has_many edges are
// traversable here — spec §4.4 step 2 names has_many as one of exactly two
// relationship types the rule compiler joins on — unlike pkg/grain's
// rebaseable(), which forbids has_many for C5 grain *resolution* (spec §4.5's
// fan-out discipline is scoped to rebasing, not rule compilation). The
// fan-out ceiling is still tracked via the frontier's fanout field so tie
// breaks still penalise wide has_many traversals.
func (c *RuleCompiler) exploreEdge(from string, e catalog.LineageEdge, reversed bool, visited map[string]bool, path []pathEdge, fanout int, queue *[]frontier) {
	next := e.To
	if reversed {
		next = e.From
	}
	if next == from || visited[next] {
		return
	}
	visited[next] = true
	ceiling := e.FanoutCeiling
	if ceiling <= 0 {
		ceiling = 1
	}
	newPath := append(append([]pathEdge{}, path...), pathEdge{LineageEdge: e, reversed: reversed})
	*queue = append(*queue, frontier{entity: next, path: newPath, fanout: fanout * ceiling})
}
