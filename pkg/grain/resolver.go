package grain

import (
	"fmt"
	"sort"

	"github.com/reconciliation-rca/engine/pkg/catalog"
	"github.com/reconciliation-rca/engine/pkg/planner"
	"github.com/reconciliation-rca/engine/pkg/rcerrors"
)

// Resolver implements C5: rebasing a compiled plan's natural grain onto a
// task's required grain.
type Resolver struct {
	graph         *EntityGraph
	registry      *catalog.Registry
	fanoutCeiling int
}

// NewResolver constructs a Resolver bound to a registry and entity graph.
// fanoutCeiling is the configured default used when an edge does not
// override it (spec §4.5: "bounded by ... the fact side's row count × a
// configurable fan-out ceiling").
func NewResolver(registry *catalog.Registry, fanoutCeiling int) *Resolver {
	return &Resolver{graph: BuildEntityGraph(registry), registry: registry, fanoutCeiling: fanoutCeiling}
}

// sameGrain reports whether two grain-key column sets are identical,
// ignoring order.
func sameGrain(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string{}, a...)
	sb := append([]string{}, b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// Resolve rebases plan onto requiredGrain if the plan's natural grain
// (plan.GrainKey) does not already match it. naturalEntity and
// requiredEntity name the entities that own the respective grain columns,
// resolved by the caller (the orchestrator) from the rule's target entity
// and the task's grounded grain.
//
// Per spec §4.5: "If they match, pass through. Otherwise, search the entity
// graph for a path ... using only parent_of, belongs_to, or maps_grain
// edges ... Emit additional Join + Group operators onto the plan to rebase
// the result."
func (res *Resolver) Resolve(plan *planner.LogicalPlan, naturalEntity, requiredEntity string, requiredGrain []string) (*planner.LogicalPlan, error) {
	if sameGrain(plan.GrainKey, requiredGrain) {
		return plan, nil
	}

	path, err := res.shortestPath(naturalEntity, requiredEntity)
	if err != nil {
		return nil, fmt.Errorf("rebasing grain from entity %q to %q: %w", naturalEntity, requiredEntity, rcerrors.ErrUnresolvablePath)
	}

	rebased := &planner.LogicalPlan{
		RuleID:       plan.RuleID,
		Operators:    append([]planner.Operator{}, plan.Operators...),
		GrainKey:     plan.GrainKey,
		MetricColumn: plan.MetricColumn,
	}

	for _, e := range path {
		ceiling := e.FanoutCeiling
		if ceiling <= 0 {
			ceiling = res.fanoutCeiling
		}
		rebased.Operators = append(rebased.Operators, planner.Operator{
			Kind: planner.OpJoin,
			Join: &planner.JoinSpec{
				RightTable:          e.Table,
				Keys:                e.JoinKeys,
				How:                 "left",
				ThroughTable:        e.Table,
				RequiresFanoutCheck: e.Relationship == catalog.RelationMapsGrain,
				FanoutCeiling:       ceiling,
			},
		})
	}

	rebased.Operators = append(rebased.Operators, planner.Operator{
		Kind: planner.OpGroup,
		Group: &planner.GroupSpec{
			Keys:        requiredGrain,
			Column:      plan.MetricColumn,
			Aggregation: "sum",
			As:          plan.MetricColumn,
		},
	})
	rebased.Operators = append(rebased.Operators, planner.Operator{
		Kind: planner.OpProject,
		Project: &planner.ProjectSpec{
			Columns: append(append([]string{}, requiredGrain...), plan.MetricColumn),
		},
	})
	rebased.GrainKey = requiredGrain

	return rebased, nil
}

// CheckFanout enforces the runtime fan-out bound for a maps_grain traversal
// (spec §4.5: "Traversal through a mapping table of cardinality N requires N
// to be bounded by ... the fact side's row count × a configurable fan-out
// ceiling"). Called by the executor immediately before running a join
// flagged RequiresFanoutCheck.
func CheckFanout(factRows, mappingRows, ceiling int) error {
	if ceiling <= 0 {
		ceiling = 1
	}
	if mappingRows > factRows*ceiling {
		return fmt.Errorf("mapping table cardinality %d exceeds fan-out ceiling (fact rows %d × %d): %w",
			mappingRows, factRows, ceiling, rcerrors.ErrDangerousPlan)
	}
	return nil
}

// shortestPath performs a breadth-first search from `from` to `to` using
// only rebaseable relationships (parent_of, belongs_to, maps_grain) — never
// has_many (spec §8 invariant 5: "no has_many edge appears in the rebasing
// path").
func (res *Resolver) shortestPath(from, to string) ([]adjacentEdge, error) {
	if from == to {
		return nil, nil
	}
	type state struct {
		entity string
		path   []adjacentEdge
	}
	visited := map[string]bool{from: true}
	queue := []state{{entity: from}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range res.graph.adjacency[cur.entity] {
			if !rebaseable(e.Relationship) {
				continue
			}
			next := e.other(cur.entity)
			if visited[next] {
				continue
			}
			newPath := append(append([]adjacentEdge{}, cur.path...), e)
			if next == to {
				return newPath, nil
			}
			visited[next] = true
			queue = append(queue, state{entity: next, path: newPath})
		}
	}
	return nil, fmt.Errorf("no rebaseable path from %q to %q", from, to)
}
