// Package grain implements the Grain Resolver + Entity Graph (spec §4.5):
// rebasing a compiled plan's natural grain onto a task's required grain by
// walking parent_of/belongs_to/maps_grain edges, never has_many.
package grain

import "github.com/reconciliation-rca/engine/pkg/catalog"

// EntityGraph is an indexed adjacency view over the catalog's lineage
// edges, built once per registry and reused across resolutions — the same
// single-pass index-construction idiom as the teacher's engine.BuildDAG
// (indices keyed by node id, built in one pass over edges).
type EntityGraph struct {
	registry  *catalog.Registry
	adjacency map[string][]adjacentEdge
}

type adjacentEdge struct {
	catalog.LineageEdge
	reversed bool
}

func (e adjacentEdge) other(from string) string {
	if e.reversed {
		if e.From == from {
			return e.To
		}
		return e.From
	}
	if e.To == from {
		return e.From
	}
	return e.To
}

// BuildEntityGraph indexes every lineage edge of the registry bidirectionally.
func BuildEntityGraph(registry *catalog.Registry) *EntityGraph {
	g := &EntityGraph{registry: registry, adjacency: make(map[string][]adjacentEdge)}
	for _, e := range registry.AllEdges() {
		g.adjacency[e.From] = append(g.adjacency[e.From], adjacentEdge{LineageEdge: e, reversed: false})
		g.adjacency[e.To] = append(g.adjacency[e.To], adjacentEdge{LineageEdge: e, reversed: true})
	}
	return g
}

// rebaseable reports whether grain rebasing may traverse a relationship (spec §4.5 "Fan-out discipline": "Traversing has_many during
// grain resolution is forbidden").
func rebaseable(rel catalog.Relationship) bool {
	return rel == catalog.RelationParentOf || rel == catalog.RelationBelongsTo || rel == catalog.RelationMapsGrain
}
