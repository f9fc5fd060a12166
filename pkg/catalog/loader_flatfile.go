package catalog

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// flatFileDoc is the on-disk shape of a catalog directory: one YAML file
// per concept, following the teacher's convention of a single descriptor
// file per domain object (spec §6: "a directory of flat descriptors, one
// per entity, table, rule, metric, lineage edge, time rule").
type flatFileDoc struct {
	Entities  []Entity      `yaml:"entities"`
	Tables    []Table       `yaml:"tables"`
	Rules     []Rule        `yaml:"rules"`
	Metrics   []Metric      `yaml:"metrics"`
	Edges     []LineageEdge `yaml:"lineage_edges"`
	TimeRules []TimeRule    `yaml:"time_rules"`
}

// LoadFlatFile reads every *.yaml/*.yml file in dir, merges their contents,
// and builds a validated Registry. Loading is all-or-nothing: any read,
// parse, or invariant failure discards the partial result (spec §4.1,
// §6 "Loading is all-or-nothing and idempotent").
func LoadFlatFile(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading catalog directory %q: %w", dir, err)
	}

	var merged flatFileDoc
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var doc flatFileDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		merged.Entities = append(merged.Entities, doc.Entities...)
		merged.Tables = append(merged.Tables, doc.Tables...)
		merged.Rules = append(merged.Rules, doc.Rules...)
		merged.Metrics = append(merged.Metrics, doc.Metrics...)
		merged.Edges = append(merged.Edges, doc.Edges...)
		merged.TimeRules = append(merged.TimeRules, doc.TimeRules...)
	}

	reg := newRegistry(merged.Entities, merged.Tables, merged.Rules, merged.Metrics, merged.Edges, merged.TimeRules)
	if err := reg.validate(); err != nil {
		return nil, fmt.Errorf("catalog directory %q failed validation: %w", dir, err)
	}
	return reg, nil
}

// FromMemory builds a validated Registry directly from in-memory slices,
// used by tests and by callers that already have the catalogue deserialised
// (e.g. an embedding application that maintains its own store).
func FromMemory(entities []Entity, tables []Table, rules []Rule, metrics []Metric, edges []LineageEdge, timeRules []TimeRule) (*Registry, error) {
	reg := newRegistry(entities, tables, rules, metrics, edges, timeRules)
	if err := reg.validate(); err != nil {
		return nil, err
	}
	return reg, nil
}
