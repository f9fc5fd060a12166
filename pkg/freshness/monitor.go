// Package freshness periodically re-scores the registry's time rules
// against the configured freshness threshold, the way the teacher's cron
// scheduler (internal/application/trigger/cron_scheduler.go) periodically
// fires workflow triggers — here the "trigger" is a registry scan rather
// than a workflow run, and the output is a staleness snapshot rather than
// an execution.
//
// The registry itself stays read-only after load (spec §5 "Shared
// resources"): the monitor never mutates it, it only re-derives a
// point-in-time staleness view that the health endpoint reads without
// re-running a reconciliation.
package freshness

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/reconciliation-rca/engine/internal/logger"
	"github.com/reconciliation-rca/engine/pkg/catalog"
)

// StaleTable reports one table whose time rule's last_updated is older
// than the configured freshness threshold.
type StaleTable struct {
	Table string
	Age   time.Duration
}

// Monitor owns a cron schedule that periodically walks every table with a
// time rule and records which ones are stale (spec §4.9 rule 4's freshness
// threshold, evaluated proactively instead of only at classification time).
type Monitor struct {
	registry  *catalog.Registry
	threshold time.Duration
	logger    *logger.Logger

	cron *cron.Cron

	mu    sync.RWMutex
	stale []StaleTable
	runAt time.Time
}

// NewMonitor constructs a Monitor over a registry snapshot. threshold
// mirrors ReconcileConfig.FreshnessThreshold.
func NewMonitor(registry *catalog.Registry, threshold time.Duration, log *logger.Logger) *Monitor {
	return &Monitor{
		registry:  registry,
		threshold: threshold,
		logger:    log,
		cron:      cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
	}
}

// Start schedules periodic freshness checks at the given cron spec (seconds
// precision, e.g. "0 */5 * * * *" for every five minutes) and runs one
// check immediately so Snapshot has data before the first tick.
func (m *Monitor) Start(schedule string) error {
	m.checkOnce()
	_, err := m.cron.AddFunc(schedule, m.checkOnce)
	if err != nil {
		return err
	}
	m.cron.Start()
	return nil
}

// Stop waits for any in-flight check to finish, then stops the scheduler.
func (m *Monitor) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// Snapshot returns the stale tables found by the most recent check, plus
// when that check ran.
func (m *Monitor) Snapshot() ([]StaleTable, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StaleTable, len(m.stale))
	copy(out, m.stale)
	return out, m.runAt
}

func (m *Monitor) checkOnce() {
	now := time.Now()
	var stale []StaleTable

	for _, system := range m.registry.AllSystems() {
		for _, table := range m.registry.TablesForSystem(system) {
			tr, ok := m.registry.TimeRule(table.Name)
			if !ok {
				continue
			}
			age := now.Sub(tr.LastUpdated)
			if m.threshold > 0 && age > m.threshold {
				stale = append(stale, StaleTable{Table: table.Name, Age: age})
			}
		}
	}

	m.mu.Lock()
	m.stale = stale
	m.runAt = now
	m.mu.Unlock()

	if len(stale) > 0 && m.logger != nil {
		names := make([]string, len(stale))
		for i, s := range stale {
			names[i] = s.Table
		}
		m.logger.Warn("freshness check found stale tables", "count", len(stale), "tables", names)
	}
}
