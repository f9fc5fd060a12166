// Package safety implements the Safety Layer (spec §4.6, §5 "Resource
// limits", §12): per-request resource ceilings, the usage snapshot the
// executor checks before each operator, and the retry/backoff policy for
// transient scan failures.
package safety

import (
	"fmt"
	"time"

	"github.com/reconciliation-rca/engine/pkg/rcerrors"
)

// Limits are the per-request resource ceilings (spec §5 "Resource limits":
// "Per request: wall-clock deadline, peak in-flight row count, peak memory,
// maximum join fan-out").
type Limits struct {
	WallClockDeadline time.Duration
	MaxInFlightRows   int64
	MaxPeakMemoryMB   int64
	MaxJoinFanout     int64
	ScanRetryAttempts int
	ScanRetryBaseDelay time.Duration
}

// DefaultLimits returns conservative defaults suitable for a single
// reconciliation request over moderate-sized tables.
func DefaultLimits() Limits {
	return Limits{
		WallClockDeadline: 30 * time.Second,
		MaxInFlightRows:   5_000_000,
		MaxPeakMemoryMB:   2048,
		MaxJoinFanout:     10_000_000,
		ScanRetryAttempts: 3,
		ScanRetryBaseDelay: 200 * time.Millisecond,
	}
}

// Usage is a snapshot of current resource consumption, taken by the
// executor before each operator (spec §4.6: "Before each operator, the
// executor checks the current resource usage ... against the safety
// layer's limits").
type Usage struct {
	RowsMaterialised int64
	Elapsed          time.Duration
	PeakMemoryMB     int64
	ProjectedFanout  int64
}

// Check compares a usage snapshot against the limits, returning a typed
// error on the first breach encountered. Rows and memory breaches are
// data_too_large; wall-clock breaches are timeout; fan-out breaches are
// dangerous_plan. The executor's usage snapshot leaves ProjectedFanout at
// zero, so the fan-out check applies only to callers that fill it in;
// maps_grain join fan-out is checked separately by grain.CheckFanout.
func (l Limits) Check(u Usage) error {
	if l.WallClockDeadline > 0 && u.Elapsed > l.WallClockDeadline {
		return fmt.Errorf("wall-clock deadline %s exceeded (elapsed %s): %w", l.WallClockDeadline, u.Elapsed, rcerrors.ErrTimeout)
	}
	if l.MaxInFlightRows > 0 && u.RowsMaterialised > l.MaxInFlightRows {
		return fmt.Errorf("rows materialised %d exceeds limit %d: %w", u.RowsMaterialised, l.MaxInFlightRows, rcerrors.ErrDataTooLarge)
	}
	if l.MaxPeakMemoryMB > 0 && u.PeakMemoryMB > l.MaxPeakMemoryMB {
		return fmt.Errorf("peak memory %dMB exceeds limit %dMB: %w", u.PeakMemoryMB, l.MaxPeakMemoryMB, rcerrors.ErrDataTooLarge)
	}
	if l.MaxJoinFanout > 0 && u.ProjectedFanout > l.MaxJoinFanout {
		return fmt.Errorf("projected join fan-out %d exceeds limit %d: %w", u.ProjectedFanout, l.MaxJoinFanout, rcerrors.ErrDangerousPlan)
	}
	return nil
}
