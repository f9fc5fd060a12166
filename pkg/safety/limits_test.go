package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_PassesWithinLimits(t *testing.T) {
	l := DefaultLimits()
	err := l.Check(Usage{RowsMaterialised: 10, Elapsed: time.Second, PeakMemoryMB: 10, ProjectedFanout: 10})
	assert.NoError(t, err)
}

func TestCheck_FlagsRowBreach(t *testing.T) {
	l := Limits{MaxInFlightRows: 100}
	err := l.Check(Usage{RowsMaterialised: 200})
	require.Error(t, err)
}

func TestCheck_FlagsTimeoutBreach(t *testing.T) {
	l := Limits{WallClockDeadline: time.Second}
	err := l.Check(Usage{Elapsed: 2 * time.Second})
	require.Error(t, err)
}

func TestCheck_FlagsFanoutBreach(t *testing.T) {
	l := Limits{MaxJoinFanout: 100}
	err := l.Check(Usage{ProjectedFanout: 1000})
	require.Error(t, err)
}

func TestRetryPolicy_RetriesRetryableErrors(t *testing.T) {
	attempts := 0
	policy := DefaultScanRetryPolicy(func(error) bool { return true })
	policy.InitialDelay = time.Millisecond
	err := policy.Execute(context.Background(), func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryPolicy_NeverRetriesNonRetryableErrors(t *testing.T) {
	attempts := 0
	policy := DefaultScanRetryPolicy(func(error) bool { return false })
	err := policy.Execute(context.Background(), func() error {
		attempts++
		return errors.New("logic error")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicy_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := DefaultScanRetryPolicy(func(error) bool { return true })
	err := policy.Execute(ctx, func() error { return errors.New("transient") })
	assert.Error(t, err)
}
