package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetry_SucceedsImmediately(t *testing.T) {
	calls := 0
	err := Retry(3, time.Millisecond, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(3, time.Millisecond, func() error {
		calls++
		return errors.New("always fail")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestIfErrorIs_StopsOnNonMatchingError(t *testing.T) {
	targetErr := errors.New("retryable")
	otherErr := errors.New("other")
	calls := 0
	err := IfErrorIs(3, time.Millisecond, func() error {
		calls++
		return otherErr
	}, targetErr)
	require.ErrorIs(t, err, otherErr)
	require.Equal(t, 1, calls)
}

func TestBackoff_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Backoff(3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("fail")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestBackoff_DoublesSleepBetweenAttempts(t *testing.T) {
	calls := 0
	start := time.Now()
	err := Backoff(3, 5*time.Millisecond, func() error {
		calls++
		return errors.New("always fail")
	})
	elapsed := time.Since(start)
	require.Error(t, err)
	require.Equal(t, 3, calls)
	// Two sleeps: 5ms then 10ms, so total elapsed must be at least 15ms.
	require.GreaterOrEqual(t, elapsed, 15*time.Millisecond)
}

func TestBackoff_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Backoff(3, time.Millisecond, func() error {
		calls++
		return errors.New("always fail")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}
