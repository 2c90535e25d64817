package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
		MaxElapsedTime:  time.Second,
	}
}

func TestRetrySucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRetriesTransientErrorsUntilSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsImmediatelyOnFatalError(t *testing.T) {
	calls := 0
	fatal := errors.New("bad config")
	err := Retry(context.Background(), fastPolicy(), func() error {
		calls++
		return NewFatalError(fatal)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsMaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(), func() error {
		calls++
		return errors.New("always fails")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastPolicy(), func() error {
		calls++
		return errors.New("always fails")
	})
	require.Error(t, err)
}

func TestNewRetryableAndFatalErrorNilSafe(t *testing.T) {
	assert.Nil(t, NewRetryableError(nil))
	assert.Nil(t, NewFatalError(nil))
}

func TestCalculateBackoffDurationCapsAtMaxInterval(t *testing.T) {
	d := CalculateBackoffDuration(10, time.Second, 2.0, 5*time.Second)
	assert.Equal(t, 5*time.Second, d)
}

func TestCalculateBackoffDurationGrowsExponentially(t *testing.T) {
	d0 := CalculateBackoffDuration(0, time.Second, 2.0, time.Minute)
	d1 := CalculateBackoffDuration(1, time.Second, 2.0, time.Minute)
	assert.Equal(t, time.Second, d0)
	assert.Equal(t, 2*time.Second, d1)
}

func TestRetryWithCallbackInvokesOnRetryBeforeSuccess(t *testing.T) {
	var retries []int
	calls := 0
	err := RetryWithCallback(context.Background(), fastPolicy(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(attempt int, err error, nextDelay time.Duration) {
		retries = append(retries, attempt)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, retries)
}
