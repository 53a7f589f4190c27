package effect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry(t *testing.T) {
	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		eff := Attempt(func() (int, error) {
			calls++
			if calls < 3 {
				return 0, errBoom
			}
			return calls, nil
		}).Retry(RetryPolicy{Attempts: 5})

		value, err := eff.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, value)
		assert.Equal(t, 3, calls)
	})

	t.Run("no retry on success", func(t *testing.T) {
		calls := 0
		eff := Attempt(func() (int, error) { calls++; return 1, nil }).
			Retry(RetryPolicy{Attempts: 4})

		_, err := eff.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("returns last error when exhausted", func(t *testing.T) {
		calls := 0
		eff := Attempt(func() (int, error) { calls++; return 0, errBoom }).
			Retry(RetryPolicy{Attempts: 3})

		_, err := eff.Run(context.Background())
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 3, calls)
	})

	t.Run("attempts below one behave like a single run", func(t *testing.T) {
		calls := 0
		eff := Attempt(func() (int, error) { calls++; return 0, errBoom }).
			Retry(RetryPolicy{})

		_, err := eff.Run(context.Background())
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancellation aborts the backoff wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		eff := Attempt(func() (int, error) {
			calls++
			cancel()
			return 0, errBoom
		}).Retry(RetryPolicy{Attempts: 10, Backoff: time.Hour})

		start := time.Now()
		_, err := eff.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestRetryPolicyNext(t *testing.T) {
	p := RetryPolicy{Backoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}

	d := p.next(100 * time.Millisecond)
	assert.Equal(t, 200*time.Millisecond, d)

	d = p.next(d)
	assert.Equal(t, 300*time.Millisecond, d) // capped

	custom := RetryPolicy{Factor: 1.5}
	assert.Equal(t, 150*time.Millisecond, custom.next(100*time.Millisecond))
}
