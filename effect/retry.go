package effect

import (
	"context"
	"time"
)

// RetryPolicy controls how a failed effect is re-run.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first. Values
	// below 1 are treated as 1.
	Attempts int
	// Backoff is the delay before the first retry.
	Backoff time.Duration
	// Factor multiplies the delay after each retry. Zero means 2.
	Factor float64
	// MaxBackoff caps the delay. Zero means no cap.
	MaxBackoff time.Duration
}

func (p RetryPolicy) next(delay time.Duration) time.Duration {
	factor := p.Factor
	if factor == 0 {
		factor = 2
	}
	delay = time.Duration(float64(delay) * factor)
	if p.MaxBackoff > 0 && delay > p.MaxBackoff {
		delay = p.MaxBackoff
	}
	return delay
}

// Retry re-runs the effect on failure according to the policy. Success stops
// immediately; context cancellation aborts the wait and returns ctx.Err().
// The error from the final attempt is returned when all attempts fail.
func (io IO[A]) Retry(policy RetryPolicy) IO[A] {
	return IO[A]{compute: func(ctx context.Context) (A, error) {
		attempts := policy.Attempts
		if attempts < 1 {
			attempts = 1
		}
		delay := policy.Backoff
		var lastErr error
		for i := 0; i < attempts; i++ {
			if i > 0 && delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					var zero A
					return zero, ctx.Err()
				case <-timer.C:
				}
				delay = policy.next(delay)
			}
			value, err := io.Run(ctx)
			if err == nil {
				return value, nil
			}
			if ctx.Err() != nil {
				var zero A
				return zero, ctx.Err()
			}
			lastErr = err
		}
		var zero A
		return zero, lastErr
	}}
}
