package collect

import (
	"context"
	"errors"
	"time"
)

var ErrRateLimitExhausted = errors.New("rate limit retries exhausted")

// RetryPolicy bounds how rate-limited requests are retried.
// MaxAttempts counts every attempt, the first one included.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// Backoff returns the wait before retry number `retry` (1-based).
// A provider hint wins over the computed delay; both are capped at MaxBackoff.
func (p RetryPolicy) Backoff(retry int, hint time.Duration) time.Duration {
	d := hint
	if d <= 0 {
		d = p.InitialBackoff
		mult := p.Multiplier
		if mult < 1 {
			mult = 1
		}
		for i := 1; i < retry; i++ {
			d = time.Duration(float64(d) * mult)
			if p.MaxBackoff > 0 && d >= p.MaxBackoff {
				break
			}
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
