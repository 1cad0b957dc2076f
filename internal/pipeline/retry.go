package pipeline

import (
	"context"
	"math/rand"
	"time"

	"snatcher/internal/services"
)

// Sleeper pauses between retry attempts. Tests inject an instant one.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleeper(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryPolicy bounds transient retries inside a single stage execution.
type retryPolicy struct {
	base     time.Duration
	attempts int
	sleeper  Sleeper
}

// run invokes fn with exponential backoff and jitter until it succeeds, fails
// permanently, or the attempt budget is spent. The last error is returned on
// exhaustion.
func (p retryPolicy) run(ctx context.Context, fn func() error) error {
	attempts := p.attempts
	if attempts <= 0 {
		attempts = 1
	}

	delay := p.base
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !services.IsTransient(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		jittered := delay/2 + time.Duration(rand.Int63n(int64(delay/2)+1))
		if sleepErr := p.sleeper(ctx, jittered); sleepErr != nil {
			return services.Wrap(services.ErrTransient, "pipeline", "retry", "interrupted between attempts", sleepErr)
		}
		delay *= 2
	}
	return err
}
