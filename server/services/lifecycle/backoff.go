package lifecycle

import (
	"math"
	"math/rand"
	"time"
)

const (
	DefaultRetryInitialInterval = 60 * time.Second
	DefaultRetryMaxInterval     = time.Hour
	DefaultRetryJitter          = 0.20
)

// RetryConfig controls how long a failed task waits before its next attempt.
type RetryConfig struct {
	// InitialInterval is the back-off after the first failed attempt.
	InitialInterval time.Duration
	// MaxInterval caps the exponential growth of the back-off.
	MaxInterval time.Duration
	// Jitter randomizes each interval by up to ±(Jitter × interval) so tasks
	// that failed together do not retry together. Zero disables jitter.
	Jitter float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: DefaultRetryInitialInterval,
		MaxInterval:     DefaultRetryMaxInterval,
		Jitter:          DefaultRetryJitter,
	}
}

// NextAttemptDelay returns how long a task that has failed attemptsSoFar times
// should wait before becoming runnable again. The interval doubles with each
// failed attempt, starting at InitialInterval and capped at MaxInterval, with
// jitter applied after the cap.
func (c RetryConfig) NextAttemptDelay(attemptsSoFar int) time.Duration {
	if attemptsSoFar < 1 {
		attemptsSoFar = 1
	}
	// Limit the number of doublings to avoid overflowing the interval;
	// doubling 30 times is already more than any practical maximum.
	doublingCount := math.Min(float64(attemptsSoFar-1), 30)
	multiple := math.Pow(2, doublingCount)
	interval := time.Duration(float64(c.InitialInterval) * multiple)
	if interval > c.MaxInterval {
		interval = c.MaxInterval
	}
	if c.Jitter > 0 {
		interval = time.Duration(float64(interval) * (1 + (rand.Float64()*2-1)*c.Jitter))
	}
	return interval
}
