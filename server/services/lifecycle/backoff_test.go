package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextAttemptDelay(t *testing.T) {
	config := RetryConfig{
		InitialInterval: 60 * time.Second,
		MaxInterval:     time.Hour,
		Jitter:          0,
	}

	assert.Equal(t, 60*time.Second, config.NextAttemptDelay(1))
	assert.Equal(t, 2*time.Minute, config.NextAttemptDelay(2))
	assert.Equal(t, 4*time.Minute, config.NextAttemptDelay(3))
	assert.Equal(t, 32*time.Minute, config.NextAttemptDelay(6))

	// The sixth doubling would exceed the cap
	assert.Equal(t, time.Hour, config.NextAttemptDelay(7))
	assert.Equal(t, time.Hour, config.NextAttemptDelay(50))

	// Attempt counts below one are treated as the first attempt
	assert.Equal(t, 60*time.Second, config.NextAttemptDelay(0))
	assert.Equal(t, 60*time.Second, config.NextAttemptDelay(-5))
}

func TestNextAttemptDelayJitter(t *testing.T) {
	config := DefaultRetryConfig()

	// First-attempt delays stay within 20% of the initial interval either way
	for i := 0; i < 100; i++ {
		delay := config.NextAttemptDelay(1)
		assert.GreaterOrEqual(t, delay, 48*time.Second)
		assert.LessOrEqual(t, delay, 72*time.Second)
	}

	// Jitter applies after the cap, so no delay ever exceeds 120% of it
	for attempt := 1; attempt <= 40; attempt++ {
		delay := config.NextAttemptDelay(attempt)
		assert.GreaterOrEqual(t, delay, 48*time.Second)
		assert.LessOrEqual(t, delay, time.Duration(float64(time.Hour)*1.2))
	}
}
