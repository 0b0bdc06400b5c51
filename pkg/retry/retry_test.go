package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"igfeed/pkg/config"
	errs "igfeed/pkg/errors"
	"igfeed/pkg/logger"
)

func transient() error {
	return errs.NewFetch(errs.ReasonInternal, "internal error").WithCode(503)
}

func quickConfig(attempts int) *Config {
	return &Config{
		MaxAttempts: attempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Context:     context.Background(),
		Logger:      logger.NewNopLogger(),
	}
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{9, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffJitterStaysInRange(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	for i := 0; i < 50; i++ {
		delay := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, delay, 140*time.Millisecond)
		assert.LessOrEqual(t, delay, 260*time.Millisecond)
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		if calls < 3 {
			return transient()
		}
		return nil
	}, quickConfig(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return transient()
	}, quickConfig(3))

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")
	assert.True(t, errors.Is(err, errs.ErrFetch))
}

func TestDoDoesNotRetryDomainFailures(t *testing.T) {
	for _, failure := range []error{
		errs.NewFetch(errs.ReasonNotFound, "user x not found").WithCode(404),
		errs.NewFetch(errs.ReasonNoLiveStream, "no live stream"),
		errs.NewAuth(errs.ReasonInvalidCredentials, "invalid credentials"),
		errs.NewParse(errs.ReasonInvalidJSON, "bad"),
	} {
		calls := 0
		err := Do(func() error {
			calls++
			return failure
		}, quickConfig(5))

		assert.Equal(t, failure, err)
		assert.Equal(t, 1, calls)
	}
}

func TestDoHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := quickConfig(0)
	cfg.Backoff = &ConstantBackoff{Delay: time.Hour}
	cfg.Context = ctx
	cfg.OnRetry = func(int, error, time.Duration) { cancel() }

	err := Do(transient, cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(func() (string, error) {
		calls++
		if calls == 1 {
			return "", transient()
		}
		return "page", nil
	}, quickConfig(3))

	require.NoError(t, err)
	assert.Equal(t, "page", result)
}

func TestFromConfig(t *testing.T) {
	rc := config.RetryConfig{Enabled: true, MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 4 * time.Second, Multiplier: 2}
	cfg := FromConfig(context.Background(), rc, logger.NewNopLogger())
	assert.Equal(t, 4, cfg.MaxAttempts)

	rc.Enabled = false
	cfg = FromConfig(context.Background(), rc, logger.NewNopLogger())
	assert.Equal(t, 1, cfg.MaxAttempts)
}

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), 0))
	require.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Wait(ctx, 0), context.Canceled)
}
