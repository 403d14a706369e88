package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *Config {
	return &Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentErrorNotRetried(t *testing.T) {
	calls := 0
	permanent := errors.New("invalid api key")
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return permanent
	}, nil)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	retries := 0
	err := Do(context.Background(), fastConfig(), func() error {
		calls++
		return errors.New("rate limit exceeded")
	}, func(attempt int, err error) {
		retries++
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls) // initial + 3 retries
	assert.Equal(t, 3, retries)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		return errors.New("timeout")
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastConfig(), func() (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("connection reset by peer")
		}
		return "mapped", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mapped", got)
}

type declaredError struct {
	retryable bool
}

func (e *declaredError) Error() string     { return "declared" }
func (e *declaredError) IsRetryable() bool { return e.retryable }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"declared retryable", &declaredError{retryable: true}, true},
		{"declared permanent", &declaredError{retryable: false}, false},
		{"http 429", fmt.Errorf("unexpected status: 429"), true},
		{"rate limit text", errors.New("rate limit hit, slow down"), true},
		{"timeout", errors.New("context deadline exceeded: i/o timeout"), true},
		{"auth failure", errors.New("401 unauthorized"), false},
		{"generic", errors.New("malformed response body"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
