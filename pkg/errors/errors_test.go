package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := NewFetch(ReasonNotFound, "user %s not found", "ghost").WithCode(404)
	assert.Equal(t, "fetch error (code 404): user ghost not found", err.Error())

	err = NewAuth(ReasonInvalidCredentials, "invalid credentials")
	assert.Equal(t, "auth error: invalid credentials", err.Error())
}

func TestIsMatchesTypeAndReason(t *testing.T) {
	err := fmt.Errorf("establish: %w", NewAuth(ReasonRateLimited, "rate-limited or IP-blocked"))

	assert.True(t, errors.Is(err, ErrAuth))
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.False(t, errors.Is(err, ErrInvalidCredentials))
	assert.False(t, errors.Is(err, ErrFetch))
	assert.Equal(t, ReasonRateLimited, ReasonOf(err))
	assert.Equal(t, Reason(""), ReasonOf(errors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewFetch(ReasonInternal, "internal error").Wrap(cause)

	assert.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network failure", NewFetch(ReasonInternal, "internal error"), true},
		{"throttled", NewFetch(ReasonInternal, "internal error").WithCode(429), true},
		{"server error", NewFetch(ReasonInternal, "internal error").WithCode(503), true},
		{"forbidden", NewFetch(ReasonInternal, "internal error").WithCode(403), false},
		{"not found", NewFetch(ReasonNotFound, "missing").WithCode(404), false},
		{"auth", NewAuth(ReasonUnexpected, "boom"), false},
		{"parse", NewParse(ReasonInvalidJSON, "bad json"), false},
		{"foreign", errors.New("other"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
