package futapi

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "connection reset", err: errors.New("read tcp: connection reset by peer"), want: true},
		{name: "proxy refused", err: fmt.Errorf("check state: %w", errors.New("proxy responded with non 200 code: 407")), want: true},
		{name: "deadline", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded), want: true},
		{name: "fatal even if network", err: NewFatalError(errors.New("connection reset")), want: false},
		{name: "login rejected", err: &LoginError{Reason: "bad password"}, want: false},
		{name: "no persona", err: ErrNoPersonaFound, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
		})
	}
}

func TestLoginErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("login: %w", &LoginError{Reason: "Your credentials are incorrect"})
	assert.ErrorIs(t, err, ErrLoginRejected)
	assert.Contains(t, err.Error(), "Your credentials are incorrect")
}

func TestAuthorizationErrorReasons(t *testing.T) {
	assert.ErrorIs(t, newAuthorizationError("max sessions"), ErrMaxSessions)
	assert.ErrorIs(t, newAuthorizationError("multiple session"), ErrMultipleSession)

	err := newAuthorizationError("banned")
	var authErr *AuthorizationError
	assert.ErrorAs(t, err, &authErr)
	assert.Nil(t, errors.Unwrap(err))
	assert.Equal(t, "authorization failed: banned", err.Error())
}

func TestCallErrorStatus(t *testing.T) {
	err := fmt.Errorf("bid: %w", &CallError{Method: "PUT", Path: "trade/1/bid", StatusCode: 461})
	assert.Equal(t, 461, StatusCode(err))
	assert.True(t, isStatus(err, 461))
	assert.Zero(t, StatusCode(errors.New("other")))
	assert.Equal(t, "bid: PUT trade/1/bid: status 461", err.Error())
}
