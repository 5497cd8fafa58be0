package futapi

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// =============================================================================
// Fatal Errors
// =============================================================================

// FatalError represents an error after which no further authenticated call
// should be made. The CLI exits on these.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError wraps an error as fatal.
func NewFatalError(err error) error {
	return &FatalError{Err: err}
}

// IsFatalError checks if the error is a fatal error that should stop the process.
func IsFatalError(err error) bool {
	if err == nil {
		return false
	}
	var fe *FatalError
	return errors.As(err, &fe)
}

// Trust conditions reported by the game backend. The pipeline returns these
// wrapped in a FatalError.
var (
	ErrSessionExpired  = errors.New("session expired (401)")
	ErrRateLimited     = errors.New("too many requests, temporary market ban (429)")
	ErrCaptchaRequired = errors.New("captcha required")
)

// Handshake failures.
var (
	ErrLoginRejected           = errors.New("login rejected")
	ErrMissingVerificationCode = errors.New("a verification code is required")
	ErrTokenExtraction         = errors.New("unexpected response while extracting tokens")
	ErrShardsUnavailable       = errors.New("failed to fetch shards")
	ErrNoPersonaFound          = errors.New("no persona found for this platform")
	ErrExpiredAccess           = errors.New("early access has expired")
	ErrLoggedInElsewhere       = errors.New("account is logged in elsewhere")
	ErrBackendUnavailable      = errors.New("servers are probably temporarily down")
	ErrMultipleSession         = errors.New("multiple session")
	ErrMaxSessions             = errors.New("max sessions")
	ErrDoLoginFailed           = errors.New("doLogin: doLogin failed")
)

var (
	ErrUnknownPlatform    = errors.New("unknown platform")
	ErrNotAuthenticated   = errors.New("not authenticated, call Login first")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrBeaconAck          = errors.New("pin event was not acknowledged")
)

// LoginError carries the reason shown by the login page.
type LoginError struct {
	Reason string
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login error, reason: %s", e.Reason)
}

func (e *LoginError) Is(target error) bool {
	return target == ErrLoginRejected
}

// AuthorizationError is returned when the game backend refuses the auth code
// exchange with a reason.
type AuthorizationError struct {
	Reason string
	Err    error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization failed: %s", e.Reason)
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// authorizationReasons maps the backend's reason text to named errors.
var authorizationReasons = map[string]error{
	"multiple session":        ErrMultipleSession,
	"max sessions":            ErrMaxSessions,
	"doLogin: doLogin failed": ErrDoLoginFailed,
}

func newAuthorizationError(reason string) error {
	return &AuthorizationError{Reason: reason, Err: authorizationReasons[reason]}
}

// CallError is a failed pipeline call that is not one of the fatal trust
// conditions. StatusCode is zero for transport failures.
type CallError struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by a CallError, or 0.
func StatusCode(err error) int {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	return 0
}

// =============================================================================
// Retryable Errors
// =============================================================================

// retryableErrorPatterns contains error message substrings that indicate retryable errors.
var retryableErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"context deadline exceeded",
	"TLS handshake timeout",
	"EOF",
	"malformed HTTP response",
	"proxy responded with non 200 code",
	"use of closed network connection",
}

// IsRetryableError reports whether a failed login is worth starting over,
// possibly through another proxy.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if IsFatalError(err) {
		return false
	}

	if isNetworkTimeout(err) {
		return true
	}

	return containsRetryablePattern(err.Error())
}

func isNetworkTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func containsRetryablePattern(errStr string) bool {
	for _, pattern := range retryableErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
