package apierr

import (
	"errors"
	"fmt"
	"time"
)

// ExchangeError means the exchange envelope reported a non-success code.
// Not retried automatically: the code may indicate bad parameters, balance or
// rate limits, which only the caller can judge.
type ExchangeError struct {
	Code string
	Msg  string
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("exchange error %s: %s", e.Code, e.Msg)
}

// TransportError is a socket/HTTP level failure (DNS, timeout, reset, non-200
// status). Recoverable; callers or the session's reconnect logic may retry.
type TransportError struct {
	Op     string
	Status int // HTTP status when applicable, 0 otherwise
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport error during %s: http %d", e.Op, e.Status)
	}
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError means the login was rejected (bad key/secret/passphrase or clock
// skew). Fatal for a session; retried only with capped backoff.
type AuthError struct {
	Code int
	Msg  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth rejected (code %d): %s", e.Code, e.Msg)
}

// AuthTimeoutError means no login ack arrived within the bounded window.
type AuthTimeoutError struct {
	Timeout time.Duration
}

func (e *AuthTimeoutError) Error() string {
	return fmt.Sprintf("no login ack within %s", e.Timeout)
}

// ProtocolError marks a malformed or unexpected frame. Logged and dropped,
// never fatal for the read loop.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsTransient reports whether a retry could plausibly succeed.
func IsTransient(err error) bool {
	var te *TransportError
	var ate *AuthTimeoutError
	return errors.As(err, &te) || errors.As(err, &ate)
}

// IsAuth reports whether the error is credential-related.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// AsExchange extracts the exchange error if present.
func AsExchange(err error) (*ExchangeError, bool) {
	var ee *ExchangeError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
