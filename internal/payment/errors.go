package payment

import (
	"errors"
	"fmt"
)

// ErrInvalidState is the sentinel matched by every *InvalidStateError.
var ErrInvalidState = errors.New("payment: invalid gateway result")

// ValidationError reports a missing or malformed caller-supplied field. It is
// always raised before any network I/O.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// ConfigurationError reports a missing or malformed credential.
type ConfigurationError struct {
	Gateway Type
	Key     string
	Message string
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "is not configured"
	}
	return fmt.Sprintf("%s: %s %s", e.Gateway, e.Key, msg)
}

// UpstreamError wraps a failed provider call. Body carries the raw provider
// response for diagnostics.
type UpstreamError struct {
	Gateway    Type
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s failed: %v", e.Gateway, e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s failed with status %d: %s", e.Gateway, e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s %s failed: invalid response from payment gateway", e.Gateway, e.Op)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// InvalidStateError is returned when a result lacks the field a checkout URL
// is derived from.
type InvalidStateError struct {
	Gateway Type
	Field   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: gateway result has no %s", e.Gateway, e.Field)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// UnsupportedGatewayError names an identifier outside the known gateway set.
type UnsupportedGatewayError struct {
	Gateway string
}

func (e *UnsupportedGatewayError) Error() string {
	return fmt.Sprintf("unsupported payment gateway: %s", e.Gateway)
}
