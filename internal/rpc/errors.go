package rpc

import (
	"errors"
)

// Failure kinds; match with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrAuthentication      = errors.New("authentication failed")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrProtocol            = errors.New("protocol error")
)

// Error is the typed failure surfaced by the gateway.
type Error struct {
	Kind    error
	Method  Method
	Status  int    // HTTP status, 0 when no response was received
	Message string // human readable, upstream text for protocol errors
	Err     error  // underlying cause
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Kind.Error() + ": " + e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, method Method, status int, msg string, cause error) *Error {
	return &Error{Kind: kind, Method: method, Status: status, Message: msg, Err: cause}
}

// upstreamFault reports failures that say something about the provider's health.
func upstreamFault(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrAuthentication)
}
