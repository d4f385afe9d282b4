package asr

import (
	"errors"
	"fmt"
)

// ErrorKind classifies recognizer failures so callers can pick the right
// recovery policy without string matching.
type ErrorKind int

const (
	// KindConfiguration marks missing or malformed credentials. Fatal to the
	// current attempt; requires user correction, never retried.
	KindConfiguration ErrorKind = iota

	// KindAuth marks a signing or token-fetch failure. Retried only as part
	// of the normal reconnect cycle.
	KindAuth

	// KindConnection marks a transport open failure, connect timeout, or
	// abnormal close. Subject to the bounded reconnect policy.
	KindConnection

	// KindProtocol marks a malformed or unexpected inbound message. The
	// offending message is dropped; the connection is unaffected.
	KindProtocol

	// KindService marks a non-success status in an inbound event.
	KindService

	// KindCapture marks microphone acquisition failure. Fatal to starting a
	// session.
	KindCapture
)

// String returns the taxonomy name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuth:
		return "auth"
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindService:
		return "service"
	case KindCapture:
		return "capture"
	default:
		return "unknown"
	}
}

// Error is the typed error carried across component boundaries. Status holds
// the raw service status code for KindService errors and is zero otherwise.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Wrapped error
}

// Errorf constructs an *Error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps err as an *Error of the given kind, preserving the cause
// for errors.Is/errors.As chains.
func WrapError(kind ErrorKind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Wrapped: err}
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("asr: %s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("asr: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}
