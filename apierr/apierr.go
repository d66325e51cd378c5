// Package apierr classifies failures of the vendor API client.
//
// Every failure carries one Kind. Network, decode and api errors are transient: the
// caller retries on its next cycle. AuthExpired is fatal for the session and must be
// answered with a fresh login.
package apierr

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the failure class of an operation.
type Kind string

const (
	KindNone        Kind = ""
	KindNetwork     Kind = "network"
	KindDecode      Kind = "decode"
	KindAPI         Kind = "apiError"
	KindAuthExpired Kind = "authExpired"
)

// Error is a classified failure. Code and Message hold the vendor's business code
// and message when the vendor produced one.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s (code %s): %v", e.Kind, e.Message, e.Code, e.Err)
	case e.Code != "":
		return fmt.Sprintf("%s: %s (code %s)", e.Kind, e.Message, e.Code)
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the caller may retry on its next cycle.
func (e *Error) Transient() bool {
	return e.Kind != KindAuthExpired
}

func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Err: err}
}

func Decode(err error) *Error {
	return &Error{Kind: KindDecode, Err: err}
}

func API(code, message string) *Error {
	return &Error{Kind: KindAPI, Code: code, Message: message}
}

func AuthExpired(message string, err error) *Error {
	return &Error{Kind: KindAuthExpired, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain. Unclassified errors
// are reported as api errors so they are treated as transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindAPI
}

func IsAuthExpired(err error) bool {
	return KindOf(err) == KindAuthExpired
}

// State is the most recent error slot. It is overwritten on every operation, not appended.
type State struct {
	Kind       Kind      `json:"kind"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// IsZero reports whether no error is recorded.
func (s State) IsZero() bool {
	return s.Kind == KindNone
}

// NewState records err at time at. A nil err yields the empty state.
func NewState(err error, at time.Time) State {
	if err == nil {
		return State{}
	}
	return State{Kind: KindOf(err), Message: err.Error(), OccurredAt: at}
}
