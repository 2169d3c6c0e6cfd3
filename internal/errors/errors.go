// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package errors implements the internal error taxonomy: every
// failure inside the core is tagged with a Kind so the EventBus admission
// pipeline and the agent shipper can map it to an Ack status without
// resorting to exceptions or string sniffing.
package errors

import (
	"errors"
	"fmt"
)

// Kind categorizes an error by how its caller should react to it.
type Kind int

const (
	KindUnknown Kind = iota
	// KindTransient covers I/O timeouts, lock contention, and downstream
	// back-pressure. Maps to Ack status RETRY.
	KindTransient
	// KindPermanent covers size violations, malformed payloads, and
	// schema mismatches. Maps to Ack status INVALID; never retried.
	KindPermanent
	// KindSecurity covers unknown peer CN and bad-signature failures.
	// Maps to Ack status UNAUTHORIZED.
	KindSecurity
	// KindInternal covers unexpected exceptions in a handler. Maps to
	// Ack status RETRY, logged with full detail, never leaked to the
	// client.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindSecurity:
		return "security"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a structured, Kind-tagged error.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
	Attributes map[string]any
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Underlying)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Underlying }

// New creates a new Error of the specified kind.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf creates a new Error of the specified kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error as a new Error of the specified kind.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Underlying: err}
}

// Wrapf wraps an existing error as a new Error of the specified kind with a
// formatted message.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Underlying: err}
}

// Attr attaches an attribute to an error, wrapping it as KindInternal if it
// is not already a tagged Error.
func Attr(err error, key string, val any) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: KindInternal, Message: err.Error(), Underlying: err}
	}
	if e.Attributes == nil {
		e.Attributes = make(map[string]any)
	}
	e.Attributes[key] = val
	return e
}

// GetKind returns the Kind of err, or KindUnknown if it is not a tagged Error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// GetAttributes collects attributes across the whole error chain.
func GetAttributes(err error) map[string]any {
	attrs := make(map[string]any)
	var e *Error
	cur := err
	for cur != nil {
		if errors.As(cur, &e) {
			for k, v := range e.Attributes {
				if _, ok := attrs[k]; !ok {
					attrs[k] = v
				}
			}
			cur = e.Underlying
		} else {
			break
		}
	}
	return attrs
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain matching target's type.
func As(err error, target any) bool { return errors.As(err, target) }

// Unwrap returns the result of err's Unwrap method, if any.
func Unwrap(err error) error { return errors.Unwrap(err) }
