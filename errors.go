// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package unirpc

import (
	"errors"
	"fmt"
	"reflect"
	"unicode"
)

// Kind names an error class. It is the value of the exception field of an
// error envelope.
type Kind string

const (
	KindInvalidEnvelope  Kind = "InvalidEnvelope"
	KindUnknownArrayTag  Kind = "UnknownArrayTag"
	KindInvalidBase64    Kind = "InvalidBase64"
	KindShapeMismatch    Kind = "ShapeMismatch"
	KindUnsupportedDType Kind = "UnsupportedDType"
	KindHandlerError     Kind = "HandlerError"
)

// Error is a protocol error with a kind and a human-readable description.
type Error struct {
	Kind  Kind
	Descr string
	Err   error
}

func (e *Error) Error() string { return e.Descr }

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Descr == "" && t.Kind == e.Kind
}

// ErrorKind implements Kinded.
func (e *Error) ErrorKind() string { return string(e.Kind) }

var (
	ErrInvalidEnvelope  = &Error{Kind: KindInvalidEnvelope}
	ErrUnknownArrayTag  = &Error{Kind: KindUnknownArrayTag}
	ErrInvalidBase64    = &Error{Kind: KindInvalidBase64}
	ErrShapeMismatch    = &Error{Kind: KindShapeMismatch}
	ErrUnsupportedDType = &Error{Kind: KindUnsupportedDType}
)

func newError(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Descr: fmt.Sprintf(format, args...), Err: err}
}

// Kinded is implemented by handler errors that want to control the
// exception name reported to the caller.
type Kinded interface {
	ErrorKind() string
}

// KindOf returns the exception name reported for err: the ErrorKind of the
// first Kinded error in its chain, otherwise the name of its exported
// concrete type (for example "PathError"), otherwise "HandlerError".
func KindOf(err error) string {
	var k Kinded
	if errors.As(err, &k) {
		if name := k.ErrorKind(); name != "" {
			return name
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil {
		if name := t.Name(); name != "" && unicode.IsUpper([]rune(name)[0]) {
			return name
		}
	}
	return string(KindHandlerError)
}

// HandlerError wraps an error returned or raised by a handle. Its kind is the
// kind of the wrapped error and its message is the wrapped message verbatim.
type HandlerError struct {
	Handle string
	Err    error
	Stack  []byte // set when the handle panicked
}

func (e *HandlerError) Error() string { return e.Err.Error() }

func (e *HandlerError) Unwrap() error { return e.Err }

func (e *HandlerError) ErrorKind() string { return KindOf(e.Err) }
