// Package apperror defines the gateway's error taxonomy and its mapping to
// the stable (status, code, message) triples exposed at the HTTP boundary.
package apperror

import (
	"errors"
	"fmt"
)

// Kind identifies one entry of the error taxonomy.
type Kind int

const (
	KindDefault Kind = iota
	KindSyntax
	KindTokenPermission
	KindTokenExpired
	KindJSONWebToken
	KindInvalidPayload
	KindNoDataAvailable
	KindNothingToRemove
	KindStore
	KindEncoding
)

// Error is the typed, recoverable error carried from any pipeline stage or
// service operation to the boundary translator.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Detail != "":
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Detail != "":
		return e.Detail
	}
	return Translate(e.Kind).Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind with a detail message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// KindOf extracts the taxonomy kind from any error. Errors that are not
// *Error collapse to KindDefault so nothing untyped leaks a 5xx by accident.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindDefault
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
