// Package dberr defines the failure taxonomy returned by the data-access core.
//
// Every failure that crosses the core boundary is an *Error carrying a Kind and
// the offending identifier (table, column, parameter or procedure name). The
// wrapped driver error is reachable through errors.Unwrap for server-side
// logging but is never part of Error(), so schema internals do not leak to the
// caller.
package dberr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindPoolExhausted
	KindConnectionBroken
	KindUnknownTable
	KindForbiddenTable
	KindUnknownColumn
	KindNotFound
	KindNoFieldsToUpdate
	KindMissingParameter
	KindArgumentMismatch
	KindDialectUnsupportedOperation
	KindDatabaseExecutionFailure
	KindUnknownProcedure
	KindInvalidArgument
	KindStatementNotAllowed
	KindTimeout
)

var kindNames = map[Kind]string{
	KindUnknown:                     "unknown",
	KindPoolExhausted:               "pool exhausted",
	KindConnectionBroken:            "connection broken",
	KindUnknownTable:                "unknown table",
	KindForbiddenTable:              "forbidden table",
	KindUnknownColumn:               "unknown column",
	KindNotFound:                    "not found",
	KindNoFieldsToUpdate:            "no fields to update",
	KindMissingParameter:            "missing parameter",
	KindArgumentMismatch:            "argument mismatch",
	KindDialectUnsupportedOperation: "dialect unsupported operation",
	KindDatabaseExecutionFailure:    "database execution failure",
	KindUnknownProcedure:            "unknown procedure",
	KindInvalidArgument:             "invalid argument",
	KindStatementNotAllowed:         "statement not allowed",
	KindTimeout:                     "timeout",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// HTTPStatus maps a kind to the status code an HTTP layer should answer with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnknownTable, KindUnknownColumn, KindNotFound, KindUnknownProcedure:
		return http.StatusNotFound
	case KindForbiddenTable, KindStatementNotAllowed:
		return http.StatusForbidden
	case KindNoFieldsToUpdate, KindMissingParameter, KindArgumentMismatch, KindInvalidArgument:
		return http.StatusBadRequest
	case KindDialectUnsupportedOperation:
		return http.StatusNotImplemented
	case KindPoolExhausted, KindConnectionBroken:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified core failure.
type Error struct {
	Kind       Kind
	Identifier string
	Err        error
}

// New returns an *Error of the given kind for identifier.
func New(kind Kind, identifier string) *Error {
	return &Error{Kind: kind, Identifier: identifier}
}

// Wrap returns an *Error of the given kind that keeps err for diagnostics.
func Wrap(kind Kind, identifier string, err error) *Error {
	return &Error{Kind: kind, Identifier: identifier, Err: err}
}

func (e *Error) Error() string {
	if e.Identifier == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %q", e.Kind, e.Identifier)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Identifier when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Identifier == "" || t.Identifier == e.Identifier
}

// Sentinels for errors.Is.
var (
	ErrPoolExhausted               = New(KindPoolExhausted, "")
	ErrConnectionBroken            = New(KindConnectionBroken, "")
	ErrUnknownTable                = New(KindUnknownTable, "")
	ErrForbiddenTable              = New(KindForbiddenTable, "")
	ErrUnknownColumn               = New(KindUnknownColumn, "")
	ErrNotFound                    = New(KindNotFound, "")
	ErrNoFieldsToUpdate            = New(KindNoFieldsToUpdate, "")
	ErrMissingParameter            = New(KindMissingParameter, "")
	ErrArgumentMismatch            = New(KindArgumentMismatch, "")
	ErrDialectUnsupportedOperation = New(KindDialectUnsupportedOperation, "")
	ErrDatabaseExecutionFailure    = New(KindDatabaseExecutionFailure, "")
	ErrUnknownProcedure            = New(KindUnknownProcedure, "")
	ErrInvalidArgument             = New(KindInvalidArgument, "")
	ErrStatementNotAllowed         = New(KindStatementNotAllowed, "")
	ErrTimeout                     = New(KindTimeout, "")
)

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
