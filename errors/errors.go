// Package errors provides error handling for mappa.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for users of the CLI
//
// Usage:
//
//	if err := sys.CreateTopicMap(ctx, iri); err != nil {
//	    return errors.Wrapf(err, "create topic map %q", iri)
//	}
//
//	if errors.Is(err, tm.ErrMapNotFound) {
//	    // populate
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
	CombineErrors      = crdb.CombineErrors
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// GetStack returns the stack trace captured closest to the root cause.
var GetStack = crdb.GetReportableStackTrace

// Common sentinel errors shared across mappa packages.
// Domain packages declare their own sentinels by wrapping these so that
// both the specific and the generic condition match with Is().
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")

	// ErrInvalidInput indicates malformed input (dataset syntax, bad config)
	ErrInvalidInput = New("invalid input")

	// ErrTimeout indicates an operation exceeded its deadline
	ErrTimeout = New("operation timed out")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsConflictError checks if an error is or wraps ErrConflict.
func IsConflictError(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// Mark returns an error with the message of msg that also matches the
// generic sentinel base via Is().
func Mark(base error, msg string) error {
	return crdb.Mark(New(msg), base)
}

// WithMark makes err match each reference via Is() while keeping its own
// chain, so the original cause is still reachable.
func WithMark(err error, references ...error) error {
	for _, ref := range references {
		err = crdb.Mark(err, ref)
	}
	return err
}
