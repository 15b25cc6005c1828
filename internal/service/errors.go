package service

import (
	"errors"

	"github.com/iliyamo/hostel-occupancy/internal/database"
	"github.com/iliyamo/hostel-occupancy/internal/repository"
)

// Kind classifies engine failures.  Business-rule rejections carry a
// message meant for the end user.
type Kind string

const (
	KindIdentityConflict    Kind = "identity_conflict"
	KindRoomNotFound        Kind = "room_not_found"
	KindGenderMismatch      Kind = "gender_mismatch"
	KindInvalidAmount       Kind = "invalid_amount"
	KindCapacityExceeded    Kind = "capacity_exceeded"
	KindSchemaMismatch      Kind = "schema_mismatch"
	KindPersistenceConflict Kind = "persistence_conflict"
	KindTransientConnection Kind = "transient_connection"
	KindSemesterNotFound    Kind = "semester_not_found"
	KindSemesterClosed      Kind = "semester_closed"
	KindAssignmentNotFound  Kind = "assignment_not_found"
	KindForbidden           Kind = "forbidden"
	KindInvalidInput        Kind = "invalid_input"
	KindInternal            Kind = "internal"
)

// Error is the typed failure returned by the engine.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the sentinels below work
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrIdentityConflict    = &Error{Kind: KindIdentityConflict}
	ErrRoomNotFound        = &Error{Kind: KindRoomNotFound}
	ErrGenderMismatch      = &Error{Kind: KindGenderMismatch}
	ErrInvalidAmount       = &Error{Kind: KindInvalidAmount}
	ErrCapacityExceeded    = &Error{Kind: KindCapacityExceeded}
	ErrSchemaMismatch      = &Error{Kind: KindSchemaMismatch}
	ErrPersistenceConflict = &Error{Kind: KindPersistenceConflict}
	ErrTransientConnection = &Error{Kind: KindTransientConnection}
	ErrSemesterNotFound    = &Error{Kind: KindSemesterNotFound}
	ErrSemesterClosed      = &Error{Kind: KindSemesterClosed}
	ErrAssignmentNotFound  = &Error{Kind: KindAssignmentNotFound}
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput}
)

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

// KindOf returns the kind of err, or KindInternal for unclassified
// errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// classify turns repository and driver errors into typed errors.  Errors
// that are already typed pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrSchemaMismatch), database.IsSchemaMismatch(err):
		return &Error{Kind: KindSchemaMismatch, Msg: "database schema is missing a required column", Err: err}
	case errors.Is(err, repository.ErrConflict), database.IsConflict(err):
		return &Error{Kind: KindPersistenceConflict, Msg: "the record was changed concurrently or violates a constraint", Err: err}
	case database.IsTransient(err):
		return &Error{Kind: KindTransientConnection, Msg: "database temporarily unavailable, please retry", Err: err}
	}
	return err
}
