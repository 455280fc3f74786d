package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger failure.
type Kind string

const (
	KindOwnerOnly         Kind = "owner-only"
	KindNotAdmin          Kind = "not-admin"
	KindAlreadyExists     Kind = "already-exists"
	KindNotFound          Kind = "not-found"
	KindMaxAdminsReached  Kind = "max-admins-reached"
	KindInvalidValue      Kind = "invalid-value"
	KindContractPaused    Kind = "contract-paused"
	KindInvalidPermission Kind = "invalid-permission"
	KindBatchTooLarge     Kind = "batch-too-large"
	KindRateLimited       Kind = "rate-limited"
	KindRecordLocked      Kind = "record-locked"
)

// Error is returned by every ledger operation that is refused. Two errors
// match under errors.Is when their kinds are equal.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrOwnerOnly         = &Error{Kind: KindOwnerOnly}
	ErrNotAdmin          = &Error{Kind: KindNotAdmin}
	ErrAlreadyExists     = &Error{Kind: KindAlreadyExists}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrMaxAdminsReached  = &Error{Kind: KindMaxAdminsReached}
	ErrInvalidValue      = &Error{Kind: KindInvalidValue}
	ErrContractPaused    = &Error{Kind: KindContractPaused}
	ErrInvalidPermission = &Error{Kind: KindInvalidPermission}
	ErrBatchTooLarge     = &Error{Kind: KindBatchTooLarge}
	ErrRateLimited       = &Error{Kind: KindRateLimited}
	ErrRecordLocked      = &Error{Kind: KindRecordLocked}
)

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a ledger error, or "" for any other error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// rejection marks a failure that happened after every precondition passed.
// The mutation is rolled back but the attempt is still written to the audit
// log with success=false.
type rejection struct {
	err error
}

func (r *rejection) Error() string { return r.err.Error() }

func (r *rejection) Unwrap() error { return r.err }

func reject(err error) error {
	return &rejection{err: err}
}
