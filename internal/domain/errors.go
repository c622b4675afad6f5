// Package domain holds the pure value types and error taxonomy shared by every
// subsystem of the sync engine: accounts, cached peers and messages, sync jobs,
// rate-limit windows and the daemon status heartbeat.
package domain

import "fmt"

// Kind tags an Error with one of the stable codes the engine surfaces upward,
// per the external error taxonomy.
type Kind string

const (
	KindInvalidArgs       Kind = "INVALID_ARGS"
	KindAuthRequired      Kind = "AUTH_REQUIRED"
	KindNetworkError      Kind = "NETWORK_ERROR"
	KindTelegramError     Kind = "TELEGRAM_ERROR"
	KindAccountNotFound   Kind = "ACCOUNT_NOT_FOUND"
	KindRateLimited       Kind = "RATE_LIMITED"
	KindSQLWriteDenied    Kind = "SQL_WRITE_NOT_ALLOWED"
	KindSQLTableNotFound  Kind = "SQL_TABLE_NOT_FOUND"
	KindSQLSyntaxError    Kind = "SQL_SYNTAX_ERROR"
	KindGeneralError      Kind = "GENERAL_ERROR"
	KindDaemonNotRunning  Kind = "DAEMON_NOT_RUNNING"
	KindAlreadyRunning    Kind = "ALREADY_RUNNING"
	KindPIDIOError        Kind = "PID_IO_ERROR"
	KindNoAccounts        Kind = "NO_ACCOUNTS"
	KindAllAccountsFailed Kind = "ALL_ACCOUNTS_FAILED"
)

// Error is the structured error every public operation returns. It carries a
// stable Kind plus a human-readable Message, and optionally the underlying
// cause for logging.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a tagged Error without a wrapped cause.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an existing error with a Kind, preserving it as the cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, defaulting
// to KindGeneralError otherwise.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindGeneralError
}

// As is a tiny local alias over errors.As to avoid importing the standard
// errors package in every call site that only needs this one shape.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// RateLimitedError is the typed flood-wait error propagated from the rate
// limiter and MTProto adapter up through the sync worker and CLI.
type RateLimitedError struct {
	Method      string
	WaitSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("RATE_LIMITED: method %s blocked for %ds", e.Method, e.WaitSeconds)
}

func (e *RateLimitedError) Kind() Kind { return KindRateLimited }
