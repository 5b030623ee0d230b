// Package transport implements the GraphQL/REST/WebSocket boundary of the
// sync core: typed queries and mutations over HTTP, binary resource
// fetchers, and per-channel WebSocket subscriptions.
package transport

import (
	"errors"
	"fmt"
)

// The three network-boundary failure classes. They are absorbed at the
// coordinator/dispatcher edge and routed to the error policy; UI code
// never sees them raw.

// UnauthorizedError means the credential is invalid or expired.
type UnauthorizedError struct{}

func (*UnauthorizedError) Error() string { return "unauthorized" }

// ServerError is an internal server error reported by the backend.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "server error: " + e.Message }

// ConnectionError wraps a failure to reach the backend at all.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("connection error: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

// IsServerError reports whether err is a ServerError.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// IsConnectionError reports whether err is a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// Typed failures of the binary resource fetchers. Surfaced through the
// pic cache's Err field so the UI can react (a viewer whose own resource
// vanished gets signed out by the policy).
var (
	ErrNonexistentUser = errors.New("nonexistent user")
	ErrNonexistentChat = errors.New("nonexistent chat")
)

// DomainFailure is a domain-specific mutation outcome returned as a value,
// not an error: the server refused the operation for a business reason.
// The empty string means the mutation succeeded.
type DomainFailure string

const (
	FailureNone            DomainFailure = ""
	FailureInvalidChatID   DomainFailure = "INVALID_CHAT_ID"
	FailureInvalidUserID   DomainFailure = "INVALID_USER_ID"
	FailureInvalidMessage  DomainFailure = "INVALID_MESSAGE"
	FailureMustBeAdmin     DomainFailure = "MUST_BE_ADMIN"
	FailureCannotLeaveChat DomainFailure = "CANNOT_LEAVE_CHAT"
)
