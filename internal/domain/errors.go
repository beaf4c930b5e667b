package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by blob stores when a key has never been written.
	ErrNotFound = errors.New("key not found")
	// ErrUserNotFound is returned when no identity record exists for a user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned by the mock login for anything but the demo account.
	ErrInvalidCredentials = errors.New("invalid credentials, use demo@medmaster.com / demo123")
	// ErrSessionActive is returned when starting a session while another one is still active.
	ErrSessionActive = errors.New("a study session is already active")
	// ErrNothingToResume is returned when there is no active session.
	ErrNothingToResume = errors.New("no active study session")
	// ErrSessionComplete is returned when answering past the session's question count.
	ErrSessionComplete = errors.New("study session already completed")
	// ErrDuplicateAnswer is returned when an answer id was already recorded.
	ErrDuplicateAnswer = errors.New("answer already recorded")
)

// ValidationError reports malformed input. Nothing is applied when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// CollaboratorError wraps a failure of an external generator or grader,
// including responses that could not be decoded into the expected shape.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// ConsistencyError reports an operation that would corrupt the progress record.
type ConsistencyError struct {
	Op  string
	Err error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConsistencyError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConsistency reports whether err is (or wraps) a ConsistencyError.
func IsConsistency(err error) bool {
	var c *ConsistencyError
	return errors.As(err, &c)
}

// IsCollaborator reports whether err is (or wraps) a CollaboratorError.
func IsCollaborator(err error) bool {
	var c *CollaboratorError
	return errors.As(err, &c)
}
