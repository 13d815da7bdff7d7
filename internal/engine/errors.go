package engine

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/session-engine/internal/errors"
)

// ===== ENGINE ERRORS =====

var (
	ErrNotAuthorized = errors.New("not authorized")

	// Definition specific errors
	ErrDefinitionNotFound      = errors.New("assessment definition not found")
	ErrDefinitionNotActive     = errors.New("assessment definition is not active")
	ErrDefinitionInvalidStatus = errors.New("invalid definition status transition")

	// Synchronized start errors
	ErrStartGateClosed  = errors.New("synchronized session has not started yet")
	ErrAlreadyActivated = errors.New("definition already activated")
	ErrNoStartTime      = errors.New("synchronized definition has no start time")

	// Attempt specific errors
	ErrAttemptNotActive        = errors.New("attempt is not active")
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")
	ErrSessionNotStarted       = errors.New("session not started")
	ErrSessionAlreadyStarted   = errors.New("session already started")
)

// Use shared validation errors from errors package.
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// PersistenceError wraps a transient store failure. Callers may retry the
// operation; the attempt is left in its last-known-good state.
type PersistenceError struct {
	Op        string `json:"op"`
	AttemptID string `json:"attempt_id"`
	Err       error  `json:"-"`
}

func (pe *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s for attempt %s: %v", pe.Op, pe.AttemptID, pe.Err)
}

func (pe *PersistenceError) Unwrap() error {
	return pe.Err
}

func NewPersistenceError(op, attemptID string, err error) *PersistenceError {
	return &PersistenceError{Op: op, AttemptID: attemptID, Err: err}
}

// ===== ERROR HELPERS =====

// IsNotFound checks if error represents a "not found" condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDefinitionNotFound)
}

// IsNotAuthorized checks if error represents a user-visible rejection: an
// activation by a non-activator identity, or a start() before the
// synchronized gate opens (including a gate with no start time yet).
func IsNotAuthorized(err error) bool {
	return errors.Is(err, ErrNotAuthorized) ||
		errors.Is(err, ErrStartGateClosed) ||
		errors.Is(err, ErrNoStartTime)
}

// IsPersistence checks if error is a retryable store failure.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
