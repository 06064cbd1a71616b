package errors

import "errors"

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoUserTurn indicates that a conversation log contains no user turn
	// to regenerate from or revert to
	ErrNoUserTurn = errors.New("no user turn found")

	// ErrTooShortToRevert indicates that a conversation log is too short
	// to remove the last user turn from
	ErrTooShortToRevert = errors.New("conversation too short to revert")

	// ErrRoundInFlight indicates that a discussion round is already running
	// for the session
	ErrRoundInFlight = errors.New("discussion round already in flight")

	// ErrInternal indicates an internal server error
	ErrInternal = errors.New("internal error")
)
