package errors

import "fmt"

// NewContextAbortedError returns a new ErrAborted error with kind
// KindContextAborted for the given operation.
func NewContextAbortedError(operation string) error {
	return Error{
		Code:    ErrAborted,
		Kind:    KindContextAborted,
		Message: fmt.Sprintf("%s: context aborted", operation),
	}
}

// NewInternalError creates a new ErrInternal error with the given message.
func NewInternalError(message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Message: message,
		Details: details,
	}
}

// NewInternalErrorFromErr creates a new ErrInternal error with the given
// message that wraps the given error.
func NewInternalErrorFromErr(err error, message string, details Details) error {
	return Error{
		Code:    ErrInternal,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// NewJoinRejectedError creates a new ErrJoinRejected error with the given kind
// as reason.
func NewJoinRejectedError(kind Kind, joinCode string) error {
	return Error{
		Code:    ErrJoinRejected,
		Kind:    kind,
		Message: fmt.Sprintf("join rejected: %s", kind),
		Details: Details{
			"join_code": joinCode,
		},
	}
}

// NewStaleTurnError creates a new ErrStaleTurn error for a bundle that targets
// the given turn although another one is the current one.
func NewStaleTurnError(targetTurn int, currentTurn int) error {
	return Error{
		Code:    ErrStaleTurn,
		Message: fmt.Sprintf("bundle targets turn %d but current turn is %d", targetTurn, currentTurn),
		Details: Details{
			"target_turn":  targetTurn,
			"current_turn": currentTurn,
		},
	}
}

// NewDecodeError creates a new ErrDecode error with the given kind.
func NewDecodeError(message string, kind Kind, err error) error {
	return Error{
		Code:    ErrDecode,
		Kind:    kind,
		Err:     err,
		Message: message,
	}
}
