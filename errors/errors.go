package errors

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Details holds additional error details that can be viewed and logged.
type Details map[string]interface{}

// Error is the general error type for appearing errors in the server.
type Error struct {
	// Code is the error code.
	Code Code
	// Kind is the detailed reason. Optional.
	Kind Kind
	// Err is the original error that occurred.
	Err error
	// Message is the manually created message that can be used in order to
	// trace the error.
	Message string
	// Details holds any error details.
	Details Details
}

func (e Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Cast casts the given error to Error. If the given one is not of type Error,
// an unknown one with error code ErrUnexpected is created and false returned.
func Cast(err error) (Error, bool) {
	if e, ok := err.(Error); ok {
		return e, ok
	}
	e := Error{
		Code:    ErrUnexpected,
		Err:     err,
		Message: "unknown operation",
		Details: make(map[string]interface{}),
	}
	return e, false
}

// Wrap wraps the given error with the given message.
func Wrap(err error, message string, details Details) error {
	e, ok := Cast(err)
	// Check whether to append to message or replace.
	var errMsg string
	if ok {
		errMsg = fmt.Sprintf("%s: %s", message, e.Message)
	} else {
		errMsg = message
	}
	// Add details.
	if details != nil && e.Details == nil {
		e.Details = make(Details)
	}
	for k, v := range details {
		// Check if detail with same key already set.
		if originalV, ok := e.Details[k]; ok {
			// Add prefix to original key. Original value will be overwritten
			// after this block.
			e.Details[fmt.Sprintf("_%s", k)] = originalV
		}
		e.Details[k] = v
	}
	return Error{
		Code:    e.Code,
		Kind:    e.Kind,
		Err:     e.Err,
		Message: errMsg,
		Details: e.Details,
	}
}

// FromErr creates an Error with the given details.
func FromErr(message string, code Code, err error, details Details) error {
	return Error{
		Code:    code,
		Err:     err,
		Message: message,
		Details: details,
	}
}

// detailsAsJSON encodes the Details of the given Error as JSON string.
func detailsAsJSON(err error) []byte {
	e, _ := Cast(err)
	if e.Details == nil {
		return nil
	}
	b, marshalErr := json.Marshal(e.Details)
	if marshalErr != nil {
		return nil
	}
	return b
}

// Log logs the given error with its details. If the error is ErrFatal, the
// error will be logged as fatal.
func Log(logger *zap.Logger, err error) {
	e, _ := Cast(err)
	fields := make([]zap.Field, 0, len(e.Details)+3)
	fields = append(fields, zap.String("err_code", string(e.Code)))
	if e.Kind != "" {
		fields = append(fields, zap.String("err_kind", string(e.Kind)))
	}
	if e.Err != nil {
		fields = append(fields, zap.String("err_orig", e.Err.Error()))
	}
	// Add each details entry as separate field for better readability.
	for k, v := range e.Details {
		fields = append(fields, zap.Any(fmt.Sprintf("err_details_%s", k), v))
	}
	logger = logger.With(fields...)
	switch e.Code {
	case ErrBadRequest, ErrProtocolViolation, ErrNotFound, ErrJoinRejected, ErrMapping:
		logger.Warn(e.Error())
	case ErrStaleTurn:
		logger.Debug(e.Error())
	case ErrFatal:
		logger.Fatal(e.Error())
	default:
		logger.Error(e.Error())
	}
}

// Prettify returns a detailed error string with error details.
func Prettify(err error) string {
	e, _ := Cast(err)
	return fmt.Sprintf("Code: %s\nKind: %s\nOriginal Error: %+v\nMessage: %s\nDetails: %s\n",
		e.Code, e.Kind, e.Err, e.Message, detailsAsJSON(err))
}

// BlameUser checks if the given error is caused by a misbehaving or unlucky
// client and therefore safe to surface.
func BlameUser(err error) bool {
	e, ok := Cast(err)
	if !ok {
		// Unexpected.
		return false
	}
	switch e.Code {
	case ErrBadRequest,
		ErrProtocolViolation,
		ErrNotFound,
		ErrJoinRejected,
		ErrRuleViolation,
		ErrStaleTurn,
		ErrDecode:
		return true
	}
	// Otherwise.
	return false
}

// Is checks whether the given error has the given Code.
func Is(err error, code Code) bool {
	e, _ := Cast(err)
	return e.Code == code
}

// KindOf returns the Kind of the given error or KindUnexpected for foreign
// errors.
func KindOf(err error) Kind {
	e, ok := Cast(err)
	if !ok {
		return KindUnexpected
	}
	if e.Kind == "" {
		return KindUnexpected
	}
	return e.Kind
}
