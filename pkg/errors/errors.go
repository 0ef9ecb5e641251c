package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	ErrCodeUnknownEvent ErrorCode = "UNKNOWN_EVENT"

	// Authentication errors
	ErrCodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	ErrCodeNotRegistered ErrorCode = "NOT_REGISTERED"

	// Authorization errors
	ErrCodeForbidden     ErrorCode = "FORBIDDEN"
	ErrCodeNotRoomMember ErrorCode = "NOT_ROOM_MEMBER"

	// Not found errors
	ErrCodeUserNotFound ErrorCode = "USER_NOT_FOUND"
	ErrCodeCallNotFound ErrorCode = "CALL_NOT_FOUND"

	// State errors
	ErrCodeRoomFull     ErrorCode = "ROOM_FULL"
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabase       ErrorCode = "DATABASE_ERROR"
	ErrCodePersistence    ErrorCode = "PERSISTENCE_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// newWithStatus creates an AppError with a specific HTTP status code
func newWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// wrapWithStatus wraps an existing error with an AppError and specific status code
func wrapWithStatus(code ErrorCode, message string, statusCode int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Validation errors
func ValidationError(message string) *AppError {
	return newWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func InvalidInputError(message string) *AppError {
	return newWithStatus(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func MissingFieldError(field string) *AppError {
	return newWithStatus(ErrCodeMissingField, fmt.Sprintf("Missing required field: %s", field), http.StatusBadRequest)
}

func UnknownEventError(event string) *AppError {
	return newWithStatus(ErrCodeUnknownEvent, fmt.Sprintf("Unknown event: %s", event), http.StatusBadRequest)
}

// Authentication errors
func NotRegisteredError() *AppError {
	return newWithStatus(ErrCodeNotRegistered, "Connection must register before this event", http.StatusUnauthorized)
}

// Authorization errors
func ForbiddenError(message string) *AppError {
	return newWithStatus(ErrCodeForbidden, message, http.StatusForbidden)
}

func NotRoomMemberError(roomName string) *AppError {
	return newWithStatus(ErrCodeNotRoomMember, fmt.Sprintf("Not a member of room %s", roomName), http.StatusForbidden)
}

// Not found errors
func UserNotFoundError() *AppError {
	return newWithStatus(ErrCodeUserNotFound, "User not found", http.StatusNotFound)
}

func CallNotFoundError() *AppError {
	return newWithStatus(ErrCodeCallNotFound, "Call not found", http.StatusNotFound)
}

// State errors
func RoomFullError(roomName string) *AppError {
	return newWithStatus(ErrCodeRoomFull, fmt.Sprintf("Room %s already has 2 participants", roomName), http.StatusConflict)
}

func InvalidStateError(message string) *AppError {
	return newWithStatus(ErrCodeInvalidState, message, http.StatusConflict)
}

// Internal errors
func InternalError(message string) *AppError {
	return newWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func DatabaseError(err error) *AppError {
	return wrapWithStatus(ErrCodeDatabase, "Database error", http.StatusInternalServerError, err)
}

func PersistenceError(what string, err error) *AppError {
	return wrapWithStatus(ErrCodePersistence, fmt.Sprintf("Failed to save %s", what), http.StatusInternalServerError, err)
}

func ServiceUnavailableError(message string) *AppError {
	return newWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

// IsAppError checks if an error is or wraps an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// IsCode reports whether err carries the given code
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return wrapWithStatus(ErrCodeInternal, "Internal server error", http.StatusInternalServerError, err)
}
