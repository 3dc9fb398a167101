package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Gateway / snapshot errors
	ErrCodeGatewayUnreachable    ErrorCode = "GATEWAY_UNREACHABLE"
	ErrCodeSnapshotFetchFailed   ErrorCode = "SNAPSHOT_FETCH_FAILED"
	ErrCodeSnapshotDecodeFailed  ErrorCode = "SNAPSHOT_DECODE_FAILED"
	ErrCodeSessionNotFound       ErrorCode = "SESSION_NOT_FOUND"

	// Push channel errors
	ErrCodePushDialFailed   ErrorCode = "PUSH_DIAL_FAILED"
	ErrCodePushDecodeFailed ErrorCode = "PUSH_DECODE_FAILED"
	ErrCodePushExhausted    ErrorCode = "PUSH_RECONNECT_EXHAUSTED"

	// Terminal errors
	ErrCodeTerminalClosed      ErrorCode = "TERMINAL_TRANSPORT_CLOSED"
	ErrCodeTerminalWriteFailed ErrorCode = "TERMINAL_WRITE_FAILED"
	ErrCodeGeometryUnavailable ErrorCode = "GEOMETRY_UNAVAILABLE"

	// State file errors
	ErrCodeStateLoad ErrorCode = "STATE_LOAD_FAILED"
	ErrCodeStateSave ErrorCode = "STATE_SAVE_FAILED"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// QuarterdeckError represents a structured error with context
type QuarterdeckError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *QuarterdeckError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *QuarterdeckError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *QuarterdeckError) WithDetail(key string, value interface{}) *QuarterdeckError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *QuarterdeckError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new QuarterdeckError
func New(code ErrorCode, message string) *QuarterdeckError {
	return &QuarterdeckError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a QuarterdeckError
func Wrap(err error, code ErrorCode, message string) *QuarterdeckError {
	return &QuarterdeckError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is checks if an error is a specific QuarterdeckError code
func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	qdErr, ok := err.(*QuarterdeckError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return Is(unwrapper.Unwrap(), code)
		}
		return false
	}

	return qdErr.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	qdErr, ok := err.(*QuarterdeckError)
	if !ok {
		// Try to unwrap
		if unwrapper, ok := err.(interface{ Unwrap() error }); ok {
			return GetCode(unwrapper.Unwrap())
		}
		return ""
	}

	return qdErr.Code
}
