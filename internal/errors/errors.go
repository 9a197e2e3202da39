package errors

import (
	"fmt"
	"time"
)

// ErrorCode identifies a class of engine error.
type ErrorCode string

const (
	// General
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"

	// Configuration errors are fatal at initialization; the engine
	// refuses to start a run with a contradictory configuration.
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Stepping errors. None of these terminate a run.
	ErrCodeDataGap           ErrorCode = "DATA_GAP"
	ErrCodeRiskRejected      ErrorCode = "RISK_REJECTED"
	ErrCodeNumericDegeneracy ErrorCode = "NUMERIC_DEGENERACY"

	// Persistence errors
	ErrCodeStoreAppend ErrorCode = "STORE_APPEND_ERROR"
	ErrCodeCheckpoint  ErrorCode = "CHECKPOINT_ERROR"
)

// ErrorSeverity classifies how bad an error is.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// AppError is the structured error carried through the engine.
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Severity  ErrorSeverity          `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Symbol    string                 `json:"symbol,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error.
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  getSeverityByCode(code),
		Timestamp: time.Now(),
		Cause:     cause,
		Context:   make(map[string]interface{}),
	}
}

// NewAppErrorWithDetails creates a new application error with details.
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	err := NewAppError(code, message, cause)
	err.Details = details
	return err
}

// WithContext attaches a key/value pair to the error.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSymbol attaches the affected symbol.
func (e *AppError) WithSymbol(symbol string) *AppError {
	e.Symbol = symbol
	return e
}

// getSeverityByCode maps an error code to its severity.
func getSeverityByCode(code ErrorCode) ErrorSeverity {
	switch code {
	case ErrCodeInternal, ErrCodeConfigInvalid:
		return SeverityCritical
	case ErrCodeStoreAppend, ErrCodeCheckpoint:
		return SeverityHigh
	case ErrCodeNumericDegeneracy:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// IsRecoverable reports whether a run may continue after the error.
// Only configuration-time errors are fatal.
func (e *AppError) IsRecoverable() bool {
	switch e.Code {
	case ErrCodeConfigInvalid, ErrCodeInternal:
		return false
	default:
		return true
	}
}

// WrapError wraps a plain error into an AppError. Existing AppErrors
// pass through unchanged.
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return NewAppError(code, message, err)
}

// IsAppError checks whether err is an AppError.
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts an AppError, or nil.
func GetAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return nil
}
