package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeConfig            = "CONFIG_ERROR"
	ErrCodeExecution         = "EXECUTION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeNotPending        = "NOT_PENDING"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeToolFailed        = "TOOL_FAILED"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeStore             = "STORE_ERROR"
)

// SkeinError is the structured error type for all engine operations.
type SkeinError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *SkeinError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *SkeinError) Unwrap() error {
	return e.Cause
}

// NewError creates a new SkeinError.
func NewError(code, message string) *SkeinError {
	return &SkeinError{Code: code, Message: message}
}

// NewErrorf creates a new SkeinError with a formatted message.
func NewErrorf(code, format string, args ...any) *SkeinError {
	return &SkeinError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *SkeinError) WithNode(nodeID string) *SkeinError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *SkeinError) WithCause(err error) *SkeinError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *SkeinError) WithDetails(details map[string]any) *SkeinError {
	e.Details = details
	return e
}
