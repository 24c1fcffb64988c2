package logging

import "fmt"

// OperationError annotates an error with the operation that failed and,
// when known, the request and remote target it was working on.
type OperationError struct {
	Operation string
	RequestID string
	Target    string
	Err       error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	msg := e.Operation
	if e.RequestID != "" {
		msg += fmt.Sprintf(" (request_id=%s)", e.RequestID)
	}
	if e.Target != "" {
		msg += fmt.Sprintf(" [%s]", e.Target)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError wraps an error with structured context about where it occurred.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}

// NewTargetError is NewOperationError for calls made against a remote target
// such as a Space host or a gRPC address.
func NewTargetError(operation, target string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, Target: target, Err: err}
}
