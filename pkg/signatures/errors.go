// Package signatures produces and verifies the digital signatures bound to
// stage actions.
package signatures

import (
	"errors"
	"fmt"
)

// SignatureError is raised for caller-recoverable signing failures such as an
// unknown signature type or method, or a stage action that already carries a
// signature. Err, when set, preserves the underlying sentinel for errors.Is.
type SignatureError struct {
	Message string
	Err     error
}

func (e *SignatureError) Error() string {
	return e.Message
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}

// NewSignatureError creates a signature error with a formatted message.
func NewSignatureError(format string, args ...any) *SignatureError {
	return &SignatureError{Message: fmt.Sprintf(format, args...)}
}

// IsSignatureError checks whether err is (or wraps) a SignatureError.
func IsSignatureError(err error) bool {
	var target *SignatureError

	return errors.As(err, &target)
}
