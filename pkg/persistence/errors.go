// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTemplateNotFound indicates a workflow template was not found.
	ErrTemplateNotFound = errors.New("workflow template not found")

	// ErrPackageNotFound indicates a package was not found by id or
	// reference number.
	ErrPackageNotFound = errors.New("package not found")

	// ErrStageActionNotFound indicates a stage action was not found.
	ErrStageActionNotFound = errors.New("stage action not found")

	// ErrSignatureNotFound indicates no signature exists for the lookup.
	ErrSignatureNotFound = errors.New("signature not found")

	// ErrSignatureExists indicates the stage action already carries a
	// signature.
	ErrSignatureExists = errors.New("signature already exists for stage action")

	// ErrViolationNotFound indicates an integrity violation was not found.
	ErrViolationNotFound = errors.New("integrity violation not found")

	// ErrOrganizationNotFound indicates an organization was not found.
	ErrOrganizationNotFound = errors.New("organization not found")

	// ErrOfficeNotFound indicates an office was not found.
	ErrOfficeNotFound = errors.New("office not found")

	// ErrUserNotFound indicates a user was not found.
	ErrUserNotFound = errors.New("user not found")
)

// PackageError wraps package-related errors with operation context.
type PackageError struct {
	Op        string // Operation being performed (e.g., "GetByID", "Save")
	PackageID string // Package ID or reference number if applicable
	Err       error  // Underlying error
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("%s operation failed for package %s: %v", e.Op, e.PackageID, e.Err)
}

func (e *PackageError) Unwrap() error {
	return e.Err
}

func (e *PackageError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewPackageError creates a new package error with context.
func NewPackageError(op, packageID string, err error) *PackageError {
	return &PackageError{Op: op, PackageID: packageID, Err: err}
}

// TemplateError wraps template-related errors with operation context.
type TemplateError struct {
	Op         string
	TemplateID string
	Err        error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s operation failed for template %s: %v", e.Op, e.TemplateID, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

func (e *TemplateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTemplateError creates a new template error with context.
func NewTemplateError(op, templateID string, err error) *TemplateError {
	return &TemplateError{Op: op, TemplateID: templateID, Err: err}
}

// IsTemplateNotFound checks if an error indicates a missing template.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsPackageNotFound checks if an error indicates a missing package.
func IsPackageNotFound(err error) bool {
	return errors.Is(err, ErrPackageNotFound)
}

// IsSignatureExists checks if an error indicates a duplicate signature.
func IsSignatureExists(err error) bool {
	return errors.Is(err, ErrSignatureExists)
}

// IsNotFound checks if an error is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrPackageNotFound) ||
		errors.Is(err, ErrStageActionNotFound) ||
		errors.Is(err, ErrSignatureNotFound) ||
		errors.Is(err, ErrViolationNotFound) ||
		errors.Is(err, ErrOrganizationNotFound) ||
		errors.Is(err, ErrOfficeNotFound) ||
		errors.Is(err, ErrUserNotFound)
}
