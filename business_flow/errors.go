// Package businessflow contains the core business logic of referral attribution and notification dispatch
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Specialist-related errors
	ErrSpecialistNotFound = errors.New("specialist not found")
	ErrSpecialistInactive = errors.New("specialist is inactive")

	// Period errors
	ErrInvalidPeriod = errors.New("year/month is out of range")

	// Workflow errors
	ErrStagingNotFound        = errors.New("staging not found or expired")
	ErrClientFieldsRequired   = errors.New("client name, surname and contact are required")
	ErrInvalidStateTransition = errors.New("invalid workflow state transition")
	ErrStagingStoreFailed     = errors.New("staging store unavailable")

	// Notes errors
	ErrNotesTooLong = errors.New("notes are too long")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
	ErrInvalidStatus   = errors.New("status must be success or error")
	ErrAuditScope      = errors.New("exactly one of specialist_id or failed_only is required")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// PartialWriteError reports a multi-row write where some rows failed. Rows that
// were written stay written.
type PartialWriteError struct {
	Total  int
	Failed int
	Err    error // first failure
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%d of %d row writes failed: %v", e.Failed, e.Total, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

func IsSpecialistNotFound(err error) bool {
	return errors.Is(err, ErrSpecialistNotFound)
}

func IsSpecialistInactive(err error) bool {
	return errors.Is(err, ErrSpecialistInactive)
}

func IsInvalidPeriod(err error) bool {
	return errors.Is(err, ErrInvalidPeriod)
}

func IsStagingNotFound(err error) bool {
	return errors.Is(err, ErrStagingNotFound)
}

func IsClientFieldsRequired(err error) bool {
	return errors.Is(err, ErrClientFieldsRequired)
}

func IsInvalidStateTransition(err error) bool {
	return errors.Is(err, ErrInvalidStateTransition)
}

func IsAuditScope(err error) bool {
	return errors.Is(err, ErrAuditScope)
}

func IsNotesTooLong(err error) bool {
	return errors.Is(err, ErrNotesTooLong)
}

func IsPartialWrite(err error) bool {
	var pw *PartialWriteError
	return errors.As(err, &pw)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}

func IsInvalidStatus(err error) bool {
	return errors.Is(err, ErrInvalidStatus)
}
