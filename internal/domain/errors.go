package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory classifies a failure for the API translation layer.
type ErrorCategory string

const (
	CategoryBusiness ErrorCategory = "BUSINESS"
	CategorySystem   ErrorCategory = "SYSTEM"
)

// Error is a typed business error carrying a stable code, a category and a
// suggested transport status. Errors compare by code, so wrapped instances
// still match their sentinel via errors.Is.
type Error struct {
	Code       string
	Category   ErrorCategory
	HTTPStatus int
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	c := *e
	c.cause = cause
	return &c
}

// WithMessagef returns a copy of e with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

func newBusinessError(code, message string, status int) *Error {
	return &Error{Code: code, Category: CategoryBusiness, HTTPStatus: status, Message: message}
}

func newSystemError(code, message string, status int) *Error {
	return &Error{Code: code, Category: CategorySystem, HTTPStatus: status, Message: message}
}

var (
	// Account errors
	ErrAccountNotFound   = newBusinessError("ACCOUNT_NOT_FOUND", "account not found", http.StatusNotFound)
	ErrAccountInactive   = newBusinessError("ACCOUNT_INACTIVE", "account is inactive", http.StatusConflict)
	ErrInsufficientFunds = newBusinessError("INSUFFICIENT_FUNDS", "debit would breach overdraft limit", http.StatusUnprocessableEntity)

	// Transaction errors
	ErrInvalidAmount              = newBusinessError("INVALID_AMOUNT", "amount must be positive", http.StatusBadRequest)
	ErrSameAccount                = newBusinessError("SAME_ACCOUNT", "debit and credit accounts must differ", http.StatusBadRequest)
	ErrTransactionNotFound        = newBusinessError("TRANSACTION_NOT_FOUND", "transaction not found", http.StatusNotFound)
	ErrDuplicateReference         = newBusinessError("DUPLICATE_REFERENCE", "reference already used by another transaction", http.StatusConflict)
	ErrUnsupportedTransactionType = newBusinessError("UNSUPPORTED_TRANSACTION_TYPE", "no strategy registered for transaction type", http.StatusBadRequest)
	ErrAlreadyReversed            = newBusinessError("ALREADY_REVERSED", "transaction has already been reversed", http.StatusConflict)
	ErrInvalidStatusTransition    = newBusinessError("INVALID_STATUS_TRANSITION", "transaction status may only move forward", http.StatusConflict)
	ErrInvalidOwnerType           = newBusinessError("INVALID_OWNER_TYPE", "account owner type not allowed for this transaction", http.StatusUnprocessableEntity)

	// Batch errors
	ErrBatchNotFound       = newBusinessError("BATCH_NOT_FOUND", "payroll batch not found", http.StatusNotFound)
	ErrBatchAlreadyRunning = newBusinessError("BATCH_ALREADY_RUNNING", "payroll batch is not in a runnable state", http.StatusConflict)
	ErrBatchNotCancellable = newBusinessError("BATCH_NOT_CANCELLABLE", "payroll batch is already terminal", http.StatusConflict)
	ErrEmptyBatch          = newBusinessError("EMPTY_BATCH", "payroll batch has no items", http.StatusBadRequest)

	// System errors
	ErrConcurrencyConflict = newSystemError("CONCURRENCY_CONFLICT", "account version conflict after retries", http.StatusConflict)
	ErrCompensationFailed  = newSystemError("COMPENSATION_FAILED", "compensation could not restore balances, manual reconciliation required", http.StatusInternalServerError)
	ErrStorage             = newSystemError("STORAGE", "storage operation failed", http.StatusInternalServerError)
)

// IsBusiness reports whether err is a business-category error.
func IsBusiness(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Category == CategoryBusiness
}

// IsSystem reports whether err is a system-category error. Unknown error
// types count as system failures so callers treat them as fatal.
func IsSystem(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == CategorySystem
	}
	return err != nil
}
