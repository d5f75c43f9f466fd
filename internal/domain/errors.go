/*
errors.go - error taxonomy of the sale core

Every failure that leaves the core is one of five kinds. Each kind has a
sentinel for errors.Is and a structured type for errors.As that carries the
detail an operator needs (missing id, available quantity, product name).

	ErrValidation           -> *ValidationError            (400)
	ErrNotFound             -> *NotFoundError              (404)
	ErrInsufficientStock    -> *InsufficientStockError     (400)
	ErrPrescriptionRequired -> *PrescriptionRequiredError  (400)
	ErrTransaction          -> *TransactionError           (500)
*/
package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed or missing input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced product, inventory row, batch
	// or sale does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned when a row cannot cover the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrPrescriptionRequired is returned when a prescription-only product is
	// sold without a prescription.
	ErrPrescriptionRequired = errors.New("prescription required")

	// ErrTransaction is returned when the atomic unit could not be committed.
	ErrTransaction = errors.New("transaction failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// InsufficientStockError names the row that ran short and what it still holds.
type InsufficientStockError struct {
	Entity    string
	ID        string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock on %s %s: available %d, requested %d",
		e.Entity, e.ID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

type PrescriptionRequiredError struct {
	ProductID   string
	ProductName string
}

func (e *PrescriptionRequiredError) Error() string {
	return fmt.Sprintf("prescription required for %s", e.ProductName)
}

func (e *PrescriptionRequiredError) Unwrap() error {
	return ErrPrescriptionRequired
}

// TransactionError wraps the storage failure that aborted an atomic unit.
type TransactionError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransactionError) Unwrap() []error {
	return []error{ErrTransaction, e.Err}
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// IsClientError reports whether err was caused by the request rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrPrescriptionRequired)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
