package domain

import "fmt"

// Error types for consistent error handling across the accounting core.
//
// Validation and conflict errors are expected outcomes the API layer maps
// to 4xx responses. Invariant violations mean the ledger itself is wrong
// and must surface loudly.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a malformed or rejected input (bad payload,
// nothing was persisted).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrConflict indicates an operation lost a race or repeated a completed
// action (duplicate idempotency key, concurrent finalize). Safe for the
// caller to retry or ignore; never auto-retried internally.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrDuplicateKey indicates an idempotency-key uniqueness violation.
// Batch callers treat it as "already posted".
type ErrDuplicateKey struct {
	Key string
}

func (e *ErrDuplicateKey) Error() string {
	return fmt.Sprintf("duplicate idempotency key: %s", e.Key)
}

// ErrUnbalanced indicates a transaction's debit and credit line totals
// differ by more than the allowed tolerance.
type ErrUnbalanced struct {
	TransactionID string
	Debits        float64
	Credits       float64
	Tolerance     float64
}

func (e *ErrUnbalanced) Error() string {
	return fmt.Sprintf("transaction %s is unbalanced: debits=%.2f credits=%.2f tolerance=%.2f",
		e.TransactionID, e.Debits, e.Credits, e.Tolerance)
}

// ErrNoBankLine indicates a money-movement transaction has no line touching
// a bank GL account.
type ErrNoBankLine struct {
	TransactionID string
}

func (e *ErrNoBankLine) Error() string {
	return fmt.Sprintf("transaction %s has no bank account line", e.TransactionID)
}

// ErrAlreadyReversed indicates a payment already has a reversal.
type ErrAlreadyReversed struct {
	PaymentID string
}

func (e *ErrAlreadyReversed) Error() string {
	return fmt.Sprintf("payment already reversed: %s", e.PaymentID)
}

// ErrReconciledImmutable indicates an attempt to mutate a transaction line
// or reconciliation that is part of finalized reconciliation history.
type ErrReconciledImmutable struct {
	Resource string
	ID       string
}

func (e *ErrReconciledImmutable) Error() string {
	return fmt.Sprintf("%s %s belongs to a finalized reconciliation and cannot be modified", e.Resource, e.ID)
}

// ErrInvariantViolation indicates the balance invariants failed after a
// transaction was thought committed. This is a bug, not an expected error:
// it is logged at error severity and returned as a 5xx, never swallowed.
type ErrInvariantViolation struct {
	TransactionID string
	Detail        string
}

func (e *ErrInvariantViolation) Error() string {
	return fmt.Sprintf("ledger invariant violated on transaction %s: %s", e.TransactionID, e.Detail)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}
