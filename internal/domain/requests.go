package domain

import "time"

// Typed request structs per operation. The API boundary validates and decodes
// into these before anything reaches the core; the core never sees raw JSON
// shapes.

// PostLineInput is one line of a posting request.
type PostLineInput struct {
	GLAccountID string      `json:"gl_account_id"`
	Amount      float64     `json:"amount"`
	PostingType PostingType `json:"posting_type"`
	Memo        string      `json:"memo,omitempty"`
}

// PostTransactionRequest creates a transaction together with its lines.
type PostTransactionRequest struct {
	TransactionType TransactionType `json:"transaction_type"`
	Date            string          `json:"date"`
	Memo            string          `json:"memo,omitempty"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty"`
	Lines           []PostLineInput `json:"lines"`
}

// ProrationKind selects which partial-month formula applies to a charge.
type ProrationKind string

const (
	ProrationFirstMonth ProrationKind = "first_month"
	ProrationLastMonth  ProrationKind = "last_month"
)

// ProrationSpec asks the charge creation to derive the amount from a full
// monthly amount and a move-in/move-out date instead of taking it verbatim.
type ProrationSpec struct {
	Kind          ProrationKind `json:"kind"`
	MonthlyAmount float64       `json:"monthly_amount"`
	Date          string        `json:"date"`
}

// CreateChargeRequest posts an accrual charge (debit receivable, credit
// income) and materializes its receivable row.
type CreateChargeRequest struct {
	LeaseID         string         `json:"lease_id,omitempty"`
	ChargeType      string         `json:"charge_type"`
	Amount          float64        `json:"amount"`
	DueDate         string         `json:"due_date"`
	Description     string         `json:"description,omitempty"`
	ARGLAccountID   string         `json:"ar_gl_account_id"`
	IncomeAccountID string         `json:"income_gl_account_id"`
	Source          string         `json:"source,omitempty"`
	ExternalID      *string        `json:"external_id,omitempty"`
	IdempotencyKey  string         `json:"idempotency_key,omitempty"`
	Proration       *ProrationSpec `json:"proration,omitempty"`
}

// AllocationInput is one caller-supplied payment-to-charge allocation. When a
// request carries none, funds spread oldest-due-first across open charges.
type AllocationInput struct {
	ChargeID string  `json:"charge_id"`
	Amount   float64 `json:"amount"`
}

// AllocatePaymentRequest applies a posted payment's funds to charges.
type AllocatePaymentRequest struct {
	PaymentTransactionID string            `json:"payment_transaction_id"`
	LeaseID              string            `json:"lease_id,omitempty"`
	Allocations          []AllocationInput `json:"allocations,omitempty"`
}

// CreateReversalRequest reverses a posted payment after an NSF return or a
// chargeback.
type CreateReversalRequest struct {
	PaymentTransactionID string     `json:"payment_transaction_id"`
	ReasonCode           string     `json:"reason_code,omitempty"`
	ChargebackID         string     `json:"chargeback_id,omitempty"`
	OccurredAt           *time.Time `json:"occurred_at,omitempty"`
	Actor                string     `json:"actor,omitempty"`
}

// CreateScheduleRequest registers a recurring charge/payment template.
type CreateScheduleRequest struct {
	TemplateTransactionID string         `json:"template_transaction_id"`
	Frequency             Frequency      `json:"frequency"`
	DayOfMonth            int            `json:"day_of_month,omitempty"`
	DayOfWeek             int            `json:"day_of_week,omitempty"`
	RolloverPolicy        RolloverPolicy `json:"rollover_policy,omitempty"`
	StartDate             string         `json:"start_date"`
	EndDate               *string        `json:"end_date,omitempty"`
}

// StartReconciliationRequest opens a pending reconciliation for a bank GL
// account.
type StartReconciliationRequest struct {
	BankGLAccountID     string   `json:"bank_gl_account_id"`
	StatementEndingDate *string  `json:"statement_ending_date,omitempty"`
	EndingBalance       *float64 `json:"ending_balance,omitempty"`
}

// ToggleClearedRequest clears or unclears bank lines against a pending
// reconciliation.
type ToggleClearedRequest struct {
	TransactionIDs []string `json:"transaction_ids"`
}

// FinalizeReconciliationRequest finishes a reconciliation, terminally.
type FinalizeReconciliationRequest struct {
	StatementEndingDate string   `json:"statement_ending_date"`
	EndingBalance       *float64 `json:"ending_balance,omitempty"`
}
