package domain

import "time"

// ChargeStatus is recomputed from payment allocations, never set directly.
type ChargeStatus string

const (
	ChargeOpen      ChargeStatus = "open"
	ChargePartial   ChargeStatus = "partial"
	ChargePaid      ChargeStatus = "paid"
	ChargeCancelled ChargeStatus = "cancelled"
)

// StatusForOpenAmount derives a charge status from its open balance, using
// the ledger tolerance so a residual half-cent still counts as paid.
func StatusForOpenAmount(amount, amountOpen float64) ChargeStatus {
	switch {
	case amountOpen <= BalanceTolerance:
		return ChargePaid
	case amountOpen < amount:
		return ChargePartial
	default:
		return ChargeOpen
	}
}

// Charge is a derived financial obligation linked 1:1 to a posted
// transaction.
type Charge struct {
	ID             string       `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID          string       `gorm:"type:uuid;index;not null" json:"org_id"`
	LeaseID        string       `gorm:"size:64;index" json:"lease_id,omitempty"`
	TransactionID  string       `gorm:"type:uuid;uniqueIndex;not null" json:"transaction_id"`
	ChargeType     string       `gorm:"size:40;not null" json:"charge_type"`
	Amount         float64      `gorm:"not null" json:"amount"`
	AmountOpen     float64      `gorm:"not null" json:"amount_open"`
	DueDate        time.Time    `gorm:"type:date;index" json:"due_date"`
	Description    string       `gorm:"size:500" json:"description,omitempty"`
	Status         ChargeStatus `gorm:"size:20;index;not null;default:open" json:"status"`
	Source         string       `gorm:"size:40" json:"source,omitempty"`
	ExternalID     *string      `gorm:"size:255;index" json:"external_id,omitempty"`
	IsProrated     bool         `gorm:"not null;default:false" json:"is_prorated"`
	ProrationDays  *int         `json:"proration_days,omitempty"`
	BaseAmount     *float64     `json:"base_amount,omitempty"`
	ParentChargeID *string      `gorm:"type:uuid" json:"parent_charge_id,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// PaymentAllocation links a payment transaction's funds to a charge.
// Position preserves the caller-supplied allocation order; when the caller
// supplies none, oldest-due-first is the default tie-break.
type PaymentAllocation struct {
	ID                   string    `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID                string    `gorm:"type:uuid;index;not null" json:"org_id"`
	PaymentTransactionID string    `gorm:"type:uuid;index;not null" json:"payment_transaction_id"`
	ChargeID             string    `gorm:"type:uuid;index;not null" json:"charge_id"`
	AllocatedAmount      float64   `gorm:"not null" json:"allocated_amount"`
	Position             int       `gorm:"not null;default:0" json:"position"`
	CreatedAt            time.Time `json:"created_at"`
}

// ReversalKind distinguishes the two external reversal events.
type ReversalKind string

const (
	ReversalNSF        ReversalKind = "nsf"
	ReversalChargeback ReversalKind = "chargeback"
)

// ChargebackResolution records the outcome of a disputed chargeback.
type ChargebackResolution string

const (
	ChargebackWon  ChargebackResolution = "won"
	ChargebackLost ChargebackResolution = "lost"
)

// ReversalRecord documents why a payment was reversed and who did it.
type ReversalRecord struct {
	ID                    string               `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID                 string               `gorm:"type:uuid;index;not null" json:"org_id"`
	PaymentTransactionID  string               `gorm:"type:uuid;uniqueIndex;not null" json:"payment_transaction_id"`
	ReversalTransactionID string               `gorm:"type:uuid;not null" json:"reversal_transaction_id"`
	Kind                  ReversalKind         `gorm:"size:20;not null" json:"kind"`
	ReasonCode            string               `gorm:"size:40" json:"reason_code,omitempty"`
	ChargebackID          string               `gorm:"size:100" json:"chargeback_id,omitempty"`
	Resolution            ChargebackResolution `gorm:"size:10" json:"resolution,omitempty"`
	OccurredAt            time.Time            `gorm:"type:date;not null" json:"occurred_at"`
	CreatedBy             string               `gorm:"size:100" json:"created_by,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// DepositStatus of an undeposited-funds deposit.
type DepositStatus string

const (
	DepositPending DepositStatus = "pending"
	DepositPosted  DepositStatus = "posted"
)

// Deposit groups one or more payment lines awaiting a bank deposit. The
// deposit backfill materializes these rows from legacy transaction shapes.
type Deposit struct {
	ID              string        `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID           string        `gorm:"type:uuid;index;not null" json:"org_id"`
	TransactionID   string        `gorm:"type:uuid;uniqueIndex;not null" json:"transaction_id"`
	BankGLAccountID string        `gorm:"type:uuid;index" json:"bank_gl_account_id,omitempty"`
	Status          DepositStatus `gorm:"size:20;not null;default:posted" json:"status"`
	Items           []DepositItem `gorm:"foreignKey:DepositID" json:"items,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// DepositItem links a deposit to one constituent payment transaction.
type DepositItem struct {
	ID                   string    `gorm:"type:uuid;primaryKey" json:"id"`
	DepositID            string    `gorm:"type:uuid;index;not null" json:"deposit_id"`
	PaymentTransactionID string    `gorm:"type:uuid;index;not null" json:"payment_transaction_id"`
	Amount               float64   `gorm:"not null" json:"amount"`
	CreatedAt            time.Time `json:"created_at"`
}

// BackfillMarker records a completed one-time migration by name. The marker
// check and write are not atomic with the migration itself, so backfill
// functions must tolerate re-running on the same data.
type BackfillMarker struct {
	Name        string    `gorm:"size:255;primaryKey" json:"name"`
	CompletedAt time.Time `gorm:"not null" json:"completed_at"`
}
