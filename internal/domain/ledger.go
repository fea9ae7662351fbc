// Package domain holds the entities and typed errors of the accounting core:
// the double-entry ledger, receivables, recurring schedules and bank
// reconciliations. Entities carry their gorm column mappings; all business
// rules live in the service layer.
package domain

import "time"

// AccountType classifies a GL account.
type AccountType string

const (
	AccountTypeAsset     AccountType = "Asset"
	AccountTypeLiability AccountType = "Liability"
	AccountTypeEquity    AccountType = "Equity"
	AccountTypeIncome    AccountType = "Income"
	AccountTypeExpense   AccountType = "Expense"
)

// PostingType determines which side of the double-entry balance a line
// contributes to.
type PostingType string

const (
	PostingDebit  PostingType = "Debit"
	PostingCredit PostingType = "Credit"
)

// Opposite returns the other posting side. Used when mirroring lines for
// reversals.
func (p PostingType) Opposite() PostingType {
	if p == PostingDebit {
		return PostingCredit
	}
	return PostingDebit
}

// TransactionType enumerates the posting event kinds.
type TransactionType string

const (
	TransactionTypeCharge     TransactionType = "Charge"
	TransactionTypePayment    TransactionType = "Payment"
	TransactionTypeBill       TransactionType = "Bill"
	TransactionTypeDeposit    TransactionType = "Deposit"
	TransactionTypeTransfer   TransactionType = "Transfer"
	TransactionTypeWithdrawal TransactionType = "Withdrawal"
	TransactionTypeReversal   TransactionType = "Reversal"
	TransactionTypeJournal    TransactionType = "GeneralJournalEntry"
)

// RequiresBankLine reports whether a transaction type represents money
// movement and therefore must touch at least one bank GL account. Pure
// accrual charges and bills do not.
func (t TransactionType) RequiresBankLine() bool {
	switch t {
	case TransactionTypePayment, TransactionTypeDeposit, TransactionTypeTransfer, TransactionTypeWithdrawal:
		return true
	default:
		return false
	}
}

// PaymentState is the reversal state machine of a payment transaction.
// Posted -> Reversed is terminal.
type PaymentState string

const (
	PaymentStatePosted   PaymentState = "posted"
	PaymentStateReversed PaymentState = "reversed"
)

// BalanceTolerance is the maximum allowed difference between a transaction's
// debit and credit totals.
const BalanceTolerance = 0.01

// GLAccount is a general-ledger account. Its type is treated as immutable
// once transactions reference it: changing it would silently rewrite
// historical reporting.
type GLAccount struct {
	ID                      string      `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID                   string      `gorm:"type:uuid;index;not null" json:"org_id"`
	Name                    string      `gorm:"size:255;not null" json:"name"`
	Type                    AccountType `gorm:"size:20;not null" json:"type"`
	SubType                 string      `gorm:"size:50" json:"sub_type,omitempty"`
	IsBankAccount           bool        `gorm:"not null;default:false" json:"is_bank_account"`
	ExcludeFromCashBalances bool        `gorm:"not null;default:false" json:"exclude_from_cash_balances"`
	CreatedAt               time.Time   `json:"created_at"`
	UpdatedAt               time.Time   `json:"updated_at"`
}

// Transaction is a posted ledger event. It exists only together with its
// lines: the posting unit either commits header and lines atomically or
// nothing at all.
type Transaction struct {
	ID                      string            `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID                   string            `gorm:"type:uuid;index;not null" json:"org_id"`
	TransactionType         TransactionType   `gorm:"size:30;index;not null" json:"transaction_type"`
	Date                    time.Time         `gorm:"type:date;index;not null" json:"date"`
	TotalAmount             float64           `gorm:"not null" json:"total_amount"`
	Memo                    string            `gorm:"size:500" json:"memo,omitempty"`
	ReferenceNumber         string            `gorm:"size:100" json:"reference_number,omitempty"`
	Status                  PaymentState      `gorm:"size:20;not null;default:posted" json:"status"`
	IdempotencyKey          *string           `gorm:"size:255;uniqueIndex" json:"idempotency_key,omitempty"`
	ReversalOfTransactionID *string           `gorm:"type:uuid;index" json:"reversal_of_transaction_id,omitempty"`
	Lines                   []TransactionLine `gorm:"foreignKey:TransactionID" json:"lines,omitempty"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// TransactionLine is one side of a double-entry posting. Amount is always
// stored non-negative; the sign is carried by PostingType.
type TransactionLine struct {
	ID               string      `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID    string      `gorm:"type:uuid;index;not null" json:"transaction_id"`
	GLAccountID      string      `gorm:"type:uuid;index;not null" json:"gl_account_id"`
	Amount           float64     `gorm:"not null" json:"amount"`
	PostingType      PostingType `gorm:"size:10;not null" json:"posting_type"`
	Memo             string      `gorm:"size:500" json:"memo,omitempty"`
	Date             time.Time   `gorm:"type:date" json:"date"`
	Cleared          bool        `gorm:"not null;default:false" json:"cleared"`
	ReconciliationID *string     `gorm:"type:uuid;index" json:"reconciliation_id,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// SignedAmount is the line amount as a debit-positive value.
func (l TransactionLine) SignedAmount() float64 {
	if l.PostingType == PostingDebit {
		return l.Amount
	}
	return -l.Amount
}

// HeaderAmount computes the header total for a set of lines: the debit-side
// sum, which equals the credit-side sum on a balanced transaction.
func HeaderAmount(lines []TransactionLine) float64 {
	var sum float64
	for _, l := range lines {
		if l.PostingType == PostingDebit {
			sum += l.Amount
		}
	}
	return sum
}
