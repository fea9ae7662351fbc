package domain

import "time"

// ReconciliationState is the explicit lifecycle of a bank reconciliation.
// Pending permits any number of clear/unclear toggles; Finished is terminal
// and makes the reconciled history immutable. There is no unfinalize:
// corrections require a new adjusting transaction.
type ReconciliationState string

const (
	ReconciliationPending  ReconciliationState = "pending"
	ReconciliationFinished ReconciliationState = "finished"
)

// Reconciliation matches a bank GL account's local transaction lines against
// an externally reported statement.
type Reconciliation struct {
	ID                  string     `gorm:"type:uuid;primaryKey" json:"id"`
	OrgID               string     `gorm:"type:uuid;index;not null" json:"org_id"`
	BankGLAccountID     string     `gorm:"type:uuid;index;not null" json:"bank_gl_account_id"`
	StatementEndingDate *time.Time `gorm:"type:date" json:"statement_ending_date,omitempty"`
	EndingBalance       *float64   `json:"ending_balance,omitempty"`
	IsFinished          bool       `gorm:"not null;default:false" json:"is_finished"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// State derives the tagged state from the persisted flag.
func (r Reconciliation) State() ReconciliationState {
	if r.IsFinished {
		return ReconciliationFinished
	}
	return ReconciliationPending
}

// VarianceReport is a read-only derived view comparing the statement's
// ending balance with the sum of cleared lines. It carries no state
// transitions.
type VarianceReport struct {
	ReconciliationID string  `json:"reconciliation_id"`
	StatementBalance float64 `json:"statement_balance"`
	ClearedBalance   float64 `json:"cleared_balance"`
	Variance         float64 `json:"variance"`
	ClearedLines     int     `json:"cleared_lines"`
}

// StaleReconciliation flags a reconciliation still Pending past the
// staleness threshold.
type StaleReconciliation struct {
	Reconciliation
	PendingFor time.Duration `json:"pending_for"`
}
