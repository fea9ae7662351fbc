// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations. Repositories are constructed once at
// process start and passed by reference; there are no ambient globals.
package port

import (
	"context"
	"time"

	"github.com/rentfolio/ledger-core/internal/domain"
)

// LedgerRepository is the data boundary of the double-entry ledger.
//
// CreateTransaction persists a header together with all of its lines; the
// balance and bank-line checks run against the same uncommitted unit via
// Atomic, so a failed check rolls the whole posting back and no caller ever
// observes a transaction whose lines fail validation.
type LedgerRepository interface {
	CreateTransaction(ctx context.Context, txn *domain.Transaction) error
	GetTransaction(ctx context.Context, orgID, id string) (*domain.Transaction, error)
	LinesForTransaction(ctx context.Context, transactionID string) ([]domain.TransactionLine, error)

	// PostingSums returns sum(amount) grouped by posting type for a
	// transaction's lines.
	PostingSums(ctx context.Context, transactionID string) (debits, credits float64, err error)

	// HasBankLine reports whether any of the transaction's GL accounts is
	// flagged as a bank account.
	HasBankLine(ctx context.Context, transactionID string) (bool, error)

	// HasReconciledLine reports whether any line of the transaction belongs
	// to a finalized reconciliation.
	HasReconciledLine(ctx context.Context, transactionID string) (bool, error)

	// MarkPaymentReversed performs the conditional status update
	// (WHERE status = 'posted') and returns the number of rows affected.
	// Zero rows is the caller's signal for an already-reversed conflict.
	MarkPaymentReversed(ctx context.Context, orgID, paymentID string) (int64, error)

	CreateReversalRecord(ctx context.Context, rec *domain.ReversalRecord) error
	GetReversalRecord(ctx context.Context, orgID, paymentID string) (*domain.ReversalRecord, error)
	UpdateReversalResolution(ctx context.Context, orgID, paymentID string, res domain.ChargebackResolution) error

	GetGLAccount(ctx context.Context, orgID, id string) (*domain.GLAccount, error)
	CreateGLAccount(ctx context.Context, acct *domain.GLAccount) error
}

// ReceivableRepository persists charges and payment allocations.
type ReceivableRepository interface {
	CreateCharge(ctx context.Context, c *domain.Charge) error
	GetCharge(ctx context.Context, orgID, id string) (*domain.Charge, error)
	GetChargeByExternalID(ctx context.Context, orgID, externalID string) (*domain.Charge, error)
	UpdateChargeOpen(ctx context.Context, id string, amountOpen float64, status domain.ChargeStatus) error

	// OpenChargesOldestFirst lists a lease's open/partial charges ordered by
	// due date, the default allocation tie-break.
	OpenChargesOldestFirst(ctx context.Context, orgID, leaseID string) ([]domain.Charge, error)

	CreateAllocations(ctx context.Context, allocs []domain.PaymentAllocation) error
	AllocationsForPayment(ctx context.Context, paymentTransactionID string) ([]domain.PaymentAllocation, error)
	DeleteAllocationsForPayment(ctx context.Context, paymentTransactionID string) error
}

// ScheduleRepository persists recurring charge/payment schedules.
type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, s *domain.RecurringSchedule) error
	GetSchedule(ctx context.Context, orgID, id string) (*domain.RecurringSchedule, error)
	UpdateScheduleStatus(ctx context.Context, orgID, id string, status domain.ScheduleState) error

	// DueSchedules pages through active schedules in bounded chunks so
	// interruption and retry only ever re-process an idempotent chunk.
	DueSchedules(ctx context.Context, limit int, afterID string) ([]domain.RecurringSchedule, error)

	// MarkScheduleRun records last_generated_at and the recomputed cached
	// next_run_date after a successful fire.
	MarkScheduleRun(ctx context.Context, id string, generatedAt time.Time, nextRunDate *time.Time) error
}

// ReconciliationRepository persists the reconciliation log and the cleared
// flags on bank transaction lines.
type ReconciliationRepository interface {
	CreateReconciliation(ctx context.Context, r *domain.Reconciliation) error
	GetReconciliation(ctx context.Context, orgID, id string) (*domain.Reconciliation, error)

	// SetLinesCleared toggles the cleared flag on the given transactions'
	// lines, restricted to the reconciliation's bank GL account.
	SetLinesCleared(ctx context.Context, reconciliationID, bankGLAccountID string, transactionIDs []string, cleared bool) (int64, error)

	// FinalizeReconciliation performs the single conditional update setting
	// is_finished (WHERE is_finished = false) and returns rows affected.
	FinalizeReconciliation(ctx context.Context, orgID, id string, statementEndingDate time.Time, endingBalance *float64) (int64, error)

	ClearedBalance(ctx context.Context, reconciliationID string) (sum float64, lines int, err error)
	PendingOlderThan(ctx context.Context, orgID string, cutoff time.Time) ([]domain.Reconciliation, error)
}

// DepositRepository persists undeposited-funds deposits and their items.
type DepositRepository interface {
	UpsertDeposit(ctx context.Context, d *domain.Deposit) error
	GetDepositByTransaction(ctx context.Context, orgID, transactionID string) (*domain.Deposit, error)

	// DepositTransactionsWithoutMeta pages legacy deposit transactions that
	// have no materialized deposit row yet.
	DepositTransactionsWithoutMeta(ctx context.Context, limit int, afterID string) ([]domain.Transaction, error)
}

// BackfillMarkerRepository records completed one-time migrations.
type BackfillMarkerRepository interface {
	GetMarker(ctx context.Context, name string) (*domain.BackfillMarker, error)
	PutMarker(ctx context.Context, m *domain.BackfillMarker) error
}

// OrgSettingsRepository resolves per-org configuration (timezone, default GL
// accounts, returned-payment policy).
type OrgSettingsRepository interface {
	GetOrgSettings(ctx context.Context, orgID string) (*domain.OrgSettings, error)
	// OrgIDsWithSchedules lists orgs that own at least one active schedule.
	OrgIDsWithSchedules(ctx context.Context) ([]string, error)
}

// Store aggregates every repository plus the atomic-unit runner. Atomic runs
// fn against a store bound to a single database transaction: any error rolls
// back everything fn wrote. Implementations must support the ledger posting
// contract (no partial transaction+lines ever visible).
type Store interface {
	LedgerRepository
	ReceivableRepository
	ScheduleRepository
	ReconciliationRepository
	DepositRepository
	BackfillMarkerRepository
	OrgSettingsRepository

	Atomic(ctx context.Context, fn func(Store) error) error
}

// AuditTrail records core mutations on a best-effort basis. Implementations
// must never block the calling operation on delivery and must swallow (but
// observe) their own failures; the interface exists so tests can assert an
// audit write was attempted without coupling core logic to its success.
type AuditTrail interface {
	Record(ctx context.Context, event domain.AuditEvent)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
