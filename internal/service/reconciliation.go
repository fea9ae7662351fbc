package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rentfolio/ledger-core/internal/billing"
	"github.com/rentfolio/ledger-core/internal/domain"
	"github.com/rentfolio/ledger-core/internal/infra/observability"
	"github.com/rentfolio/ledger-core/internal/port"
)

var reconTracer = otel.Tracer("service/reconciliation")

// ReconciliationService drives the clear/unclear/finalize workflow. Clearing
// is repeatable while a reconciliation is pending; finalize is a single
// conditional update and terminal. There is no unfinalize: corrections
// require a new adjusting transaction.
type ReconciliationService struct {
	store   port.Store
	audit   port.AuditTrail
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewReconciliationService creates a new reconciliation service.
func NewReconciliationService(store port.Store, audit port.AuditTrail, metrics *observability.Metrics, logger *zap.Logger) *ReconciliationService {
	return &ReconciliationService{store: store, audit: audit, metrics: metrics, logger: logger, now: time.Now}
}

// Start opens a pending reconciliation for a bank GL account.
func (s *ReconciliationService) Start(ctx context.Context, orgID string, req *domain.StartReconciliationRequest) (*domain.Reconciliation, error) {
	ctx, span := reconTracer.Start(ctx, "ReconciliationService.Start")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID))

	if req.BankGLAccountID == "" {
		return nil, &domain.ErrValidation{Field: "bank_gl_account_id", Message: "required"}
	}
	acct, err := s.store.GetGLAccount(ctx, orgID, req.BankGLAccountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsBankAccount {
		return nil, &domain.ErrValidation{Field: "bank_gl_account_id", Message: "account is not a bank account"}
	}

	rec := &domain.Reconciliation{
		ID:              uuid.New().String(),
		OrgID:           orgID,
		BankGLAccountID: req.BankGLAccountID,
		EndingBalance:   req.EndingBalance,
	}
	if req.StatementEndingDate != nil {
		d, err := time.Parse(billing.DateLayout, *req.StatementEndingDate)
		if err != nil {
			return nil, &domain.ErrValidation{Field: "statement_ending_date", Message: "must be YYYY-MM-DD"}
		}
		rec.StatementEndingDate = &d
	}
	if err := s.store.CreateReconciliation(ctx, rec); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, domain.AuditEvent{
		OrgID:      orgID,
		Action:     "reconciliation.started",
		EntityType: "reconciliation",
		EntityID:   rec.ID,
	})
	return rec, nil
}

// Get returns a reconciliation.
func (s *ReconciliationService) Get(ctx context.Context, orgID, id string) (*domain.Reconciliation, error) {
	ctx, span := reconTracer.Start(ctx, "ReconciliationService.Get")
	defer span.End()

	return s.store.GetReconciliation(ctx, orgID, id)
}

// ClearTransactions marks the given transactions' bank lines as cleared
// against the reconciliation.
func (s *ReconciliationService) ClearTransactions(ctx context.Context, orgID, reconciliationID string, transactionIDs []string) (int64, error) {
	return s.toggleCleared(ctx, orgID, reconciliationID, transactionIDs, true)
}

// UnclearTransactions undoes ClearTransactions for the given transactions.
func (s *ReconciliationService) UnclearTransactions(ctx context.Context, orgID, reconciliationID string, transactionIDs []string) (int64, error) {
	return s.toggleCleared(ctx, orgID, reconciliationID, transactionIDs, false)
}

func (s *ReconciliationService) toggleCleared(ctx context.Context, orgID, reconciliationID string, transactionIDs []string, cleared bool) (int64, error) {
	ctx, span := reconTracer.Start(ctx, "ReconciliationService.ToggleCleared")
	defer span.End()
	span.SetAttributes(
		attribute.String("reconciliation.id", reconciliationID),
		attribute.Bool("cleared", cleared),
	)

	if len(transactionIDs) == 0 {
		return 0, &domain.ErrValidation{Field: "transaction_ids", Message: "required"}
	}

	var affected int64
	err := s.store.Atomic(ctx, func(st port.Store) error {
		rec, err := st.GetReconciliation(ctx, orgID, reconciliationID)
		if err != nil {
			return err
		}
		if rec.State() == domain.ReconciliationFinished {
			return &domain.ErrReconciledImmutable{Resource: "reconciliation", ID: rec.ID}
		}

		affected, err = st.SetLinesCleared(ctx, rec.ID, rec.BankGLAccountID, transactionIDs, cleared)
		return err
	})
	if err != nil {
		return 0, err
	}

	action := "uncleared"
	if cleared {
		action = "cleared"
	}
	s.metrics.AddLinesToggled(action, affected)
	return affected, nil
}

// Finalize finishes a reconciliation. The single conditional update decides
// concurrent finalizes; the loser sees the reconciliation as immutable.
func (s *ReconciliationService) Finalize(ctx context.Context, orgID, reconciliationID string, req *domain.FinalizeReconciliationRequest) error {
	ctx, span := reconTracer.Start(ctx, "ReconciliationService.Finalize")
	defer span.End()
	span.SetAttributes(attribute.String("reconciliation.id", reconciliationID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("finalize_reconciliation", time.Since(start)) }()

	endDate, err := time.Parse(billing.DateLayout, req.StatementEndingDate)
	if err != nil {
		return &domain.ErrValidation{Field: "statement_ending_date", Message: "must be YYYY-MM-DD"}
	}

	affected, err := s.store.FinalizeReconciliation(ctx, orgID, reconciliationID, endDate, req.EndingBalance)
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.store.GetReconciliation(ctx, orgID, reconciliationID); err != nil {
			return err
		}
		return &domain.ErrReconciledImmutable{Resource: "reconciliation", ID: reconciliationID}
	}

	s.metrics.IncrReconciliationFinalized()
	s.audit.Record(ctx, domain.AuditEvent{
		OrgID:      orgID,
		Action:     "reconciliation.finalized",
		EntityType: "reconciliation",
		EntityID:   reconciliationID,
		Detail:     req.StatementEndingDate,
	})
	s.logger.Info("reconciliation finalized",
		zap.String("org_id", orgID),
		zap.String("reconciliation_id", reconciliationID),
		zap.String("statement_ending_date", req.StatementEndingDate),
	)
	return nil
}

// VarianceReport compares the statement's ending balance with the sum of
// cleared lines. Read-only; carries no state transition.
func (s *ReconciliationService) VarianceReport(ctx context.Context, orgID, reconciliationID string) (*domain.VarianceReport, error) {
	ctx, span := reconTracer.Start(ctx, "ReconciliationService.VarianceReport")
	defer span.End()

	rec, err := s.store.GetReconciliation(ctx, orgID, reconciliationID)
	if err != nil {
		return nil, err
	}

	cleared, lines, err := s.store.ClearedBalance(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	var statement float64
	if rec.EndingBalance != nil {
		statement = *rec.EndingBalance
	}
	return &domain.VarianceReport{
		ReconciliationID: rec.ID,
		StatementBalance: statement,
		ClearedBalance:   billing.Round2(cleared),
		Variance:         billing.Round2(statement - cleared),
		ClearedLines:     lines,
	}, nil
}

// StaleReconciliations lists reconciliations still pending past the
// staleness threshold.
func (s *ReconciliationService) StaleReconciliations(ctx context.Context, orgID string, olderThan time.Duration) ([]domain.StaleReconciliation, error) {
	ctx, span := reconTracer.Start(ctx, "ReconciliationService.StaleReconciliations")
	defer span.End()

	now := s.now()
	pending, err := s.store.PendingOlderThan(ctx, orgID, now.Add(-olderThan))
	if err != nil {
		return nil, err
	}

	stale := make([]domain.StaleReconciliation, 0, len(pending))
	for _, rec := range pending {
		stale = append(stale, domain.StaleReconciliation{
			Reconciliation: rec,
			PendingFor:     now.Sub(rec.CreatedAt),
		})
	}
	return stale, nil
}
