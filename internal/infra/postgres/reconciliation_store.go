package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rentfolio/ledger-core/internal/domain"
)

func (s *Store) CreateReconciliation(ctx context.Context, r *domain.Reconciliation) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *Store) GetReconciliation(ctx context.Context, orgID, id string) (*domain.Reconciliation, error) {
	var rec domain.Reconciliation
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&rec).Error
	if err != nil {
		return nil, notFound(err, "reconciliation", id)
	}
	return &rec, nil
}

// SetLinesCleared toggles the cleared flag on the transactions' lines,
// scoped to the reconciliation's bank GL account: a payment's income line is
// never cleared, only its bank side.
func (s *Store) SetLinesCleared(ctx context.Context, reconciliationID, bankGLAccountID string, transactionIDs []string, cleared bool) (int64, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}

	updates := map[string]any{"cleared": cleared}
	if cleared {
		updates["reconciliation_id"] = reconciliationID
	} else {
		updates["reconciliation_id"] = nil
	}

	res := s.db.WithContext(ctx).
		Model(&domain.TransactionLine{}).
		Where("transaction_id IN ? AND gl_account_id = ?", transactionIDs, bankGLAccountID).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (s *Store) FinalizeReconciliation(ctx context.Context, orgID, id string, statementEndingDate time.Time, endingBalance *float64) (int64, error) {
	updates := map[string]any{
		"is_finished":           true,
		"statement_ending_date": statementEndingDate,
	}
	if endingBalance != nil {
		updates["ending_balance"] = *endingBalance
	}

	res := s.db.WithContext(ctx).
		Model(&domain.Reconciliation{}).
		Where("org_id = ? AND id = ? AND is_finished = ?", orgID, id, false).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (s *Store) ClearedBalance(ctx context.Context, reconciliationID string) (float64, int, error) {
	type row struct {
		Total float64
		N     int
	}
	var r row
	err := s.db.WithContext(ctx).
		Model(&domain.TransactionLine{}).
		Select("COALESCE(SUM(CASE WHEN posting_type = ? THEN amount ELSE -amount END), 0) AS total, COUNT(*) AS n", domain.PostingDebit).
		Where("reconciliation_id = ? AND cleared", reconciliationID).
		Scan(&r).Error
	return r.Total, r.N, err
}

func (s *Store) PendingOlderThan(ctx context.Context, orgID string, cutoff time.Time) ([]domain.Reconciliation, error) {
	var recs []domain.Reconciliation
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND is_finished = ? AND created_at < ?", orgID, false, cutoff).
		Order("created_at").
		Find(&recs).Error
	return recs, err
}
