package postgres

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"github.com/rentfolio/ledger-core/internal/domain"
)

func (s *Store) UpsertDeposit(ctx context.Context, d *domain.Deposit) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	for i := range d.Items {
		if d.Items[i].ID == "" {
			d.Items[i].ID = uuid.New().String()
		}
		d.Items[i].DepositID = d.ID
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"bank_gl_account_id", "status", "updated_at"}),
		}).
		Create(d).Error
}

func (s *Store) GetDepositByTransaction(ctx context.Context, orgID, transactionID string) (*domain.Deposit, error) {
	var d domain.Deposit
	err := s.db.WithContext(ctx).
		Preload("Items").
		Where("org_id = ? AND transaction_id = ?", orgID, transactionID).
		First(&d).Error
	if err != nil {
		return nil, notFound(err, "deposit", transactionID)
	}
	return &d, nil
}

// DepositTransactionsWithoutMeta pages Deposit-type transactions that predate
// the deposits table, keyset-ordered by id so the backfill can resume.
func (s *Store) DepositTransactionsWithoutMeta(ctx context.Context, limit int, afterID string) ([]domain.Transaction, error) {
	var txns []domain.Transaction
	err := s.db.WithContext(ctx).
		Joins("LEFT JOIN deposits ON deposits.transaction_id = transactions.id").
		Where("transactions.transaction_type = ? AND transactions.id > ? AND deposits.id IS NULL",
			domain.TransactionTypeDeposit, afterID).
		Order("transactions.id").
		Limit(limit).
		Find(&txns).Error
	return txns, err
}
