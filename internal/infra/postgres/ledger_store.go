package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rentfolio/ledger-core/internal/domain"
)

func (s *Store) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	for i := range txn.Lines {
		if txn.Lines[i].ID == "" {
			txn.Lines[i].ID = uuid.New().String()
		}
		txn.Lines[i].TransactionID = txn.ID
		if txn.Lines[i].Date.IsZero() {
			txn.Lines[i].Date = txn.Date
		}
	}

	if err := s.db.WithContext(ctx).Create(txn).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			key := ""
			if txn.IdempotencyKey != nil {
				key = *txn.IdempotencyKey
			}
			return &domain.ErrDuplicateKey{Key: key}
		}
		return err
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, orgID, id string) (*domain.Transaction, error) {
	var txn domain.Transaction
	err := s.db.WithContext(ctx).
		Preload("Lines").
		Where("org_id = ? AND id = ?", orgID, id).
		First(&txn).Error
	if err != nil {
		return nil, notFound(err, "transaction", id)
	}
	return &txn, nil
}

func (s *Store) LinesForTransaction(ctx context.Context, transactionID string) ([]domain.TransactionLine, error) {
	var lines []domain.TransactionLine
	err := s.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id").
		Find(&lines).Error
	return lines, err
}

func (s *Store) PostingSums(ctx context.Context, transactionID string) (float64, float64, error) {
	type row struct {
		PostingType domain.PostingType
		Total       float64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&domain.TransactionLine{}).
		Select("posting_type, COALESCE(SUM(ABS(amount)), 0) AS total").
		Where("transaction_id = ?", transactionID).
		Group("posting_type").
		Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}

	var debits, credits float64
	for _, r := range rows {
		switch r.PostingType {
		case domain.PostingDebit:
			debits = r.Total
		case domain.PostingCredit:
			credits = r.Total
		}
	}
	return debits, credits, nil
}

func (s *Store) HasBankLine(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.TransactionLine{}).
		Joins("JOIN gl_accounts ON gl_accounts.id = transaction_lines.gl_account_id").
		Where("transaction_lines.transaction_id = ? AND gl_accounts.is_bank_account", transactionID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) HasReconciledLine(ctx context.Context, transactionID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&domain.TransactionLine{}).
		Joins("JOIN reconciliations ON reconciliations.id = transaction_lines.reconciliation_id").
		Where("transaction_lines.transaction_id = ? AND reconciliations.is_finished", transactionID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) MarkPaymentReversed(ctx context.Context, orgID, paymentID string) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("org_id = ? AND id = ? AND status = ?", orgID, paymentID, domain.PaymentStatePosted).
		Update("status", domain.PaymentStateReversed)
	return res.RowsAffected, res.Error
}

func (s *Store) CreateReversalRecord(ctx context.Context, rec *domain.ReversalRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &domain.ErrAlreadyReversed{PaymentID: rec.PaymentTransactionID}
		}
		return err
	}
	return nil
}

func (s *Store) GetReversalRecord(ctx context.Context, orgID, paymentID string) (*domain.ReversalRecord, error) {
	var rec domain.ReversalRecord
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND payment_transaction_id = ?", orgID, paymentID).
		First(&rec).Error
	if err != nil {
		return nil, notFound(err, "reversal record", paymentID)
	}
	return &rec, nil
}

func (s *Store) UpdateReversalResolution(ctx context.Context, orgID, paymentID string, res domain.ChargebackResolution) error {
	result := s.db.WithContext(ctx).
		Model(&domain.ReversalRecord{}).
		Where("org_id = ? AND payment_transaction_id = ? AND kind = ?", orgID, paymentID, domain.ReversalChargeback).
		Update("resolution", res)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "chargeback reversal", ID: paymentID}
	}
	return nil
}

func (s *Store) GetGLAccount(ctx context.Context, orgID, id string) (*domain.GLAccount, error) {
	var acct domain.GLAccount
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&acct).Error
	if err != nil {
		return nil, notFound(err, "gl account", id)
	}
	return &acct, nil
}

func (s *Store) CreateGLAccount(ctx context.Context, acct *domain.GLAccount) error {
	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(acct).Error
}
