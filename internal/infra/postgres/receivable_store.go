package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rentfolio/ledger-core/internal/domain"
)

func (s *Store) CreateCharge(ctx context.Context, c *domain.Charge) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &domain.ErrConflict{Message: "charge already exists for transaction " + c.TransactionID}
		}
		return err
	}
	return nil
}

func (s *Store) GetCharge(ctx context.Context, orgID, id string) (*domain.Charge, error) {
	var c domain.Charge
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&c).Error
	if err != nil {
		return nil, notFound(err, "charge", id)
	}
	return &c, nil
}

func (s *Store) GetChargeByExternalID(ctx context.Context, orgID, externalID string) (*domain.Charge, error) {
	var c domain.Charge
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND external_id = ?", orgID, externalID).
		First(&c).Error
	if err != nil {
		return nil, notFound(err, "charge", externalID)
	}
	return &c, nil
}

func (s *Store) UpdateChargeOpen(ctx context.Context, id string, amountOpen float64, status domain.ChargeStatus) error {
	return s.db.WithContext(ctx).
		Model(&domain.Charge{}).
		Where("id = ?", id).
		Updates(map[string]any{"amount_open": amountOpen, "status": status}).Error
}

func (s *Store) OpenChargesOldestFirst(ctx context.Context, orgID, leaseID string) ([]domain.Charge, error) {
	var charges []domain.Charge
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND lease_id = ? AND status IN ?", orgID, leaseID,
			[]domain.ChargeStatus{domain.ChargeOpen, domain.ChargePartial}).
		Order("due_date, created_at").
		Find(&charges).Error
	return charges, err
}

func (s *Store) CreateAllocations(ctx context.Context, allocs []domain.PaymentAllocation) error {
	if len(allocs) == 0 {
		return nil
	}
	for i := range allocs {
		if allocs[i].ID == "" {
			allocs[i].ID = uuid.New().String()
		}
	}
	return s.db.WithContext(ctx).Create(&allocs).Error
}

func (s *Store) AllocationsForPayment(ctx context.Context, paymentTransactionID string) ([]domain.PaymentAllocation, error) {
	var allocs []domain.PaymentAllocation
	err := s.db.WithContext(ctx).
		Where("payment_transaction_id = ?", paymentTransactionID).
		Order("position").
		Find(&allocs).Error
	return allocs, err
}

func (s *Store) DeleteAllocationsForPayment(ctx context.Context, paymentTransactionID string) error {
	return s.db.WithContext(ctx).
		Where("payment_transaction_id = ?", paymentTransactionID).
		Delete(&domain.PaymentAllocation{}).Error
}
