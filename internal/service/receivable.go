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

var receivableTracer = otel.Tracer("service/receivable")

// ReceivableService applies payment funds to charges and keeps charge
// statuses consistent with their allocations. Status is always recomputed
// from the open balance, never set directly.
type ReceivableService struct {
	store   port.Store
	audit   port.AuditTrail
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewReceivableService creates a new receivable service.
func NewReceivableService(store port.Store, audit port.AuditTrail, metrics *observability.Metrics, logger *zap.Logger) *ReceivableService {
	return &ReceivableService{store: store, audit: audit, metrics: metrics, logger: logger}
}

// AllocatePayment applies a posted payment's funds to charges. Allocation
// order is caller-supplied; with no explicit allocations the funds spread
// oldest-due-first across the lease's open charges.
func (s *ReceivableService) AllocatePayment(ctx context.Context, orgID string, req *domain.AllocatePaymentRequest) ([]domain.PaymentAllocation, error) {
	ctx, span := receivableTracer.Start(ctx, "ReceivableService.AllocatePayment")
	defer span.End()
	span.SetAttributes(
		attribute.String("org.id", orgID),
		attribute.String("payment.id", req.PaymentTransactionID),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("allocate_payment", time.Since(start)) }()

	if req.PaymentTransactionID == "" {
		return nil, &domain.ErrValidation{Field: "payment_transaction_id", Message: "required"}
	}

	var allocs []domain.PaymentAllocation
	err := s.store.Atomic(ctx, func(st port.Store) error {
		payment, err := st.GetTransaction(ctx, orgID, req.PaymentTransactionID)
		if err != nil {
			return err
		}
		if payment.TransactionType != domain.TransactionTypePayment {
			return &domain.ErrValidation{Field: "payment_transaction_id", Message: "transaction is not a payment"}
		}
		if payment.Status != domain.PaymentStatePosted {
			return &domain.ErrConflict{Message: "payment is reversed and cannot be allocated"}
		}

		existing, err := st.AllocationsForPayment(ctx, payment.ID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return &domain.ErrConflict{Message: "payment is already allocated"}
		}

		inputs := req.Allocations
		if len(inputs) == 0 {
			inputs, err = s.defaultAllocations(ctx, st, orgID, req.LeaseID, payment.TotalAmount)
			if err != nil {
				return err
			}
		}

		allocs, err = s.applyAllocations(ctx, st, orgID, payment, inputs)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, domain.AuditEvent{
		OrgID:      orgID,
		Action:     "payment.allocated",
		EntityType: "transaction",
		EntityID:   req.PaymentTransactionID,
	})
	return allocs, nil
}

// defaultAllocations spreads the payment amount oldest-due-first across the
// lease's open and partial charges.
func (s *ReceivableService) defaultAllocations(ctx context.Context, st port.Store, orgID, leaseID string, amount float64) ([]domain.AllocationInput, error) {
	if leaseID == "" {
		return nil, &domain.ErrValidation{Field: "lease_id", Message: "required when no explicit allocations are given"}
	}

	charges, err := st.OpenChargesOldestFirst(ctx, orgID, leaseID)
	if err != nil {
		return nil, err
	}

	remaining := amount
	var inputs []domain.AllocationInput
	for _, c := range charges {
		if remaining <= domain.BalanceTolerance {
			break
		}
		take := c.AmountOpen
		if take > remaining {
			take = remaining
		}
		inputs = append(inputs, domain.AllocationInput{ChargeID: c.ID, Amount: billing.Round2(take)})
		remaining -= take
	}
	return inputs, nil
}

// applyAllocations writes the allocation rows and recomputes each charge's
// open balance and status.
func (s *ReceivableService) applyAllocations(ctx context.Context, st port.Store, orgID string, payment *domain.Transaction, inputs []domain.AllocationInput) ([]domain.PaymentAllocation, error) {
	var total float64
	allocs := make([]domain.PaymentAllocation, 0, len(inputs))

	for i, in := range inputs {
		if in.Amount <= 0 {
			return nil, &domain.ErrValidation{Field: "allocations.amount", Message: "must be positive"}
		}
		total += in.Amount

		charge, err := st.GetCharge(ctx, orgID, in.ChargeID)
		if err != nil {
			return nil, err
		}
		if charge.Status == domain.ChargeCancelled {
			return nil, &domain.ErrValidation{Field: "allocations.charge_id", Message: "charge is cancelled"}
		}
		if in.Amount > charge.AmountOpen+domain.BalanceTolerance {
			return nil, &domain.ErrValidation{Field: "allocations.amount", Message: "exceeds charge open balance"}
		}

		open := billing.Round2(charge.AmountOpen - in.Amount)
		if err := st.UpdateChargeOpen(ctx, charge.ID, open, domain.StatusForOpenAmount(charge.Amount, open)); err != nil {
			return nil, err
		}

		allocs = append(allocs, domain.PaymentAllocation{
			ID:                   uuid.New().String(),
			OrgID:                orgID,
			PaymentTransactionID: payment.ID,
			ChargeID:             charge.ID,
			AllocatedAmount:      in.Amount,
			Position:             i,
		})
	}

	if total > payment.TotalAmount+domain.BalanceTolerance {
		return nil, &domain.ErrValidation{Field: "allocations", Message: "allocated total exceeds payment amount"}
	}
	if len(allocs) == 0 {
		return allocs, nil
	}
	if err := st.CreateAllocations(ctx, allocs); err != nil {
		return nil, err
	}
	return allocs, nil
}

// unwindAllocations puts a reversed payment's funds back onto its charges and
// deletes the allocation rows. Shared with the reversal flow; runs inside the
// caller's atomic unit.
func unwindAllocations(ctx context.Context, st port.Store, orgID, paymentTransactionID string) error {
	allocs, err := st.AllocationsForPayment(ctx, paymentTransactionID)
	if err != nil {
		return err
	}
	for _, a := range allocs {
		charge, err := st.GetCharge(ctx, orgID, a.ChargeID)
		if err != nil {
			return err
		}
		open := billing.Round2(charge.AmountOpen + a.AllocatedAmount)
		if open > charge.Amount {
			open = charge.Amount
		}
		if err := st.UpdateChargeOpen(ctx, charge.ID, open, domain.StatusForOpenAmount(charge.Amount, open)); err != nil {
			return err
		}
	}
	return st.DeleteAllocationsForPayment(ctx, paymentTransactionID)
}
