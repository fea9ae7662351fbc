package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/rentfolio/ledger-core/internal/domain"
	"github.com/rentfolio/ledger-core/internal/infra/observability"
	"github.com/rentfolio/ledger-core/internal/port"
)

var reversalTracer = otel.Tracer("service/reversal")

// ReversalService models NSF returns and chargebacks as compensating ledger
// transactions. A payment moves Posted -> Reversed exactly once; the race is
// decided by a conditional status update, and reconciled history is never
// touched.
type ReversalService struct {
	store   port.Store
	audit   port.AuditTrail
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewReversalService creates a new reversal service.
func NewReversalService(store port.Store, audit port.AuditTrail, metrics *observability.Metrics, logger *zap.Logger) *ReversalService {
	return &ReversalService{store: store, audit: audit, metrics: metrics, logger: logger, now: time.Now}
}

// CreateNSFReversal reverses a payment returned for insufficient funds. When
// the org's policy auto-creates an NSF fee, the fee charge posts in the same
// flow under its own idempotency key.
func (s *ReversalService) CreateNSFReversal(ctx context.Context, orgID string, req *domain.CreateReversalRequest) (*domain.Transaction, error) {
	ctx, span := reversalTracer.Start(ctx, "ReversalService.CreateNSFReversal")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", req.PaymentTransactionID))

	reversal, err := s.reverse(ctx, orgID, domain.ReversalNSF, req)
	if err != nil {
		return nil, err
	}

	if err := s.maybeCreateNSFFee(ctx, orgID, req.PaymentTransactionID); err != nil {
		s.logger.Error("nsf fee charge failed after reversal",
			zap.String("payment_id", req.PaymentTransactionID), zap.Error(err))
	}
	return reversal, nil
}

// CreateChargebackReversal reverses a payment disputed by the payer's bank.
func (s *ReversalService) CreateChargebackReversal(ctx context.Context, orgID string, req *domain.CreateReversalRequest) (*domain.Transaction, error) {
	ctx, span := reversalTracer.Start(ctx, "ReversalService.CreateChargebackReversal")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", req.PaymentTransactionID))

	return s.reverse(ctx, orgID, domain.ReversalChargeback, req)
}

// ResolveChargeback records the dispute outcome on the reversal record.
func (s *ReversalService) ResolveChargeback(ctx context.Context, orgID, paymentID string, resolution domain.ChargebackResolution) error {
	ctx, span := reversalTracer.Start(ctx, "ReversalService.ResolveChargeback")
	defer span.End()

	if resolution != domain.ChargebackWon && resolution != domain.ChargebackLost {
		return &domain.ErrValidation{Field: "resolution", Message: "must be won or lost"}
	}

	rec, err := s.store.GetReversalRecord(ctx, orgID, paymentID)
	if err != nil {
		return err
	}
	if rec.Kind != domain.ReversalChargeback {
		return &domain.ErrValidation{Field: "payment_transaction_id", Message: "reversal is not a chargeback"}
	}
	if rec.Resolution != "" {
		return &domain.ErrConflict{Message: "chargeback is already resolved"}
	}

	if err := s.store.UpdateReversalResolution(ctx, orgID, paymentID, resolution); err != nil {
		return err
	}
	s.audit.Record(ctx, domain.AuditEvent{
		OrgID:      orgID,
		Action:     "chargeback.resolved",
		EntityType: "reversal",
		EntityID:   rec.ID,
		Detail:     string(resolution),
	})
	return nil
}

// GetReversal returns the reversal record for a payment.
func (s *ReversalService) GetReversal(ctx context.Context, orgID, paymentID string) (*domain.ReversalRecord, error) {
	ctx, span := reversalTracer.Start(ctx, "ReversalService.GetReversal")
	defer span.End()

	return s.store.GetReversalRecord(ctx, orgID, paymentID)
}

// reverse runs the full reversal flow as one atomic unit: the conditional
// status flip, the mirrored compensating transaction, the reversal record and
// the allocation unwind.
func (s *ReversalService) reverse(ctx context.Context, orgID string, kind domain.ReversalKind, req *domain.CreateReversalRequest) (*domain.Transaction, error) {
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("create_reversal", time.Since(start)) }()

	if req.PaymentTransactionID == "" {
		return nil, &domain.ErrValidation{Field: "payment_transaction_id", Message: "required"}
	}

	occurredAt := s.now().UTC().Truncate(24 * time.Hour)
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	var reversal *domain.Transaction
	err := s.store.Atomic(ctx, func(st port.Store) error {
		payment, err := st.GetTransaction(ctx, orgID, req.PaymentTransactionID)
		if err != nil {
			return err
		}

		reconciled, err := st.HasReconciledLine(ctx, payment.ID)
		if err != nil {
			return err
		}
		if reconciled {
			return &domain.ErrReconciledImmutable{Resource: "transaction", ID: payment.ID}
		}

		// Conditional update decides the race: zero rows means another
		// reversal already flipped the status.
		affected, err := st.MarkPaymentReversed(ctx, orgID, payment.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return &domain.ErrAlreadyReversed{PaymentID: payment.ID}
		}

		reversal = mirrorTransaction(payment, kind, occurredAt)
		if err := st.CreateTransaction(ctx, reversal); err != nil {
			var dup *domain.ErrDuplicateKey
			if errors.As(err, &dup) {
				return &domain.ErrAlreadyReversed{PaymentID: payment.ID}
			}
			return err
		}

		rec := &domain.ReversalRecord{
			ID:                    uuid.New().String(),
			OrgID:                 orgID,
			PaymentTransactionID:  payment.ID,
			ReversalTransactionID: reversal.ID,
			Kind:                  kind,
			ReasonCode:            req.ReasonCode,
			ChargebackID:          req.ChargebackID,
			OccurredAt:            occurredAt,
			CreatedBy:             req.Actor,
		}
		if err := st.CreateReversalRecord(ctx, rec); err != nil {
			return err
		}

		return unwindAllocations(ctx, st, orgID, payment.ID)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrReversal(string(kind))
	s.audit.Record(ctx, domain.AuditEvent{
		OrgID:      orgID,
		Action:     "payment.reversed",
		EntityType: "transaction",
		EntityID:   req.PaymentTransactionID,
		Actor:      req.Actor,
		Detail:     string(kind),
	})
	s.logger.Info("payment reversed",
		zap.String("org_id", orgID),
		zap.String("payment_id", req.PaymentTransactionID),
		zap.String("reversal_id", reversal.ID),
		zap.String("kind", string(kind)),
	)
	return reversal, nil
}

// mirrorTransaction builds the compensating transaction: the payment's lines
// with swapped posting types, dated at the reversal event.
func mirrorTransaction(payment *domain.Transaction, kind domain.ReversalKind, occurredAt time.Time) *domain.Transaction {
	lines := make([]domain.TransactionLine, 0, len(payment.Lines))
	for _, l := range payment.Lines {
		lines = append(lines, domain.TransactionLine{
			GLAccountID: l.GLAccountID,
			Amount:      l.Amount,
			PostingType: l.PostingType.Opposite(),
			Memo:        l.Memo,
			Date:        occurredAt,
		})
	}

	key := fmt.Sprintf("reverse:%s:%s", kind, payment.ID)
	paymentID := payment.ID
	return &domain.Transaction{
		ID:                      uuid.New().String(),
		OrgID:                   payment.OrgID,
		TransactionType:         domain.TransactionTypeReversal,
		Date:                    occurredAt,
		TotalAmount:             payment.TotalAmount,
		Memo:                    fmt.Sprintf("Reversal (%s) of %s", kind, payment.ReferenceNumber),
		Status:                  domain.PaymentStatePosted,
		IdempotencyKey:          &key,
		ReversalOfTransactionID: &paymentID,
		Lines:                   lines,
	}
}

// maybeCreateNSFFee posts the org's configured returned-payment fee as a new
// charge. The fee carries its own idempotency key, so a retried reversal
// cannot double-charge it.
func (s *ReversalService) maybeCreateNSFFee(ctx context.Context, orgID, paymentID string) error {
	settings, err := s.store.GetOrgSettings(ctx, orgID)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			return nil
		}
		return err
	}
	if !settings.AutoCreateNSFFee || settings.NSFFeeAmount <= 0 {
		return nil
	}
	if settings.ARLeaseGLAccountID == "" || settings.NSFFeeGLAccountID == "" {
		return &domain.ErrValidation{Field: "nsf_fee_gl_account_id", Message: "fee policy enabled without fee accounts"}
	}

	key := fmt.Sprintf("nsf:%s", paymentID)
	feeDate := s.now().UTC().Truncate(24 * time.Hour)
	amount := settings.NSFFeeAmount

	txn := &domain.Transaction{
		ID:              uuid.New().String(),
		OrgID:           orgID,
		TransactionType: domain.TransactionTypeCharge,
		Date:            feeDate,
		TotalAmount:     amount,
		Memo:            "Returned payment fee",
		Status:          domain.PaymentStatePosted,
		IdempotencyKey:  &key,
		Lines: []domain.TransactionLine{
			{GLAccountID: settings.ARLeaseGLAccountID, Amount: amount, PostingType: domain.PostingDebit, Date: feeDate},
			{GLAccountID: settings.NSFFeeGLAccountID, Amount: amount, PostingType: domain.PostingCredit, Date: feeDate},
		},
	}
	charge := &domain.Charge{
		ID:            uuid.New().String(),
		OrgID:         orgID,
		TransactionID: txn.ID,
		ChargeType:    "nsf_fee",
		Amount:        amount,
		AmountOpen:    amount,
		DueDate:       feeDate,
		Description:   "Returned payment fee",
		Status:        domain.ChargeOpen,
		Source:        "nsf",
	}

	err = s.store.Atomic(ctx, func(st port.Store) error {
		if err := st.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		return st.CreateCharge(ctx, charge)
	})
	if err != nil {
		var dup *domain.ErrDuplicateKey
		if errors.As(err, &dup) {
			return nil
		}
		return err
	}

	s.metrics.IncrPosting(string(domain.TransactionTypeCharge), "posted")
	return nil
}
