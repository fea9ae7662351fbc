// Package service provides the business logic layer (use cases) of the
// accounting core: transaction posting with invariant checks, payment
// allocation, reversals, reconciliation, the recurring-billing scheduler and
// the batch runner.
package service

import (
	"context"
	"math"
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

var ledgerTracer = otel.Tracer("service/ledger")

// LedgerService posts transactions and enforces the double-entry invariants.
// Validation runs inside the same atomic unit that inserts the lines: a
// failed check rolls back header and lines together, so no caller ever
// observes a transaction whose lines fail validation.
type LedgerService struct {
	store   port.Store
	audit   port.AuditTrail
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(store port.Store, audit port.AuditTrail, metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{store: store, audit: audit, metrics: metrics, logger: logger}
}

// PostTransaction creates a transaction together with its lines as one atomic
// unit, running the balance and bank-line checks against the uncommitted
// rows.
func (s *LedgerService) PostTransaction(ctx context.Context, orgID string, req *domain.PostTransactionRequest) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.PostTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("org.id", orgID),
		attribute.String("transaction.type", string(req.TransactionType)),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("post_transaction", time.Since(start)) }()

	txn, err := buildTransaction(orgID, req)
	if err != nil {
		s.metrics.IncrPosting(string(req.TransactionType), "rejected")
		return nil, err
	}

	err = s.store.Atomic(ctx, func(st port.Store) error {
		if err := st.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		if err := s.AssertBalanced(ctx, st, txn.ID); err != nil {
			return err
		}
		if txn.TransactionType.RequiresBankLine() {
			return s.AssertHasBankLine(ctx, st, txn.ID)
		}
		return nil
	})
	if err != nil {
		s.metrics.IncrPosting(string(req.TransactionType), "rejected")
		s.logger.Warn("transaction rejected",
			zap.String("org_id", orgID),
			zap.String("transaction_type", string(req.TransactionType)),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.IncrPosting(string(req.TransactionType), "posted")
	s.audit.Record(ctx, domain.AuditEvent{
		OrgID:      orgID,
		Action:     "transaction.posted",
		EntityType: "transaction",
		EntityID:   txn.ID,
		Detail:     string(txn.TransactionType),
	})
	s.logger.Info("transaction posted",
		zap.String("org_id", orgID),
		zap.String("transaction_id", txn.ID),
		zap.String("transaction_type", string(txn.TransactionType)),
		zap.Float64("total_amount", txn.TotalAmount),
	)
	return txn, nil
}

// GetTransaction returns a transaction with its lines.
func (s *LedgerService) GetTransaction(ctx context.Context, orgID, id string) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetTransaction")
	defer span.End()

	return s.store.GetTransaction(ctx, orgID, id)
}

// AssertBalanced sums abs(amount) per posting type across the transaction's
// lines and fails when |debits - credits| exceeds the tolerance.
func (s *LedgerService) AssertBalanced(ctx context.Context, st port.Store, transactionID string) error {
	debits, credits, err := st.PostingSums(ctx, transactionID)
	if err != nil {
		return err
	}
	if math.Abs(debits-credits) > domain.BalanceTolerance {
		return &domain.ErrUnbalanced{
			TransactionID: transactionID,
			Debits:        debits,
			Credits:       credits,
			Tolerance:     domain.BalanceTolerance,
		}
	}
	return nil
}

// AssertHasBankLine fails when none of the transaction's GL accounts is a
// bank account. Required for money-movement types only; pure accrual charges
// pass without one.
func (s *LedgerService) AssertHasBankLine(ctx context.Context, st port.Store, transactionID string) error {
	ok, err := st.HasBankLine(ctx, transactionID)
	if err != nil {
		return err
	}
	if !ok {
		return &domain.ErrNoBankLine{TransactionID: transactionID}
	}
	return nil
}

// VerifyPosted re-runs the balance check on an already committed transaction.
// A failure here means the ledger itself is wrong: it is counted, logged at
// error severity and surfaced as an invariant violation, never swallowed.
func (s *LedgerService) VerifyPosted(ctx context.Context, orgID, transactionID string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.VerifyPosted")
	defer span.End()

	if _, err := s.store.GetTransaction(ctx, orgID, transactionID); err != nil {
		return err
	}
	if err := s.AssertBalanced(ctx, s.store, transactionID); err != nil {
		s.metrics.IncrInvariantViolation()
		s.logger.Error("committed transaction failed balance check",
			zap.String("org_id", orgID),
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
		return &domain.ErrInvariantViolation{TransactionID: transactionID, Detail: err.Error()}
	}
	return nil
}

// CreateCharge posts an accrual charge (debit receivable, credit income) and
// materializes its receivable row in the same atomic unit. A proration spec
// derives the amount from the full monthly amount and the move date.
func (s *LedgerService) CreateCharge(ctx context.Context, orgID string, req *domain.CreateChargeRequest) (*domain.Charge, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreateCharge")
	defer span.End()
	span.SetAttributes(attribute.String("org.id", orgID))

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("create_charge", time.Since(start)) }()

	amount, prorationDays, baseAmount, err := resolveChargeAmount(req)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if req.ARGLAccountID == "" || req.IncomeAccountID == "" {
		return nil, &domain.ErrValidation{Field: "gl_account_id", Message: "receivable and income accounts required"}
	}
	dueDate, err := time.Parse(billing.DateLayout, req.DueDate)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "due_date", Message: "must be YYYY-MM-DD"}
	}

	txn := &domain.Transaction{
		ID:              uuid.New().String(),
		OrgID:           orgID,
		TransactionType: domain.TransactionTypeCharge,
		Date:            dueDate,
		TotalAmount:     amount,
		Memo:            req.Description,
		Status:          domain.PaymentStatePosted,
		Lines: []domain.TransactionLine{
			{GLAccountID: req.ARGLAccountID, Amount: amount, PostingType: domain.PostingDebit, Memo: req.Description},
			{GLAccountID: req.IncomeAccountID, Amount: amount, PostingType: domain.PostingCredit, Memo: req.Description},
		},
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		txn.IdempotencyKey = &key
	}

	charge := &domain.Charge{
		ID:            uuid.New().String(),
		OrgID:         orgID,
		LeaseID:       req.LeaseID,
		TransactionID: txn.ID,
		ChargeType:    req.ChargeType,
		Amount:        amount,
		AmountOpen:    amount,
		DueDate:       dueDate,
		Description:   req.Description,
		Status:        domain.ChargeOpen,
		Source:        req.Source,
		ExternalID:    req.ExternalID,
		IsProrated:    req.Proration != nil,
		ProrationDays: prorationDays,
		BaseAmount:    baseAmount,
	}

	err = s.store.Atomic(ctx, func(st port.Store) error {
		if err := st.CreateTransaction(ctx, txn); err != nil {
			return err
		}
		if err := s.AssertBalanced(ctx, st, txn.ID); err != nil {
			return err
		}
		return st.CreateCharge(ctx, charge)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrPosting(string(domain.TransactionTypeCharge), "posted")
	s.audit.Record(ctx, domain.AuditEvent{
		OrgID:      orgID,
		Action:     "charge.created",
		EntityType: "charge",
		EntityID:   charge.ID,
		Detail:     req.ChargeType,
	})
	return charge, nil
}

// buildTransaction validates a posting request and assembles the entity.
func buildTransaction(orgID string, req *domain.PostTransactionRequest) (*domain.Transaction, error) {
	if req.TransactionType == "" {
		return nil, &domain.ErrValidation{Field: "transaction_type", Message: "required"}
	}
	if len(req.Lines) < 2 {
		return nil, &domain.ErrValidation{Field: "lines", Message: "at least two lines required"}
	}
	date, err := time.Parse(billing.DateLayout, req.Date)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "date", Message: "must be YYYY-MM-DD"}
	}

	lines := make([]domain.TransactionLine, 0, len(req.Lines))
	for _, in := range req.Lines {
		if in.GLAccountID == "" {
			return nil, &domain.ErrValidation{Field: "lines.gl_account_id", Message: "required"}
		}
		if in.Amount < 0 {
			return nil, &domain.ErrValidation{Field: "lines.amount", Message: "must be non-negative"}
		}
		if in.PostingType != domain.PostingDebit && in.PostingType != domain.PostingCredit {
			return nil, &domain.ErrValidation{Field: "lines.posting_type", Message: "must be Debit or Credit"}
		}
		lines = append(lines, domain.TransactionLine{
			GLAccountID: in.GLAccountID,
			Amount:      in.Amount,
			PostingType: in.PostingType,
			Memo:        in.Memo,
			Date:        date,
		})
	}

	txn := &domain.Transaction{
		ID:              uuid.New().String(),
		OrgID:           orgID,
		TransactionType: req.TransactionType,
		Date:            date,
		TotalAmount:     domain.HeaderAmount(lines),
		Memo:            req.Memo,
		ReferenceNumber: req.ReferenceNumber,
		Status:          domain.PaymentStatePosted,
		Lines:           lines,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		txn.IdempotencyKey = &key
	}
	return txn, nil
}

// resolveChargeAmount applies the optional proration spec.
func resolveChargeAmount(req *domain.CreateChargeRequest) (amount float64, prorationDays *int, baseAmount *float64, err error) {
	if req.Proration == nil {
		return req.Amount, nil, nil, nil
	}

	p := req.Proration
	switch p.Kind {
	case domain.ProrationFirstMonth:
		amount = billing.ProrationFirstMonth(p.MonthlyAmount, p.Date)
	case domain.ProrationLastMonth:
		amount = billing.ProrationLastMonth(p.MonthlyAmount, p.Date)
	default:
		return 0, nil, nil, &domain.ErrValidation{Field: "proration.kind", Message: "must be first_month or last_month"}
	}

	if d, perr := time.Parse(billing.DateLayout, p.Date); perr == nil {
		dim := billing.DaysInMonth(d.Year(), d.Month())
		var days int
		if p.Kind == domain.ProrationFirstMonth {
			days = dim - d.Day() + 1
		} else {
			days = d.Day()
		}
		prorationDays = &days
	}
	base := p.MonthlyAmount
	return amount, prorationDays, &base, nil
}
