package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rentfolio/ledger-core/internal/domain"
	"github.com/rentfolio/ledger-core/internal/infra/observability"
	"github.com/rentfolio/ledger-core/internal/port"
)

var batchTracer = otel.Tracer("service/batch")

// depositChunkSize bounds one page of the deposit backfill.
const depositChunkSize = 100

// BatchRunner drives one-time backfills and the nightly batch. The migration
// marker is the only record of completion, and marker-check and marker-write
// are not atomic with the migration itself: every backfill function must
// tolerate re-running on the same data.
type BatchRunner struct {
	store     port.Store
	scheduler *SchedulerService
	settings  port.Cache[*domain.OrgSettings]
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewBatchRunner creates a new batch runner.
func NewBatchRunner(store port.Store, scheduler *SchedulerService, settings port.Cache[*domain.OrgSettings], metrics *observability.Metrics, logger *zap.Logger) *BatchRunner {
	return &BatchRunner{
		store:     store,
		scheduler: scheduler,
		settings:  settings,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// RunBackfill runs fn once per migration name. A completed marker makes the
// call a no-op; a crash between fn and the marker write leaves the system
// re-runnable because fn is required to be idempotent.
func (b *BatchRunner) RunBackfill(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := batchTracer.Start(ctx, "BatchRunner.RunBackfill")
	defer span.End()
	span.SetAttributes(attribute.String("migration.name", name))

	if name == "" {
		return &domain.ErrValidation{Field: "migration_name", Message: "required"}
	}

	if _, err := b.store.GetMarker(ctx, name); err == nil {
		b.metrics.IncrBackfillRun(name, "noop")
		b.logger.Info("backfill already complete", zap.String("migration", name))
		return nil
	} else {
		var nf *domain.ErrNotFound
		if !errors.As(err, &nf) {
			return err
		}
	}

	if err := fn(ctx); err != nil {
		b.metrics.IncrBackfillRun(name, "failure")
		b.logger.Error("backfill failed", zap.String("migration", name), zap.Error(err))
		return err
	}

	if err := b.store.PutMarker(ctx, &domain.BackfillMarker{Name: name, CompletedAt: b.now().UTC()}); err != nil {
		b.metrics.IncrBackfillRun(name, "failure")
		return err
	}
	b.metrics.IncrBackfillRun(name, "success")
	b.logger.Info("backfill complete", zap.String("migration", name))
	return nil
}

// NightlyRun warms the org-settings cache, fires due schedules and sweeps
// the deposit backfill. Safe under duplicate cron triggers.
func (b *BatchRunner) NightlyRun(ctx context.Context, now time.Time) (*RunSummary, error) {
	ctx, span := batchTracer.Start(ctx, "BatchRunner.NightlyRun")
	defer span.End()

	start := time.Now()
	defer func() { b.metrics.RecordRequestDuration("nightly_run", time.Since(start)) }()

	if orgIDs, err := b.store.OrgIDsWithSchedules(ctx); err == nil {
		for _, orgID := range orgIDs {
			if settings, err := b.store.GetOrgSettings(ctx, orgID); err == nil {
				b.settings.Set(orgID, settings)
			}
		}
	}

	var summary *RunSummary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = b.scheduler.FireDueSchedules(gctx, now)
		return err
	})
	g.Go(func() error {
		return b.BackfillDepositMetadata(gctx)
	})
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, nil
}

// BackfillDepositMetadata materializes deposit rows and item links for
// legacy deposit transactions that predate the deposits table. Upsert-based
// and keyset-paged, so interruption and re-runs are safe.
func (b *BatchRunner) BackfillDepositMetadata(ctx context.Context) error {
	ctx, span := batchTracer.Start(ctx, "BatchRunner.BackfillDepositMetadata")
	defer span.End()

	afterID := ""
	for {
		chunk, err := b.store.DepositTransactionsWithoutMeta(ctx, depositChunkSize, afterID)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		afterID = chunk[len(chunk)-1].ID

		for _, txn := range chunk {
			if err := b.materializeDeposit(ctx, txn); err != nil {
				b.logger.Error("deposit backfill failed for transaction",
					zap.String("transaction_id", txn.ID), zap.Error(err))
				return err
			}
		}

		if len(chunk) < depositChunkSize {
			return nil
		}
	}
}

// materializeDeposit derives the deposit row from the legacy transaction
// shape: the bank account comes from the debit line, the items from the
// credited undeposited-funds lines.
func (b *BatchRunner) materializeDeposit(ctx context.Context, txn domain.Transaction) error {
	lines, err := b.store.LinesForTransaction(ctx, txn.ID)
	if err != nil {
		return err
	}

	deposit := &domain.Deposit{
		ID:            uuid.New().String(),
		OrgID:         txn.OrgID,
		TransactionID: txn.ID,
		Status:        domain.DepositPosted,
	}
	for _, l := range lines {
		if l.PostingType == domain.PostingDebit {
			acct, err := b.store.GetGLAccount(ctx, txn.OrgID, l.GLAccountID)
			if err == nil && acct.IsBankAccount {
				deposit.BankGLAccountID = l.GLAccountID
			}
			continue
		}
		deposit.Items = append(deposit.Items, domain.DepositItem{
			ID:                   uuid.New().String(),
			PaymentTransactionID: txn.ID,
			Amount:               l.Amount,
		})
	}

	return b.store.UpsertDeposit(ctx, deposit)
}
