package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentfolio/ledger-core/internal/domain"
)

func TestRunBackfill_RunsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var calls int
	fn := func(context.Context) error {
		calls++
		return nil
	}

	require.NoError(t, env.batch.RunBackfill(ctx, "deposits_metadata_v1", fn))
	assert.Equal(t, 1, calls)

	// A completed marker makes the re-run a no-op.
	require.NoError(t, env.batch.RunBackfill(ctx, "deposits_metadata_v1", fn))
	assert.Equal(t, 1, calls)

	marker, err := env.store.GetMarker(ctx, "deposits_metadata_v1")
	require.NoError(t, err)
	assert.False(t, marker.CompletedAt.IsZero())
}

func TestRunBackfill_FailureLeavesNoMarker(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	boom := errors.New("backfill exploded")
	err := env.batch.RunBackfill(ctx, "broken_migration", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)

	_, err = env.store.GetMarker(ctx, "broken_migration")
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)

	// The crash-and-retry path runs fn again.
	var calls int
	require.NoError(t, env.batch.RunBackfill(ctx, "broken_migration", func(context.Context) error {
		calls++
		return nil
	}))
	assert.Equal(t, 1, calls)
}

func TestBackfillDepositMetadata_MaterializesAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A legacy deposit: bank debit against two credited payment lines.
	deposit, err := env.ledger.PostTransaction(ctx, testOrg, &domain.PostTransactionRequest{
		TransactionType: domain.TransactionTypeDeposit,
		Date:            "2024-06-05",
		Lines: []domain.PostLineInput{
			{GLAccountID: env.bankAccount, Amount: 900, PostingType: domain.PostingDebit},
			{GLAccountID: env.arAccount, Amount: 500, PostingType: domain.PostingCredit},
			{GLAccountID: env.arAccount, Amount: 400, PostingType: domain.PostingCredit},
		},
	})
	require.NoError(t, err)

	require.NoError(t, env.batch.BackfillDepositMetadata(ctx))

	got, err := env.store.GetDepositByTransaction(ctx, testOrg, deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, env.bankAccount, got.BankGLAccountID)
	assert.Equal(t, domain.DepositPosted, got.Status)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 500.0, got.Items[0].Amount)
	assert.Equal(t, 400.0, got.Items[1].Amount)

	// Re-running upserts the same row, no duplicates.
	require.NoError(t, env.batch.BackfillDepositMetadata(ctx))
	assert.Len(t, env.store.deposits, 1)
}

func TestNightlyRun_FiresSchedulesAndSweepsDeposits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createMonthlySchedule(t, 1)

	legacy, err := env.ledger.PostTransaction(ctx, testOrg, &domain.PostTransactionRequest{
		TransactionType: domain.TransactionTypeDeposit,
		Date:            "2024-05-20",
		Lines: []domain.PostLineInput{
			{GLAccountID: env.bankAccount, Amount: 250, PostingType: domain.PostingDebit},
			{GLAccountID: env.arAccount, Amount: 250, PostingType: domain.PostingCredit},
		},
	})
	require.NoError(t, err)

	summary, err := env.batch.NightlyRun(ctx, time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Generated)

	_, err = env.store.GetDepositByTransaction(ctx, testOrg, legacy.ID)
	assert.NoError(t, err)
}
