package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentfolio/ledger-core/internal/domain"
)

func TestReconciliation_ClearUnclearRepeatableWhilePending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payment := env.postPayment(t, 1000, "2024-06-01")
	rec, err := env.recon.Start(ctx, testOrg, &domain.StartReconciliationRequest{BankGLAccountID: env.bankAccount})
	require.NoError(t, err)
	assert.Equal(t, domain.ReconciliationPending, rec.State())

	// Only the bank side of the payment clears.
	n, err := env.recon.ClearTransactions(ctx, testOrg, rec.ID, []string{payment.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = env.recon.UnclearTransactions(ctx, testOrg, rec.ID, []string{payment.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = env.recon.ClearTransactions(ctx, testOrg, rec.ID, []string{payment.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestReconciliation_StartRequiresBankAccount(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.recon.Start(context.Background(), testOrg, &domain.StartReconciliationRequest{
		BankGLAccountID: env.arAccount,
	})
	var validation *domain.ErrValidation
	assert.ErrorAs(t, err, &validation)
}

func TestReconciliation_FinalizeIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	payment := env.postPayment(t, 1000, "2024-06-01")
	rec, err := env.recon.Start(ctx, testOrg, &domain.StartReconciliationRequest{BankGLAccountID: env.bankAccount})
	require.NoError(t, err)

	_, err = env.recon.ClearTransactions(ctx, testOrg, rec.ID, []string{payment.ID})
	require.NoError(t, err)

	require.NoError(t, env.recon.Finalize(ctx, testOrg, rec.ID, &domain.FinalizeReconciliationRequest{
		StatementEndingDate: "2024-06-30",
	}))

	got, err := env.recon.Get(ctx, testOrg, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconciliationFinished, got.State())
	require.NotNil(t, got.StatementEndingDate)
	assert.Equal(t, "2024-06-30", got.StatementEndingDate.Format("2006-01-02"))

	// Every later mutation fails with the immutability error.
	var immutable *domain.ErrReconciledImmutable

	_, err = env.recon.ClearTransactions(ctx, testOrg, rec.ID, []string{payment.ID})
	assert.ErrorAs(t, err, &immutable)

	_, err = env.recon.UnclearTransactions(ctx, testOrg, rec.ID, []string{payment.ID})
	assert.ErrorAs(t, err, &immutable)

	err = env.recon.Finalize(ctx, testOrg, rec.ID, &domain.FinalizeReconciliationRequest{StatementEndingDate: "2024-07-31"})
	assert.ErrorAs(t, err, &immutable)
}

func TestReconciliation_VarianceReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.postPayment(t, 600, "2024-06-01")
	p2 := env.postPayment(t, 400, "2024-06-02")

	ending := 1250.0
	rec, err := env.recon.Start(ctx, testOrg, &domain.StartReconciliationRequest{
		BankGLAccountID: env.bankAccount,
		EndingBalance:   &ending,
	})
	require.NoError(t, err)

	_, err = env.recon.ClearTransactions(ctx, testOrg, rec.ID, []string{p1.ID, p2.ID})
	require.NoError(t, err)

	report, err := env.recon.VarianceReport(ctx, testOrg, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, report.ClearedBalance)
	assert.Equal(t, 1250.0, report.StatementBalance)
	assert.Equal(t, 250.0, report.Variance)
	assert.Equal(t, 2, report.ClearedLines)
}

func TestReconciliation_StaleListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec, err := env.recon.Start(ctx, testOrg, &domain.StartReconciliationRequest{BankGLAccountID: env.bankAccount})
	require.NoError(t, err)

	// Age the reconciliation past the threshold.
	env.store.recons[rec.ID].CreatedAt = time.Now().Add(-40 * 24 * time.Hour)

	stale, err := env.recon.StaleReconciliations(ctx, testOrg, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, rec.ID, stale[0].ID)
	assert.Greater(t, stale[0].PendingFor, 30*24*time.Hour)

	// A finalized reconciliation is never stale.
	require.NoError(t, env.recon.Finalize(ctx, testOrg, rec.ID, &domain.FinalizeReconciliationRequest{
		StatementEndingDate: "2024-06-30",
	}))
	stale, err = env.recon.StaleReconciliations(ctx, testOrg, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)
}
