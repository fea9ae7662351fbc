package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rentfolio/ledger-core/internal/domain"
	"github.com/rentfolio/ledger-core/internal/infra/cache"
	"github.com/rentfolio/ledger-core/internal/infra/observability"
	"github.com/rentfolio/ledger-core/internal/service"
)

const (
	testOrg  = "11111111-1111-1111-1111-111111111111"
	cacheTTL = time.Minute
)

// testEnv wires every service against the in-memory store.
type testEnv struct {
	store   *memStore
	audit   *memAudit
	metrics *observability.Metrics

	ledger     *service.LedgerService
	receivable *service.ReceivableService
	reversal   *service.ReversalService
	recon      *service.ReconciliationService
	scheduler  *service.SchedulerService
	batch      *service.BatchRunner

	bankAccount   string
	arAccount     string
	incomeAccount string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	audit := &memAudit{}
	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	settings := cache.New[*domain.OrgSettings](cacheTTL)

	env := &testEnv{
		store:   store,
		audit:   audit,
		metrics: metrics,
	}
	env.ledger = service.NewLedgerService(store, audit, metrics, logger)
	env.receivable = service.NewReceivableService(store, audit, metrics, logger)
	env.reversal = service.NewReversalService(store, audit, metrics, logger)
	env.recon = service.NewReconciliationService(store, audit, metrics, logger)
	env.scheduler = service.NewSchedulerService(store, env.ledger, settings, audit, metrics, logger, 4)
	env.batch = service.NewBatchRunner(store, env.scheduler, settings, metrics, logger)

	ctx := context.Background()
	accounts := []struct {
		name string
		typ  domain.AccountType
		bank bool
		dest *string
	}{
		{"Operating Bank", domain.AccountTypeAsset, true, &env.bankAccount},
		{"Accounts Receivable", domain.AccountTypeAsset, false, &env.arAccount},
		{"Rent Income", domain.AccountTypeIncome, false, &env.incomeAccount},
	}
	for _, a := range accounts {
		acct := &domain.GLAccount{OrgID: testOrg, Name: a.name, Type: a.typ, IsBankAccount: a.bank}
		require.NoError(t, store.CreateGLAccount(ctx, acct))
		*a.dest = acct.ID
	}
	return env
}

// postPayment posts a bank-debit / income-credit payment and returns it.
func (env *testEnv) postPayment(t *testing.T, amount float64, date string) *domain.Transaction {
	t.Helper()

	txn, err := env.ledger.PostTransaction(context.Background(), testOrg, &domain.PostTransactionRequest{
		TransactionType: domain.TransactionTypePayment,
		Date:            date,
		Lines: []domain.PostLineInput{
			{GLAccountID: env.bankAccount, Amount: amount, PostingType: domain.PostingDebit},
			{GLAccountID: env.incomeAccount, Amount: amount, PostingType: domain.PostingCredit},
		},
	})
	require.NoError(t, err)
	return txn
}

// createCharge posts an open accrual charge for a lease.
func (env *testEnv) createCharge(t *testing.T, leaseID string, amount float64, dueDate string) *domain.Charge {
	t.Helper()

	charge, err := env.ledger.CreateCharge(context.Background(), testOrg, &domain.CreateChargeRequest{
		LeaseID:         leaseID,
		ChargeType:      "rent",
		Amount:          amount,
		DueDate:         dueDate,
		ARGLAccountID:   env.arAccount,
		IncomeAccountID: env.incomeAccount,
	})
	require.NoError(t, err)
	return charge
}
