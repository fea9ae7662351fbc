package service_test

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rentfolio/ledger-core/internal/domain"
	"github.com/rentfolio/ledger-core/internal/port"
)

// memStore is an in-memory port.Store for service tests. Atomic snapshots
// all state and restores it when fn fails, matching the rollback semantics
// of the real store.
type memStore struct {
	mu        sync.Mutex
	accounts  map[string]*domain.GLAccount
	txns      map[string]*domain.Transaction
	idemKeys  map[string]string
	charges   map[string]*domain.Charge
	allocs    []domain.PaymentAllocation
	schedules map[string]*domain.RecurringSchedule
	recons    map[string]*domain.Reconciliation
	reversals map[string]*domain.ReversalRecord
	deposits  map[string]*domain.Deposit
	markers   map[string]*domain.BackfillMarker
	settings  map[string]*domain.OrgSettings
}

func newMemStore() *memStore {
	return &memStore{
		accounts:  make(map[string]*domain.GLAccount),
		txns:      make(map[string]*domain.Transaction),
		idemKeys:  make(map[string]string),
		charges:   make(map[string]*domain.Charge),
		schedules: make(map[string]*domain.RecurringSchedule),
		recons:    make(map[string]*domain.Reconciliation),
		reversals: make(map[string]*domain.ReversalRecord),
		deposits:  make(map[string]*domain.Deposit),
		markers:   make(map[string]*domain.BackfillMarker),
		settings:  make(map[string]*domain.OrgSettings),
	}
}

var _ port.Store = (*memStore)(nil)

func (m *memStore) snapshot() *memStore {
	snap := newMemStore()
	for k, v := range m.accounts {
		c := *v
		snap.accounts[k] = &c
	}
	for k, v := range m.txns {
		c := *v
		c.Lines = append([]domain.TransactionLine(nil), v.Lines...)
		snap.txns[k] = &c
	}
	for k, v := range m.idemKeys {
		snap.idemKeys[k] = v
	}
	for k, v := range m.charges {
		c := *v
		snap.charges[k] = &c
	}
	snap.allocs = append([]domain.PaymentAllocation(nil), m.allocs...)
	for k, v := range m.schedules {
		c := *v
		snap.schedules[k] = &c
	}
	for k, v := range m.recons {
		c := *v
		snap.recons[k] = &c
	}
	for k, v := range m.reversals {
		c := *v
		snap.reversals[k] = &c
	}
	for k, v := range m.deposits {
		c := *v
		c.Items = append([]domain.DepositItem(nil), v.Items...)
		snap.deposits[k] = &c
	}
	for k, v := range m.markers {
		c := *v
		snap.markers[k] = &c
	}
	for k, v := range m.settings {
		c := *v
		snap.settings[k] = &c
	}
	return snap
}

func (m *memStore) restore(snap *memStore) {
	m.accounts = snap.accounts
	m.txns = snap.txns
	m.idemKeys = snap.idemKeys
	m.charges = snap.charges
	m.allocs = snap.allocs
	m.schedules = snap.schedules
	m.recons = snap.recons
	m.reversals = snap.reversals
	m.deposits = snap.deposits
	m.markers = snap.markers
	m.settings = snap.settings
}

func (m *memStore) Atomic(ctx context.Context, fn func(port.Store) error) error {
	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

// --- LedgerRepository ---

func (m *memStore) CreateTransaction(_ context.Context, txn *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if txn.IdempotencyKey != nil {
		if _, exists := m.idemKeys[*txn.IdempotencyKey]; exists {
			return &domain.ErrDuplicateKey{Key: *txn.IdempotencyKey}
		}
	}
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	for i := range txn.Lines {
		if txn.Lines[i].ID == "" {
			txn.Lines[i].ID = uuid.New().String()
		}
		txn.Lines[i].TransactionID = txn.ID
	}

	c := *txn
	c.Lines = append([]domain.TransactionLine(nil), txn.Lines...)
	m.txns[txn.ID] = &c
	if txn.IdempotencyKey != nil {
		m.idemKeys[*txn.IdempotencyKey] = txn.ID
	}
	return nil
}

func (m *memStore) GetTransaction(_ context.Context, orgID, id string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[id]
	if !ok || txn.OrgID != orgID {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	c := *txn
	c.Lines = append([]domain.TransactionLine(nil), txn.Lines...)
	return &c, nil
}

func (m *memStore) LinesForTransaction(_ context.Context, transactionID string) ([]domain.TransactionLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[transactionID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: transactionID}
	}
	return append([]domain.TransactionLine(nil), txn.Lines...), nil
}

func (m *memStore) PostingSums(_ context.Context, transactionID string) (float64, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[transactionID]
	if !ok {
		return 0, 0, &domain.ErrNotFound{Resource: "transaction", ID: transactionID}
	}
	var debits, credits float64
	for _, l := range txn.Lines {
		if l.PostingType == domain.PostingDebit {
			debits += math.Abs(l.Amount)
		} else {
			credits += math.Abs(l.Amount)
		}
	}
	return debits, credits, nil
}

func (m *memStore) HasBankLine(_ context.Context, transactionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[transactionID]
	if !ok {
		return false, nil
	}
	for _, l := range txn.Lines {
		if acct, ok := m.accounts[l.GLAccountID]; ok && acct.IsBankAccount {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) HasReconciledLine(_ context.Context, transactionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[transactionID]
	if !ok {
		return false, nil
	}
	for _, l := range txn.Lines {
		if l.ReconciliationID == nil {
			continue
		}
		if rec, ok := m.recons[*l.ReconciliationID]; ok && rec.IsFinished {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) MarkPaymentReversed(_ context.Context, orgID, paymentID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[paymentID]
	if !ok || txn.OrgID != orgID || txn.Status != domain.PaymentStatePosted {
		return 0, nil
	}
	txn.Status = domain.PaymentStateReversed
	return 1, nil
}

func (m *memStore) CreateReversalRecord(_ context.Context, rec *domain.ReversalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reversals[rec.PaymentTransactionID]; exists {
		return &domain.ErrDuplicateKey{Key: rec.PaymentTransactionID}
	}
	c := *rec
	m.reversals[rec.PaymentTransactionID] = &c
	return nil
}

func (m *memStore) GetReversalRecord(_ context.Context, orgID, paymentID string) (*domain.ReversalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.reversals[paymentID]
	if !ok || rec.OrgID != orgID {
		return nil, &domain.ErrNotFound{Resource: "reversal", ID: paymentID}
	}
	c := *rec
	return &c, nil
}

func (m *memStore) UpdateReversalResolution(_ context.Context, orgID, paymentID string, res domain.ChargebackResolution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.reversals[paymentID]
	if !ok || rec.OrgID != orgID {
		return &domain.ErrNotFound{Resource: "reversal", ID: paymentID}
	}
	rec.Resolution = res
	return nil
}

func (m *memStore) GetGLAccount(_ context.Context, orgID, id string) (*domain.GLAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok || acct.OrgID != orgID {
		return nil, &domain.ErrNotFound{Resource: "gl account", ID: id}
	}
	c := *acct
	return &c, nil
}

func (m *memStore) CreateGLAccount(_ context.Context, acct *domain.GLAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acct.ID == "" {
		acct.ID = uuid.New().String()
	}
	c := *acct
	m.accounts[acct.ID] = &c
	return nil
}

// --- ReceivableRepository ---

func (m *memStore) CreateCharge(_ context.Context, c *domain.Charge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.charges {
		if existing.TransactionID == c.TransactionID {
			return &domain.ErrDuplicateKey{Key: c.TransactionID}
		}
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	cc := *c
	m.charges[c.ID] = &cc
	return nil
}

func (m *memStore) GetCharge(_ context.Context, orgID, id string) (*domain.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.charges[id]
	if !ok || c.OrgID != orgID {
		return nil, &domain.ErrNotFound{Resource: "charge", ID: id}
	}
	cc := *c
	return &cc, nil
}

func (m *memStore) GetChargeByExternalID(_ context.Context, orgID, externalID string) (*domain.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.charges {
		if c.OrgID == orgID && c.ExternalID != nil && *c.ExternalID == externalID {
			cc := *c
			return &cc, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "charge", ID: externalID}
}

func (m *memStore) UpdateChargeOpen(_ context.Context, id string, amountOpen float64, status domain.ChargeStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.charges[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "charge", ID: id}
	}
	c.AmountOpen = amountOpen
	c.Status = status
	return nil
}

func (m *memStore) OpenChargesOldestFirst(_ context.Context, orgID, leaseID string) ([]domain.Charge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Charge
	for _, c := range m.charges {
		if c.OrgID == orgID && c.LeaseID == leaseID &&
			(c.Status == domain.ChargeOpen || c.Status == domain.ChargePartial) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (m *memStore) CreateAllocations(_ context.Context, allocs []domain.PaymentAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.allocs = append(m.allocs, allocs...)
	return nil
}

func (m *memStore) AllocationsForPayment(_ context.Context, paymentTransactionID string) ([]domain.PaymentAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.PaymentAllocation
	for _, a := range m.allocs {
		if a.PaymentTransactionID == paymentTransactionID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) DeleteAllocationsForPayment(_ context.Context, paymentTransactionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.allocs[:0]
	for _, a := range m.allocs {
		if a.PaymentTransactionID != paymentTransactionID {
			kept = append(kept, a)
		}
	}
	m.allocs = kept
	return nil
}

// --- ScheduleRepository ---

func (m *memStore) CreateSchedule(_ context.Context, s *domain.RecurringSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	c := *s
	m.schedules[s.ID] = &c
	return nil
}

func (m *memStore) GetSchedule(_ context.Context, orgID, id string) (*domain.RecurringSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[id]
	if !ok || s.OrgID != orgID {
		return nil, &domain.ErrNotFound{Resource: "schedule", ID: id}
	}
	c := *s
	return &c, nil
}

func (m *memStore) UpdateScheduleStatus(_ context.Context, orgID, id string, status domain.ScheduleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[id]
	if !ok || s.OrgID != orgID {
		return &domain.ErrNotFound{Resource: "schedule", ID: id}
	}
	s.Status = status
	if status == domain.ScheduleEnded {
		now := time.Now()
		s.EndedAt = &now
	}
	return nil
}

func (m *memStore) DueSchedules(_ context.Context, limit int, afterID string) ([]domain.RecurringSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.RecurringSchedule
	for _, s := range m.schedules {
		if s.Status == domain.ScheduleActive && s.ID > afterID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) MarkScheduleRun(_ context.Context, id string, generatedAt time.Time, nextRunDate *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.schedules[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "schedule", ID: id}
	}
	s.LastGeneratedAt = &generatedAt
	s.NextRunDate = nextRunDate
	return nil
}

// --- ReconciliationRepository ---

func (m *memStore) CreateReconciliation(_ context.Context, r *domain.Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	c := *r
	m.recons[r.ID] = &c
	return nil
}

func (m *memStore) GetReconciliation(_ context.Context, orgID, id string) (*domain.Reconciliation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.recons[id]
	if !ok || r.OrgID != orgID {
		return nil, &domain.ErrNotFound{Resource: "reconciliation", ID: id}
	}
	c := *r
	return &c, nil
}

func (m *memStore) SetLinesCleared(_ context.Context, reconciliationID, bankGLAccountID string, transactionIDs []string, cleared bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected int64
	for _, id := range transactionIDs {
		txn, ok := m.txns[id]
		if !ok {
			continue
		}
		for i := range txn.Lines {
			if txn.Lines[i].GLAccountID != bankGLAccountID {
				continue
			}
			txn.Lines[i].Cleared = cleared
			if cleared {
				rid := reconciliationID
				txn.Lines[i].ReconciliationID = &rid
			} else {
				txn.Lines[i].ReconciliationID = nil
			}
			affected++
		}
	}
	return affected, nil
}

func (m *memStore) FinalizeReconciliation(_ context.Context, orgID, id string, statementEndingDate time.Time, endingBalance *float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.recons[id]
	if !ok || r.OrgID != orgID || r.IsFinished {
		return 0, nil
	}
	r.IsFinished = true
	r.StatementEndingDate = &statementEndingDate
	if endingBalance != nil {
		r.EndingBalance = endingBalance
	}
	return 1, nil
}

func (m *memStore) ClearedBalance(_ context.Context, reconciliationID string) (float64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sum float64
	var count int
	for _, txn := range m.txns {
		for _, l := range txn.Lines {
			if !l.Cleared || l.ReconciliationID == nil || *l.ReconciliationID != reconciliationID {
				continue
			}
			sum += l.SignedAmount()
			count++
		}
	}
	return sum, count, nil
}

func (m *memStore) PendingOlderThan(_ context.Context, orgID string, cutoff time.Time) ([]domain.Reconciliation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Reconciliation
	for _, r := range m.recons {
		if r.OrgID == orgID && !r.IsFinished && r.CreatedAt.Before(cutoff) {
			out = append(out, *r)
		}
	}
	return out, nil
}

// --- DepositRepository ---

func (m *memStore) UpsertDeposit(_ context.Context, d *domain.Deposit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	c := *d
	c.Items = append([]domain.DepositItem(nil), d.Items...)
	m.deposits[d.TransactionID] = &c
	return nil
}

func (m *memStore) GetDepositByTransaction(_ context.Context, orgID, transactionID string) (*domain.Deposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deposits[transactionID]
	if !ok || d.OrgID != orgID {
		return nil, &domain.ErrNotFound{Resource: "deposit", ID: transactionID}
	}
	c := *d
	return &c, nil
}

func (m *memStore) DepositTransactionsWithoutMeta(_ context.Context, limit int, afterID string) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Transaction
	for _, txn := range m.txns {
		if txn.TransactionType != domain.TransactionTypeDeposit || txn.ID <= afterID {
			continue
		}
		if _, exists := m.deposits[txn.ID]; exists {
			continue
		}
		c := *txn
		c.Lines = append([]domain.TransactionLine(nil), txn.Lines...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- BackfillMarkerRepository ---

func (m *memStore) GetMarker(_ context.Context, name string) (*domain.BackfillMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mk, ok := m.markers[name]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "backfill marker", ID: name}
	}
	c := *mk
	return &c, nil
}

func (m *memStore) PutMarker(_ context.Context, mk *domain.BackfillMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *mk
	m.markers[mk.Name] = &c
	return nil
}

// --- OrgSettingsRepository ---

func (m *memStore) GetOrgSettings(_ context.Context, orgID string) (*domain.OrgSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.settings[orgID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "org settings", ID: orgID}
	}
	c := *s
	return &c, nil
}

func (m *memStore) OrgIDsWithSchedules(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, s := range m.schedules {
		if s.Status == domain.ScheduleActive && !seen[s.OrgID] {
			seen[s.OrgID] = true
			out = append(out, s.OrgID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// --- AuditTrail fake ---

type memAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *memAudit) Record(_ context.Context, event domain.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Action)
	}
	return out
}
