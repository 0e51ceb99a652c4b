package app

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/cimillas/odl-lending/internal/domain"
	"github.com/cimillas/odl-lending/internal/lsd"
)

// fakeRepo keeps everything in memory. GetPoolForUpdate inside WithTx holds a
// per-pool mutex until the transaction ends, like the row lock it stands in
// for, and a failed transaction puts the rows of the pools it locked back.
type fakeRepo struct {
	mu       sync.Mutex
	pools    map[string]domain.Pool
	licenses []domain.License
	loans    []domain.Loan
	holds    []domain.Hold

	poolLocks map[string]*sync.Mutex

	failUpdateLoan error
	// readDelay stretches ListLicenses so unserialized readers would overlap.
	readDelay time.Duration
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{pools: map[string]domain.Pool{}, poolLocks: map[string]*sync.Mutex{}}
}

type fakeTxKey struct{}

type fakeTx struct {
	held  []string
	saved map[string]poolRows
}

type poolRows struct {
	pool     domain.Pool
	exists   bool
	licenses []domain.License
	loans    []domain.Loan
	holds    []domain.Hold
}

func ofPool[T any](rows []T, poolID string, pool func(T) string) (in, out []T) {
	for _, r := range rows {
		if pool(r) == poolID {
			in = append(in, r)
		} else {
			out = append(out, r)
		}
	}
	return in, out
}

func licensePool(l domain.License) string { return l.PoolID }
func loanPool(l domain.Loan) string       { return l.PoolID }
func holdPool(h domain.Hold) string       { return h.PoolID }

// Callers hold f.mu.
func (f *fakeRepo) savePool(poolID string) poolRows {
	p, ok := f.pools[poolID]
	licenses, _ := ofPool(f.licenses, poolID, licensePool)
	loans, _ := ofPool(f.loans, poolID, loanPool)
	holds, _ := ofPool(f.holds, poolID, holdPool)
	return poolRows{pool: p, exists: ok, licenses: licenses, loans: loans, holds: holds}
}

// Callers hold f.mu.
func (f *fakeRepo) restorePool(poolID string, rows poolRows) {
	if rows.exists {
		f.pools[poolID] = rows.pool
	} else {
		delete(f.pools, poolID)
	}
	_, licenses := ofPool(f.licenses, poolID, licensePool)
	_, loans := ofPool(f.loans, poolID, loanPool)
	_, holds := ofPool(f.holds, poolID, holdPool)
	f.licenses = append(licenses, rows.licenses...)
	f.loans = append(loans, rows.loans...)
	f.holds = append(holds, rows.holds...)
}

func (f *fakeRepo) poolLock(poolID string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.poolLocks[poolID]
	if !ok {
		m = &sync.Mutex{}
		f.poolLocks[poolID] = m
	}
	return m
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(fakeTxKey{}).(*fakeTx); ok {
		return fn(ctx)
	}
	tx := &fakeTx{saved: map[string]poolRows{}}
	err := fn(context.WithValue(ctx, fakeTxKey{}, tx))
	if err != nil {
		f.mu.Lock()
		for poolID, rows := range tx.saved {
			f.restorePool(poolID, rows)
		}
		f.mu.Unlock()
	}
	for _, poolID := range tx.held {
		f.poolLock(poolID).Unlock()
	}
	return err
}

func (f *fakeRepo) GetPool(_ context.Context, poolID string) (domain.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[poolID]
	if !ok {
		return domain.Pool{}, domain.ErrPoolNotFound
	}
	return p, nil
}

func (f *fakeRepo) GetPoolForUpdate(ctx context.Context, poolID string) (domain.Pool, error) {
	if tx, ok := ctx.Value(fakeTxKey{}).(*fakeTx); ok && !slices.Contains(tx.held, poolID) {
		f.poolLock(poolID).Lock()
		tx.held = append(tx.held, poolID)
		f.mu.Lock()
		tx.saved[poolID] = f.savePool(poolID)
		f.mu.Unlock()
	}
	return f.GetPool(ctx, poolID)
}

func (f *fakeRepo) UpdatePoolCounters(_ context.Context, pool domain.Pool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pools[pool.ID] = pool
	return nil
}

func (f *fakeRepo) CreatePool(_ context.Context, pool domain.Pool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pools[pool.ID] = pool
	return nil
}

func (f *fakeRepo) FindPool(_ context.Context, collectionID, identifierType, identifier string) (*domain.Pool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pools {
		if p.CollectionID == collectionID && p.IdentifierType == identifierType && p.Identifier == identifier {
			return &p, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListPoolIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.pools))
	for id := range f.pools {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *fakeRepo) ListLicenses(_ context.Context, poolID string) ([]domain.License, error) {
	time.Sleep(f.readDelay)
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.License
	for _, l := range f.licenses {
		if l.PoolID == poolID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateLicense(_ context.Context, license domain.License) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.licenses {
		if f.licenses[i].PoolID == license.PoolID && f.licenses[i].Identifier == license.Identifier {
			f.licenses[i] = license
			return nil
		}
	}
	return errors.New("license not found")
}

func (f *fakeRepo) UpsertLicense(ctx context.Context, license domain.License) error {
	if err := f.UpdateLicense(ctx, license); err == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.licenses = append(f.licenses, license)
	return nil
}

func (f *fakeRepo) ListLoans(_ context.Context, poolID string) ([]domain.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Loan
	for _, l := range f.loans {
		if l.PoolID == poolID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetLoan(_ context.Context, loanID string) (domain.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.loans {
		if l.ID == loanID {
			return l, nil
		}
	}
	return domain.Loan{}, domain.ErrLoanNotFound
}

func (f *fakeRepo) FindLoan(_ context.Context, patronID, poolID string) (*domain.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.loans {
		if l.PatronID == patronID && l.PoolID == poolID {
			return &l, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateLoan(_ context.Context, loan domain.Loan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loans = append(f.loans, loan)
	return nil
}

func (f *fakeRepo) UpdateLoan(_ context.Context, loan domain.Loan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateLoan != nil {
		return f.failUpdateLoan
	}
	for i := range f.loans {
		if f.loans[i].ID == loan.ID {
			f.loans[i] = loan
			return nil
		}
	}
	return domain.ErrLoanNotFound
}

func (f *fakeRepo) DeleteLoan(_ context.Context, loanID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.loans)
	f.loans = slices.DeleteFunc(f.loans, func(l domain.Loan) bool { return l.ID == loanID })
	if len(f.loans) == n {
		return domain.ErrLoanNotFound
	}
	return nil
}

func (f *fakeRepo) ListPatronLoans(_ context.Context, patronID string) ([]domain.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Loan
	for _, l := range f.loans {
		if l.PatronID == patronID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListStalePendingLoans(_ context.Context, cutoff time.Time) ([]domain.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Loan
	for _, l := range f.loans {
		if l.IsPending() && l.Start.Before(cutoff) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListHolds(_ context.Context, poolID string) ([]domain.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Hold
	for _, h := range f.holds {
		if h.PoolID == poolID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindHold(_ context.Context, patronID, poolID string) (*domain.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.holds {
		if h.PatronID == patronID && h.PoolID == poolID {
			return &h, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateHold(_ context.Context, hold domain.Hold) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds = append(f.holds, hold)
	return nil
}

func (f *fakeRepo) UpdateHold(_ context.Context, hold domain.Hold) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.holds {
		if f.holds[i].ID == hold.ID {
			f.holds[i] = hold
			return nil
		}
	}
	return errors.New("hold not found")
}

func (f *fakeRepo) DeleteHold(_ context.Context, holdID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds = slices.DeleteFunc(f.holds, func(h domain.Hold) bool { return h.ID == holdID })
	return nil
}

func (f *fakeRepo) ListPatronHolds(_ context.Context, patronID string) ([]domain.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Hold
	for _, h := range f.holds {
		if h.PatronID == patronID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListExpiredReservedHolds(_ context.Context, now time.Time) ([]domain.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Hold
	for _, h := range f.holds {
		if h.Position == 0 && h.End != nil && h.End.Before(now) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeRepo) pool(id string) domain.Pool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pools[id]
}

func (f *fakeRepo) license(poolID, identifier string) domain.License {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.licenses {
		if l.PoolID == poolID && l.Identifier == identifier {
			return l
		}
	}
	return domain.License{}
}

func (f *fakeRepo) holdOf(patronID string) (domain.Hold, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.holds {
		if h.PatronID == patronID {
			return h, true
		}
	}
	return domain.Hold{}, false
}

func (f *fakeRepo) loanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loans)
}

// fakeClient answers with scripted documents. checkout answers the first
// fetch of a pending loan; status answers every fetch of a confirmed one in
// turn, repeating the last.
type fakeClient struct {
	mu          sync.Mutex
	checkout    func(loan domain.Loan) (lsd.Document, error)
	status      []lsd.Document
	statusErr   error
	followErr   error
	followed    []lsd.Link
	statusLink  func(doc lsd.Document) (string, error)
	fetchCalls  int
	onFetch     func()
	statusCalls int
}

func (c *fakeClient) Fetch(_ context.Context, loan domain.Loan, _ domain.License) (lsd.Document, error) {
	c.mu.Lock()
	c.fetchCalls++
	onFetch := c.onFetch
	c.mu.Unlock()
	if onFetch != nil {
		onFetch()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if loan.IsPending() {
		if c.checkout == nil {
			return lsd.Document{}, errors.New("unexpected checkout")
		}
		return c.checkout(loan)
	}
	if c.statusErr != nil {
		return lsd.Document{}, c.statusErr
	}
	if len(c.status) == 0 {
		return lsd.Document{}, errors.New("no status scripted")
	}
	i := min(c.statusCalls, len(c.status)-1)
	c.statusCalls++
	return c.status[i], nil
}

func (c *fakeClient) Follow(_ context.Context, link lsd.Link) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.followed = append(c.followed, link)
	return c.followErr
}

func (c *fakeClient) StatusLink(_ context.Context, doc lsd.Document) (string, error) {
	if c.statusLink != nil {
		return c.statusLink(doc)
	}
	if self := doc.SelfURL(); self != "" {
		return self, nil
	}
	return "", domain.ErrCannotLoan
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.CirculationEvent
}

func (s *recordingSink) Publish(_ context.Context, events ...domain.CirculationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
}

func (s *recordingSink) types() []domain.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}
