// Package memstore is a process-local Store implementation used for
// single-node operation and tests. Atomicity is provided by a single
// mutex per concern.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/account"
	"github.com/interledger/go-ilp-connector/store"
)

type bucket struct {
	total     uint64
	expiresAt time.Time
}

// Store is an in-memory store.Store.
type Store struct {
	mu sync.Mutex

	accounts        map[uuid.UUID]*account.Account
	byUsername      map[string]uuid.UUID
	byIncomingHTTP  map[string]uuid.UUID
	byIncomingBTP   map[string]uuid.UUID

	balances map[uuid.UUID]store.Balance

	buckets map[string]*bucket // key: accountID.String()+"/"+dim

	staticRoutes map[string]uuid.UUID
	defaultRoute uuid.UUID
	hasDefault   bool

	idempotency map[string]store.IdempotencyRecord
	uncredited  map[uuid.UUID][2]uint64 // [amount, scale]
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts:       make(map[uuid.UUID]*account.Account),
		byUsername:     make(map[string]uuid.UUID),
		byIncomingHTTP: make(map[string]uuid.UUID),
		byIncomingBTP:  make(map[string]uuid.UUID),
		balances:       make(map[uuid.UUID]store.Balance),
		buckets:        make(map[string]*bucket),
		staticRoutes:   make(map[string]uuid.UUID),
		idempotency:    make(map[string]store.IdempotencyRecord),
		uncredited:     make(map[uuid.UUID][2]uint64),
	}
}

func (s *Store) Close() error { return nil }

// --- AccountStore ---

func (s *Store) PutAccount(ctx context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[a.ID] = a
	s.byUsername[a.Username] = a.ID
	if a.IncomingHTTPToken.Reveal() != "" {
		s.byIncomingHTTP[a.IncomingHTTPToken.Reveal()] = a.ID
	}
	if a.IncomingBTPToken.Reveal() != "" {
		s.byIncomingBTP[a.IncomingBTPToken.Reveal()] = a.ID
	}
	if _, ok := s.balances[a.ID]; !ok {
		s.balances[a.ID] = store.Balance{}
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) GetAccountByIncomingHTTPToken(ctx context.Context, token string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIncomingHTTP[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) GetAccountByIncomingBTPToken(ctx context.Context, token string) (*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byIncomingBTP[token]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.accounts, id)
	delete(s.byUsername, a.Username)
	if a.IncomingHTTPToken.Reveal() != "" {
		delete(s.byIncomingHTTP, a.IncomingHTTPToken.Reveal())
	}
	if a.IncomingBTPToken.Reveal() != "" {
		delete(s.byIncomingBTP, a.IncomingBTPToken.Reveal())
	}
	delete(s.balances, id)
	return nil
}

// --- BalanceStore ---

func (s *Store) GetBalance(ctx context.Context, id uuid.UUID) (store.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[id], nil
}

func (s *Store) Reserve(ctx context.Context, id uuid.UUID, amount uint64, minBalance int64) (store.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balances[id]
	newBalance := store.Balance{Balance: b.Balance - int64(amount), PrepaidAmount: b.PrepaidAmount}
	if newBalance.EffectiveBalance() < minBalance {
		return b, store.ErrInsufficientBalance
	}
	s.balances[id] = newBalance
	return newBalance, nil
}

func (s *Store) Credit(ctx context.Context, id uuid.UUID, amount uint64) (store.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balances[id]
	b.Balance += int64(amount)
	s.balances[id] = b
	return b, nil
}

func (s *Store) Rollback(ctx context.Context, id uuid.UUID, amount uint64) (store.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balances[id]
	b.Balance += int64(amount)
	s.balances[id] = b
	return b, nil
}

// --- RateLimitStore ---

func bucketKey(id uuid.UUID, dim store.RateLimitDimension) string {
	return id.String() + "/" + string(dim)
}

func (s *Store) Consume(ctx context.Context, id uuid.UUID, dim store.RateLimitDimension, amount, limit uint64, period time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey(id, dim)
	now := monotonicNow()
	b, ok := s.buckets[key]
	if !ok || now.After(b.expiresAt) {
		b = &bucket{total: 0, expiresAt: now.Add(period)}
		s.buckets[key] = b
	}
	newTotal := b.total + amount
	if limit > 0 && newTotal > limit {
		return store.ErrRateLimited
	}
	b.total = newTotal
	return nil
}

func (s *Store) Refund(ctx context.Context, id uuid.UUID, dim store.RateLimitDimension, amount uint64, period time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bucketKey(id, dim)
	b, ok := s.buckets[key]
	if !ok || monotonicNow().After(b.expiresAt) {
		return nil
	}
	if amount >= b.total {
		b.total = 0
	} else {
		b.total -= amount
	}
	return nil
}

// monotonicNow exists only to make the bucket-expiry code read like
// the real clock call site; tests that need to control time construct
// a Store and drive Consume/Refund directly within a period window.
func monotonicNow() time.Time { return time.Now() }

// --- RouteStore ---

func (s *Store) PutStaticRoute(ctx context.Context, prefix string, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staticRoutes[prefix] = accountID
	return nil
}

func (s *Store) DeleteStaticRoute(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.staticRoutes, prefix)
	return nil
}

func (s *Store) ListStaticRoutes(ctx context.Context) (map[string]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]uuid.UUID, len(s.staticRoutes))
	for k, v := range s.staticRoutes {
		out[k] = v
	}
	return out, nil
}

func (s *Store) SetDefaultRoute(ctx context.Context, accountID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultRoute = accountID
	s.hasDefault = true
	return nil
}

func (s *Store) GetDefaultRoute(ctx context.Context) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaultRoute, s.hasDefault, nil
}

// --- Idempotency / uncredited ---

func (s *Store) Get(ctx context.Context, key string) (store.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.idempotency[key]
	return rec, ok, nil
}

func (s *Store) Put(ctx context.Context, key string, rec store.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idempotency[key] = rec
	return nil
}

func (s *Store) GetUncredited(ctx context.Context, id uuid.UUID) (uint64, uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.uncredited[id]
	if !ok {
		return 0, 0, nil
	}
	return v[0], uint8(v[1]), nil
}

func (s *Store) SetUncredited(ctx context.Context, id uuid.UUID, amount uint64, scale uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uncredited[id] = [2]uint64{amount, uint64(scale)}
	return nil
}

var _ store.Store = (*Store)(nil)
