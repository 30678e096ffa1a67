// Package store defines the persisted-state interfaces the forwarding
// pipeline depends on: accounts, balances, rate-limit buckets, routes,
// and settlement bookkeeping. It fixes the contract every backend must
// satisfy, plus two concrete implementations (memstore, boltstore) so
// the atomicity guarantees below are actually exercised and testable.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/account"
)

var (
	ErrNotFound            = errors.New("store: not found")
	ErrAlreadyExists       = errors.New("store: already exists")
	ErrInsufficientBalance = errors.New("store: balance would drop below min_balance")
	ErrRateLimited         = errors.New("store: rate limit bucket exhausted")
)

// AccountStore persists the account/username/token indexes a node
// needs to resolve an incoming connection to an account.
type AccountStore interface {
	PutAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*account.Account, error)
	GetAccountByIncomingHTTPToken(ctx context.Context, token string) (*account.Account, error)
	GetAccountByIncomingBTPToken(ctx context.Context, token string) (*account.Account, error)
	ListAccounts(ctx context.Context) ([]*account.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
}

// Balance splits an account's ledger balance from unsettled prepaid
// credit; EffectiveBalance = Balance + PrepaidAmount.
type Balance struct {
	Balance       int64
	PrepaidAmount int64
}

// EffectiveBalance is the account holder's effective balance.
func (b Balance) EffectiveBalance() int64 { return b.Balance + b.PrepaidAmount }

// BalanceStore implements balance mutation as one indivisible
// operation per account: read effective balance, check against
// min_balance, write the new value, with no interleaving reader ever
// observing a half-applied reserve.
type BalanceStore interface {
	// GetBalance returns the current split balance for id.
	GetBalance(ctx context.Context, id uuid.UUID) (Balance, error)

	// Reserve atomically computes effective-balance-amount and, if
	// that would be >= minBalance, commits the debit and returns the
	// new Balance. Otherwise it makes no change and returns
	// ErrInsufficientBalance.
	Reserve(ctx context.Context, id uuid.UUID, amount uint64, minBalance int64) (Balance, error)

	// Credit atomically adds amount to balance, on a Fulfill, and
	// returns the new Balance.
	Credit(ctx context.Context, id uuid.UUID, amount uint64) (Balance, error)

	// Rollback atomically adds amount back to balance, on a Reject,
	// reversing a prior Reserve.
	Rollback(ctx context.Context, id uuid.UUID, amount uint64) (Balance, error)
}

// RateLimitDimension distinguishes the two token-bucket dimensions a
// rate limit can be enforced on.
type RateLimitDimension string

const (
	DimensionPackets RateLimitDimension = "packets"
	DimensionAmount  RateLimitDimension = "amount"
)

// RateLimitStore implements per-account, per-dimension, per-bucket
// counters: an atomic increment with a TTL equal to the bucket period;
// refunds use a conditional decrement so the count never goes
// negative. Keyed so the limit is enforced across process replicas
// sharing the store.
type RateLimitStore interface {
	// Consume atomically adds amount to the running total in the
	// current bucket (creating it with a TTL of period if absent) and
	// returns the new total. If limit > 0 and the new total exceeds
	// limit, the increment is rolled back before returning
	// ErrRateLimited — the caller never observes a partially consumed
	// bucket on rejection.
	Consume(ctx context.Context, id uuid.UUID, dim RateLimitDimension, amount uint64, limit uint64, period time.Duration) error

	// Refund decrements the current bucket by amount, floored at
	// zero. It is a no-op past the bucket's TTL.
	Refund(ctx context.Context, id uuid.UUID, dim RateLimitDimension, amount uint64, period time.Duration) error
}

// RouteStore persists the two durable routing overlays: static routes
// and the configured default route. The CCP-learned overlay lives only
// in ccp.Manager's in-memory state, never here.
type RouteStore interface {
	PutStaticRoute(ctx context.Context, prefix string, accountID uuid.UUID) error
	DeleteStaticRoute(ctx context.Context, prefix string) error
	ListStaticRoutes(ctx context.Context) (map[string]uuid.UUID, error)

	SetDefaultRoute(ctx context.Context, accountID uuid.UUID) error
	GetDefaultRoute(ctx context.Context) (uuid.UUID, bool, error)
}

// IdempotencyRecord caches a prior settlement-engine response so a
// retried call with the same idempotency key gets the same answer
// instead of firing twice.
type IdempotencyRecord struct {
	StatusCode int
	BodyHash   string
	Response   []byte
}

// IdempotencyStore persists idempotency-key records used to dedupe
// settlement-engine calls.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, key string, rec IdempotencyRecord) error
}

// UncreditedStore persists, per account, the sub-unit settlement
// amount left over after scaling an incoming settlement notification
// into the account's asset scale.
type UncreditedStore interface {
	GetUncredited(ctx context.Context, id uuid.UUID) (amount uint64, scale uint8, err error)
	SetUncredited(ctx context.Context, id uuid.UUID, amount uint64, scale uint8) error
}

// Store is the aggregate every backend implements; individual
// services only depend on the narrow sub-interface they need.
type Store interface {
	AccountStore
	BalanceStore
	RateLimitStore
	RouteStore
	IdempotencyStore
	UncreditedStore

	Close() error
}
