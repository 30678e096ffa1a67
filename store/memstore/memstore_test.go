package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/interledger/go-ilp-connector/account"
	"github.com/interledger/go-ilp-connector/secret"
	"github.com/interledger/go-ilp-connector/store"
)

func TestAccountCRUDAndIndexes(t *testing.T) {
	ctx := context.Background()
	s := New()

	a := &account.Account{
		ID:       uuid.New(),
		Username: "alice",
	}
	a.IncomingHTTPToken = secret.New("http-token")
	a.IncomingBTPToken = secret.New("btp-token")

	require.NoError(t, s.PutAccount(ctx, a))

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.Username, got.Username)

	byUser, err := s.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, a.ID, byUser.ID)

	byHTTP, err := s.GetAccountByIncomingHTTPToken(ctx, "http-token")
	require.NoError(t, err)
	require.Equal(t, a.ID, byHTTP.ID)

	byBTP, err := s.GetAccountByIncomingBTPToken(ctx, "btp-token")
	require.NoError(t, err)
	require.Equal(t, a.ID, byBTP.ID)

	list, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteAccount(ctx, a.ID))
	_, err = s.GetAccount(ctx, a.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetAccountByUsername(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestBalanceReserveCreditRollback(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := uuid.New()

	bal, err := s.Reserve(ctx, id, 100, -500)
	require.NoError(t, err)
	require.Equal(t, int64(-100), bal.Balance)

	_, err = s.Reserve(ctx, id, 1000, -500)
	require.ErrorIs(t, err, store.ErrInsufficientBalance)

	got, err := s.GetBalance(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(-100), got.Balance)

	bal, err = s.Rollback(ctx, id, 100)
	require.NoError(t, err)
	require.Equal(t, int64(0), bal.Balance)

	bal, err = s.Credit(ctx, id, 50)
	require.NoError(t, err)
	require.Equal(t, int64(50), bal.Balance)
}

func TestRateLimitConsumeAndRefund(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := uuid.New()

	require.NoError(t, s.Consume(ctx, id, store.DimensionPackets, 1, 3, time.Minute))
	require.NoError(t, s.Consume(ctx, id, store.DimensionPackets, 1, 3, time.Minute))
	require.NoError(t, s.Consume(ctx, id, store.DimensionPackets, 1, 3, time.Minute))

	err := s.Consume(ctx, id, store.DimensionPackets, 1, 3, time.Minute)
	require.ErrorIs(t, err, store.ErrRateLimited)

	require.NoError(t, s.Refund(ctx, id, store.DimensionPackets, 2, time.Minute))
	require.NoError(t, s.Consume(ctx, id, store.DimensionPackets, 2, 3, time.Minute))
}

func TestRateLimitRefundFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := uuid.New()

	require.NoError(t, s.Consume(ctx, id, store.DimensionAmount, 1, 100, time.Minute))
	require.NoError(t, s.Refund(ctx, id, store.DimensionAmount, 100, time.Minute))
	require.NoError(t, s.Consume(ctx, id, store.DimensionAmount, 100, 100, time.Minute))
}

func TestRouteStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	acctA := uuid.New()
	acctB := uuid.New()

	require.NoError(t, s.PutStaticRoute(ctx, "test.a", acctA))
	require.NoError(t, s.PutStaticRoute(ctx, "test.b", acctB))

	routes, err := s.ListStaticRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 2)

	require.NoError(t, s.DeleteStaticRoute(ctx, "test.a"))
	routes, err = s.ListStaticRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 1)

	_, ok, err := s.GetDefaultRoute(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetDefaultRoute(ctx, acctB))
	def, ok, err := s.GetDefaultRoute(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, acctB, def)
}

func TestIdempotencyAndUncredited(t *testing.T) {
	ctx := context.Background()
	s := New()
	id := uuid.New()

	_, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok)

	rec := store.IdempotencyRecord{StatusCode: 200, BodyHash: "h", Response: []byte("ok")}
	require.NoError(t, s.Put(ctx, "k1", rec))

	got, ok, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)

	amount, scale, err := s.GetUncredited(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(0), amount)
	require.Equal(t, uint8(0), scale)

	require.NoError(t, s.SetUncredited(ctx, id, 42, 9))
	amount, scale, err = s.GetUncredited(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(42), amount)
	require.Equal(t, uint8(9), scale)
}
