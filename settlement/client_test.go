package settlement

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/interledger/go-ilp-connector/store/memstore"
)

func TestSettlePostsMessageAndPersistsIdempotencyRecord(t *testing.T) {
	var gotKey string
	var callCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		gotKey = r.Header.Get("Idempotency-Key")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := memstore.New()
	c, err := NewClient(srv.Client(), func(uuid.UUID) (string, bool) { return srv.URL, true }, s, 16)
	require.NoError(t, err)

	accountID := uuid.New()
	require.NoError(t, c.settle(context.Background(), accountID, 500))
	require.NotEmpty(t, gotKey)
	require.Equal(t, 1, callCount)

	rec, ok, err := s.Get(context.Background(), gotKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, http.StatusCreated, rec.StatusCode)
}

func TestSettleUsesCachedRecordOnRetry(t *testing.T) {
	var callCount int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := memstore.New()
	c, err := NewClient(srv.Client(), func(uuid.UUID) (string, bool) { return srv.URL, true }, s, 16)
	require.NoError(t, err)

	accountID := uuid.New()
	require.NoError(t, c.settle(context.Background(), accountID, 500))
	require.NoError(t, c.settle(context.Background(), accountID, 500))
	require.Equal(t, 1, callCount, "an identical retry must be served from the idempotency cache, not reposted")
}

func TestSettleFailsOnNon2xxAndCachesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := memstore.New()
	c, err := NewClient(srv.Client(), func(uuid.UUID) (string, bool) { return srv.URL, true }, s, 16)
	require.NoError(t, err)

	accountID := uuid.New()
	err = c.settle(context.Background(), accountID, 100)
	require.Error(t, err)

	err = c.settle(context.Background(), accountID, 100)
	require.Error(t, err, "a cached non-2xx status must still surface as a failure on retry")
}

func TestSettleReturnsErrorForUnconfiguredEndpoint(t *testing.T) {
	s := memstore.New()
	c, err := NewClient(nil, func(uuid.UUID) (string, bool) { return "", false }, s, 16)
	require.NoError(t, err)

	err = c.settle(context.Background(), uuid.New(), 1)
	require.Error(t, err)
}

func TestIdempotencyKeyStableForSameInput(t *testing.T) {
	accountID := uuid.New()
	body := []byte(`{"accountId":"x","amount":1}`)
	require.Equal(t, idempotencyKey(accountID, body), idempotencyKey(accountID, body))
}

func TestIdempotencyKeyDiffersByAmount(t *testing.T) {
	accountID := uuid.New()
	require.NotEqual(t,
		idempotencyKey(accountID, []byte(`{"amount":1}`)),
		idempotencyKey(accountID, []byte(`{"amount":2}`)),
	)
}
