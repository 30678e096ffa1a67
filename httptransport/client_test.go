package httptransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

func newTestPrepare() *ilpwire.Prepare {
	return &ilpwire.Prepare{
		Amount:             100,
		Destination:        ilpwire.Address("test.bob"),
		ExecutionCondition: [32]byte{1, 2, 3},
	}
}

func TestClientRejectsUnknownEndpoint(t *testing.T) {
	c := &Client{OurAddress: ilpwire.Address("test.connector"), EndpointOf: func(uuid.UUID) (AccountEndpoint, bool) { return AccountEndpoint{}, false }}
	res := c.HandleOutgoing(context.Background(), service.OutgoingRequest{To: uuid.New(), Prepare: newTestPrepare()})
	require.False(t, res.IsFulfill())
	require.Equal(t, ilpwire.CodePeerUnreachable, res.Reject.Code)
}

func TestClientForwardsBearerTokenAndDecodesFulfill(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		resp, err := ilpwire.EncodeToBytes(&ilpwire.Fulfill{Data: []byte("ack")})
		require.NoError(t, err)
		w.Write(resp)
	}))
	defer srv.Close()

	accountID := uuid.New()
	c := &Client{
		OurAddress: ilpwire.Address("test.connector"),
		EndpointOf: func(id uuid.UUID) (AccountEndpoint, bool) {
			return AccountEndpoint{URL: srv.URL, Token: "tok123"}, true
		},
	}

	res := c.HandleOutgoing(context.Background(), service.OutgoingRequest{To: accountID, Prepare: newTestPrepare()})
	require.True(t, res.IsFulfill())
	require.Equal(t, []byte("ack"), res.Fulfill.Data)
	require.Equal(t, "Bearer tok123", gotAuth)
}

func TestClientMapsNon2xxToPeerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := &Client{
		OurAddress: ilpwire.Address("test.connector"),
		EndpointOf: func(uuid.UUID) (AccountEndpoint, bool) { return AccountEndpoint{URL: srv.URL}, true },
	}

	res := c.HandleOutgoing(context.Background(), service.OutgoingRequest{To: uuid.New(), Prepare: newTestPrepare()})
	require.False(t, res.IsFulfill())
	require.Equal(t, ilpwire.CodePeerUnreachable, res.Reject.Code)
}

func TestClientMapsRejectResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := ilpwire.EncodeToBytes(ilpwire.NewReject(ilpwire.CodeUnreachable, "", "no route"))
		require.NoError(t, err)
		w.Write(resp)
	}))
	defer srv.Close()

	c := &Client{
		OurAddress: ilpwire.Address("test.connector"),
		EndpointOf: func(uuid.UUID) (AccountEndpoint, bool) { return AccountEndpoint{URL: srv.URL}, true },
	}

	res := c.HandleOutgoing(context.Background(), service.OutgoingRequest{To: uuid.New(), Prepare: newTestPrepare()})
	require.False(t, res.IsFulfill())
	require.Equal(t, ilpwire.CodeUnreachable, res.Reject.Code)
}

func TestClientMapsMalformedResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not an ilp packet"))
	}))
	defer srv.Close()

	c := &Client{
		OurAddress: ilpwire.Address("test.connector"),
		EndpointOf: func(uuid.UUID) (AccountEndpoint, bool) { return AccountEndpoint{URL: srv.URL}, true },
	}

	res := c.HandleOutgoing(context.Background(), service.OutgoingRequest{To: uuid.New(), Prepare: newTestPrepare()})
	require.False(t, res.IsFulfill())
	require.Equal(t, ilpwire.CodePeerUnreachable, res.Reject.Code)
}
