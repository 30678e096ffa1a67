package btp

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

type fixedAuthenticator struct {
	tokenToAccount map[string]uuid.UUID
}

func (a *fixedAuthenticator) AuthenticateBTPToken(ctx context.Context, token string) (uuid.UUID, bool) {
	id, ok := a.tokenToAccount[token]
	return id, ok
}

func startTestServer(t *testing.T, svc *Service, auth AccountAuthenticator) (wsURL string, cleanup func()) {
	t.Helper()
	btpServer := &Server{Service: svc, Auth: auth}
	httpServer := httptest.NewServer(btpServer)

	wsURL = "ws" + strings.TrimPrefix(httpServer.URL, "http")
	return wsURL, httpServer.Close
}

func TestDialAuthenticatesAndRegisters(t *testing.T) {
	accountID := uuid.New()
	serverSvc := NewService(4)
	clientSvc := NewService(4)
	auth := &fixedAuthenticator{tokenToAccount: map[string]uuid.UUID{"good-token": accountID}}

	url, cleanup := startTestServer(t, serverSvc, auth)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := Dial(ctx, clientSvc, accountID, url, "good-token")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		serverSvc.connsMu.RLock()
		defer serverSvc.connsMu.RUnlock()
		_, ok := serverSvc.conns[accountID]
		return ok
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		clientSvc.connsMu.RLock()
		defer clientSvc.connsMu.RUnlock()
		_, ok := clientSvc.conns[accountID]
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestDialRejectsBadToken(t *testing.T) {
	accountID := uuid.New()
	serverSvc := NewService(4)
	clientSvc := NewService(4)
	auth := &fixedAuthenticator{tokenToAccount: map[string]uuid.UUID{"good-token": accountID}}

	url, cleanup := startTestServer(t, serverSvc, auth)
	defer cleanup()

	err := Dial(context.Background(), clientSvc, accountID, url, "bad-token")
	require.Error(t, err)
}

func TestOutgoingDispatcherRoundTripsOverLiveConnection(t *testing.T) {
	serverAccountID := uuid.New()
	serverSideSvc := NewService(4)
	auth := &fixedAuthenticator{tokenToAccount: map[string]uuid.UUID{"tok": serverAccountID}}

	url, cleanup := startTestServer(t, serverSideSvc, auth)
	defer cleanup()

	clientSideSvc := NewService(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, Dial(ctx, clientSideSvc, serverAccountID, url, "tok"))

	// Drain the server side's incoming channel and respond with a Fulfill.
	go func() {
		env := <-serverSideSvc.Incoming
		_ = serverSideSvc.Respond(env, service.FulfillResult(&ilpwire.Fulfill{Data: []byte("ack")}))
	}()

	dispatcher := &OutgoingDispatcher{
		Service:    clientSideSvc,
		OurAddress: ilpwire.Address("test.client"),
		Fallback:   service.UnreachableOutgoing,
		Timeout:    2 * time.Second,
	}

	req := service.OutgoingRequest{
		To: serverAccountID,
		Prepare: &ilpwire.Prepare{
			Amount:             10,
			Destination:        ilpwire.Address("test.server"),
			ExpiresAt:          time.Now().Add(time.Minute),
			ExecutionCondition: [32]byte{1},
		},
	}

	res := dispatcher.HandleOutgoing(ctx, req)
	require.True(t, res.IsFulfill())
	require.Equal(t, []byte("ack"), res.Fulfill.Data)
}

func TestOutgoingDispatcherFallsBackWhenNoConnection(t *testing.T) {
	svc := NewService(1)
	var fallbackCalled bool
	fallback := service.OutgoingFunc(func(ctx context.Context, req service.OutgoingRequest) service.Result {
		fallbackCalled = true
		return service.FulfillResult(&ilpwire.Fulfill{})
	})

	dispatcher := &OutgoingDispatcher{Service: svc, OurAddress: ilpwire.Address("test.client"), Fallback: fallback}
	req := service.OutgoingRequest{To: uuid.New(), Prepare: &ilpwire.Prepare{}}
	res := dispatcher.HandleOutgoing(context.Background(), req)

	require.True(t, fallbackCalled)
	require.True(t, res.IsFulfill())
}

func TestDecodeIlpResultHandlesFulfillAndReject(t *testing.T) {
	fulfillBytes, err := ilpwire.EncodeToBytes(&ilpwire.Fulfill{Data: []byte("ok")})
	require.NoError(t, err)
	fulfillPkt := NewIlpResponse(1, fulfillBytes)
	res := decodeIlpResult(ilpwire.Address("test.connector"), fulfillPkt)
	require.True(t, res.IsFulfill())

	rejectBytes, err := ilpwire.EncodeToBytes(ilpwire.NewReject(ilpwire.CodeUnreachable, "", "no route"))
	require.NoError(t, err)
	rejectPkt := NewIlpResponse(1, rejectBytes)
	res = decodeIlpResult(ilpwire.Address("test.connector"), rejectPkt)
	require.False(t, res.IsFulfill())
	require.Equal(t, ilpwire.CodeUnreachable, res.Reject.Code)
}

func TestDecodeIlpResultRejectsMissingIlpData(t *testing.T) {
	pkt := &Packet{Type: TypeResponse, RequestID: 1}
	res := decodeIlpResult(ilpwire.Address("test.connector"), pkt)
	require.False(t, res.IsFulfill())
	require.Equal(t, ilpwire.CodeInternalError, res.Reject.Code)
}
