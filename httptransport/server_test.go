package httptransport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/interledger/go-ilp-connector/account"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

type fixedAccountAuthenticator struct {
	username string
	token    string
	acct     *account.Account
}

func (a *fixedAccountAuthenticator) AuthenticateIncomingHTTP(ctx context.Context, username, bearerToken string) (*account.Account, bool) {
	if username == a.username && bearerToken == a.token {
		return a.acct, true
	}
	return nil, false
}

func TestServeILPAuthenticatesAndForwardsToHandler(t *testing.T) {
	acct := &account.Account{ID: uuid.New(), Username: "alice"}
	auth := &fixedAccountAuthenticator{username: "alice", token: "tok", acct: acct}

	var gotFrom uuid.UUID
	handler := service.IncomingFunc(func(ctx context.Context, req service.IncomingRequest) service.Result {
		gotFrom = req.From
		return service.FulfillResult(&ilpwire.Fulfill{Data: []byte("ack")})
	})

	srv := &Server{Auth: auth, Handler: handler}
	httpSrv := httptest.NewServer(srv.Router())
	defer httpSrv.Close()

	prepareBytes, err := ilpwire.EncodeToBytes(&ilpwire.Prepare{
		Amount:             1,
		Destination:        ilpwire.Address("test.alice"),
		ExecutionCondition: [32]byte{1},
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, httpSrv.URL+"/accounts/alice/ilp", bytes.NewReader(prepareBytes))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, acct.ID, gotFrom)

	respBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	parsed, err := ilpwire.ReadPacket(bytes.NewReader(respBytes))
	require.NoError(t, err)
	fulfill, ok := parsed.(*ilpwire.Fulfill)
	require.True(t, ok)
	require.Equal(t, []byte("ack"), fulfill.Data)
}

func TestServeILPRejectsUnauthenticatedRequest(t *testing.T) {
	auth := &fixedAccountAuthenticator{username: "alice", token: "tok"}
	srv := &Server{Auth: auth, Handler: service.IncomingFunc(func(ctx context.Context, req service.IncomingRequest) service.Result {
		t.Fatal("handler must not be reached for an unauthenticated request")
		return service.Result{}
	})}
	httpSrv := httptest.NewServer(srv.Router())
	defer httpSrv.Close()

	req, err := http.NewRequest(http.MethodPost, httpSrv.URL+"/accounts/alice/ilp", bytes.NewReader(nil))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer wrong-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeILPRejectsInvalidPacket(t *testing.T) {
	acct := &account.Account{ID: uuid.New(), Username: "alice"}
	auth := &fixedAccountAuthenticator{username: "alice", token: "tok", acct: acct}
	handler := service.IncomingFunc(func(ctx context.Context, req service.IncomingRequest) service.Result {
		t.Fatal("handler must not be reached for an invalid ILP packet")
		return service.Result{}
	})
	srv := &Server{Auth: auth, Handler: handler}
	httpSrv := httptest.NewServer(srv.Router())
	defer httpSrv.Close()

	req, err := http.NewRequest(http.MethodPost, httpSrv.URL+"/accounts/alice/ilp", bytes.NewReader([]byte("garbage")))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBearerTokenParsesHeader(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://example.test", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	require.Equal(t, "abc123", bearerToken(req))

	req2, _ := http.NewRequest(http.MethodPost, "http://example.test", nil)
	require.Equal(t, "", bearerToken(req2))
}
