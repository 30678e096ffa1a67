package httptransport

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/interledger/go-ilp-connector/account"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// AccountAuthenticator resolves the bearer token on an incoming
// request to the account it authorises.
type AccountAuthenticator interface {
	AuthenticateIncomingHTTP(ctx context.Context, username, bearerToken string) (*account.Account, bool)
}

// Server serves incoming ILP-over-HTTP Prepare requests and hands
// them to the incoming chain.
type Server struct {
	Auth    AccountAuthenticator
	Handler service.IncomingService
}

// Router builds the "/accounts/{username}/ilp" mux.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/accounts/{username}/ilp", s.serveILP).Methods(http.MethodPost)
	return r
}

func (s *Server) serveILP(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	token := bearerToken(r)
	acct, ok := s.Auth.AuthenticateIncomingHTTP(r.Context(), username, token)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	parsed, err := ilpwire.ReadPacket(bytes.NewReader(body))
	if err != nil {
		http.Error(w, "invalid ilp packet", http.StatusBadRequest)
		return
	}
	prepare, ok := parsed.(*ilpwire.Prepare)
	if !ok {
		http.Error(w, "expected a Prepare packet", http.StatusBadRequest)
		return
	}

	res := s.Handler.HandleIncoming(r.Context(), service.IncomingRequest{From: acct.ID, Prepare: prepare})

	var respBytes []byte
	if res.IsFulfill() {
		respBytes, err = ilpwire.EncodeToBytes(res.Fulfill)
	} else {
		respBytes, err = ilpwire.EncodeToBytes(res.Reject)
	}
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(respBytes)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
