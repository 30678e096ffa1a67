package btp

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// AccountAuthenticator maps an auth token carried on the first BTP
// message to an account id.
type AccountAuthenticator interface {
	AuthenticateBTPToken(ctx context.Context, token string) (uuid.UUID, bool)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades incoming HTTP connections to WebSocket and performs
// the BTP auth handshake before handing the connection to Service.
type Server struct {
	Service *Service
	Auth    AccountAuthenticator
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("btp: websocket upgrade failed: %v", err)
		return
	}

	accountID, err := s.authenticate(r.Context(), ws)
	if err != nil {
		ws.Close()
		return
	}

	s.Service.Register(r.Context(), accountID, ws)
}

func (s *Server) authenticate(ctx context.Context, ws *websocket.Conn) (uuid.UUID, error) {
	_, raw, err := ws.ReadMessage()
	if err != nil {
		return uuid.UUID{}, err
	}

	pkt, err := DecodePacket(raw)
	if err != nil {
		return uuid.UUID{}, ErrInvalidPacket
	}

	token, ok := pkt.AuthToken()
	if !ok {
		sendAuthFailure(ws, pkt.RequestID, "missing auth protocol data")
		return uuid.UUID{}, ErrInvalidPacket
	}

	accountID, ok := s.Auth.AuthenticateBTPToken(ctx, token)
	if !ok {
		sendAuthFailure(ws, pkt.RequestID, "invalid auth token")
		return uuid.UUID{}, ErrInvalidPacket
	}

	resp, err := NewEmptyResponse(pkt.RequestID).Encode()
	if err != nil {
		return uuid.UUID{}, err
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, resp); err != nil {
		return uuid.UUID{}, err
	}

	return accountID, nil
}

func sendAuthFailure(ws *websocket.Conn, requestID uint32, message string) {
	raw, err := NewError(requestID, message).Encode()
	if err != nil {
		return
	}
	_ = ws.WriteMessage(websocket.BinaryMessage, raw)
}

// Dial opens an outgoing BTP connection to url, authenticates with
// token, and registers it with svc under accountID.
func Dial(ctx context.Context, svc *Service, accountID uuid.UUID, url, token string) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}

	authPkt := NewAuthMessage(1, token)
	raw, err := authPkt.Encode()
	if err != nil {
		ws.Close()
		return err
	}
	if err := ws.WriteMessage(websocket.BinaryMessage, raw); err != nil {
		ws.Close()
		return err
	}

	_, respRaw, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return err
	}
	resp, err := DecodePacket(respRaw)
	if err != nil {
		ws.Close()
		return err
	}
	if resp.Type == TypeError {
		ws.Close()
		return ErrInvalidPacket
	}

	go svc.Register(ctx, accountID, ws)
	return nil
}
