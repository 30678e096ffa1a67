package btp

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// log is the package's subsystem logger, wired by the connector.
var log = slog.Disabled

// UseLogger sets the package-level logger.
func UseLogger(l slog.Logger) {
	log = l
}

// PingInterval is the BTP keepalive cadence.
const PingInterval = 30 * time.Second

type pendingCall struct {
	done chan callResult
}

type callResult struct {
	packet *Packet
	err    error
}

// conn tracks one peer's live WebSocket connection.
type conn struct {
	accountID uuid.UUID
	ws        *websocket.Conn
	writeMu   sync.Mutex

	nextRequestID uint32

	pendingMu sync.Mutex
	pending   map[uint32]*pendingCall
}

func (c *conn) allocateRequestID() uint32 {
	return atomic.AddUint32(&c.nextRequestID, 1)
}

func (c *conn) writePacket(p *Packet) error {
	raw, err := p.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, raw)
}

// IncomingEnvelope is a Prepare that arrived over a BTP connection,
// buffered until an incoming handler is attached.
type IncomingEnvelope struct {
	From      uuid.UUID
	requestID uint32
	conn      *conn
	Prepare   *ilpwire.Prepare
}

// Service is the BTP transport: it owns the map of live connections
// and the Incoming channel that received Prepares are drained from.
// Outgoing packets reach a peer's open connection through
// OutgoingDispatcher, which wraps a Service.
type Service struct {
	connsMu sync.RWMutex
	conns   map[uuid.UUID]*conn

	// Incoming buffers (from_account, request_id, Prepare) until a
	// consumer reads from it.
	Incoming chan IncomingEnvelope
}

// NewService returns a Service with an incoming buffer of the given
// capacity.
func NewService(incomingBuffer int) *Service {
	return &Service{
		conns:    make(map[uuid.UUID]*conn),
		Incoming: make(chan IncomingEnvelope, incomingBuffer),
	}
}

// Register associates an authenticated WebSocket connection with an
// account and starts its read/ping loops. It blocks until the
// connection closes.
func (s *Service) Register(ctx context.Context, accountID uuid.UUID, ws *websocket.Conn) {
	c := &conn{accountID: accountID, ws: ws, pending: make(map[uint32]*pendingCall)}

	s.connsMu.Lock()
	s.conns[accountID] = c
	s.connsMu.Unlock()

	defer func() {
		s.connsMu.Lock()
		if s.conns[accountID] == c {
			delete(s.conns, accountID)
		}
		s.connsMu.Unlock()
		ws.Close()
	}()

	ws.SetPongHandler(func(string) error { return nil })

	go s.pingLoop(ctx, c)
	s.readLoop(ctx, c)
}

func (s *Service) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				log.Warnf("btp: ping failed for account %s: %v", c.accountID, err)
				return
			}
		}
	}
}

func (s *Service) readLoop(ctx context.Context, c *conn) {
	for {
		msgType, raw, err := c.ws.ReadMessage()
		if err != nil {
			log.Debugf("btp: connection closed for account %s: %v", c.accountID, err)
			s.failPending(c, err)
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		pkt, err := DecodePacket(raw)
		if err != nil {
			log.Warnf("btp: dropping malformed packet from account %s: %v", c.accountID, err)
			continue
		}

		switch pkt.Type {
		case TypeResponse, TypeError:
			s.completePending(c, pkt)

		case TypeMessage:
			ilpData, ok := pkt.IlpData()
			if !ok {
				continue
			}
			parsed, err := ilpwire.ReadPacket(bytes.NewReader(ilpData))
			if err != nil {
				continue
			}
			prepare, ok := parsed.(*ilpwire.Prepare)
			if !ok {
				continue
			}
			select {
			case s.Incoming <- IncomingEnvelope{From: c.accountID, requestID: pkt.RequestID, conn: c, Prepare: prepare}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Service) completePending(c *conn, pkt *Packet) {
	c.pendingMu.Lock()
	call, ok := c.pending[pkt.RequestID]
	if ok {
		delete(c.pending, pkt.RequestID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	call.done <- callResult{packet: pkt}
}

func (s *Service) failPending(c *conn, err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, call := range c.pending {
		call.done <- callResult{err: err}
		delete(c.pending, id)
	}
}

// Respond answers an IncomingEnvelope with the result of processing
// its Prepare through the incoming chain.
func (s *Service) Respond(env IncomingEnvelope, res service.Result) error {
	var ilpBytes []byte
	var err error
	if res.IsFulfill() {
		ilpBytes, err = ilpwire.EncodeToBytes(res.Fulfill)
	} else {
		ilpBytes, err = ilpwire.EncodeToBytes(res.Reject)
	}
	if err != nil {
		return err
	}
	return env.conn.writePacket(NewIlpResponse(env.requestID, ilpBytes))
}

// OutgoingDispatcher sends a Prepare over the peer's open BTP
// connection, if any, and waits for the matching BtpResponse/BtpError.
// If the account has no open connection, it falls through to Fallback
// so another transport (HTTP) can still be tried.
type OutgoingDispatcher struct {
	Service    *Service
	OurAddress ilpwire.Address
	Fallback   service.OutgoingService
	Timeout    time.Duration
}

func (o *OutgoingDispatcher) timeout() time.Duration {
	if o.Timeout != 0 {
		return o.Timeout
	}
	return 30 * time.Second
}

func (o *OutgoingDispatcher) HandleOutgoing(ctx context.Context, req service.OutgoingRequest) service.Result {
	o.Service.connsMu.RLock()
	c, ok := o.Service.conns[req.To]
	o.Service.connsMu.RUnlock()
	if !ok {
		return o.Fallback.HandleOutgoing(ctx, req)
	}

	ilpBytes, err := ilpwire.EncodeToBytes(req.Prepare)
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInternalError, o.OurAddress, "failed to encode prepare"))
	}

	reqID := c.allocateRequestID()
	call := &pendingCall{done: make(chan callResult, 1)}

	c.pendingMu.Lock()
	c.pending[reqID] = call
	c.pendingMu.Unlock()

	if err := c.writePacket(NewIlpMessage(reqID, ilpBytes)); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodePeerUnreachable, o.OurAddress, "btp send failed"))
	}

	select {
	case res := <-call.done:
		if res.err != nil {
			return service.RejectResult(ilpwire.NewReject(ilpwire.CodePeerUnreachable, o.OurAddress, "btp connection closed"))
		}
		return decodeIlpResult(o.OurAddress, res.packet)
	case <-ctx.Done():
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeTransferTimedOut, o.OurAddress, "btp request timed out"))
	case <-time.After(o.timeout()):
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeTransferTimedOut, o.OurAddress, "btp request timed out"))
	}
}

func decodeIlpResult(ourAddress ilpwire.Address, pkt *Packet) service.Result {
	data, ok := pkt.IlpData()
	if !ok {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInternalError, ourAddress, "btp response missing ilp data"))
	}
	parsed, err := ilpwire.ReadPacket(bytes.NewReader(data))
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInternalError, ourAddress, "invalid ilp packet in btp response"))
	}
	switch v := parsed.(type) {
	case *ilpwire.Fulfill:
		return service.FulfillResult(v)
	case *ilpwire.Reject:
		return service.RejectResult(v)
	default:
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInternalError, ourAddress, fmt.Sprintf("unexpected btp response packet %T", v)))
	}
}
