package stream

import (
	"context"
	"sync"

	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// connState is the per-tag, per-stream in-memory accounting STREAM
// needs. This state is deliberately volatile; only balances are
// persisted.
type connState struct {
	mu            sync.Mutex
	totalReceived map[uint64]uint64 // stream id -> cumulative amount
}

// ReceiverService is the outgoing-stack terminal for locally
// addressed STREAM traffic: when the destination falls under
// OurAddress.<tag>, it decrypts, processes
// frames, and answers with a Fulfill instead of handing the packet to
// a transport client.
type ReceiverService struct {
	Inner      service.OutgoingService
	OurAddress ilpwire.Address
	RootSecret []byte

	mu    sync.Mutex
	conns map[string]*connState
}

func (s *ReceiverService) stateFor(tag string) *connState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		s.conns = make(map[string]*connState)
	}
	cs, ok := s.conns[tag]
	if !ok {
		cs = &connState{totalReceived: make(map[uint64]uint64)}
		s.conns[tag] = cs
	}
	return cs
}

// localTag reports whether destination terminates locally and
// returns the STREAM connection tag: every address segment past
// OurAddress. When OurAddress is the node's own address, an account's
// username segment is therefore part of the tag; it is not stripped.
func (s *ReceiverService) localTag(destination ilpwire.Address) (string, bool) {
	if !destination.HasPrefix(s.OurAddress) {
		return "", false
	}
	rest := destination.TrimPrefix(s.OurAddress)
	if rest == "" {
		return "", false
	}
	return rest, true
}

func (s *ReceiverService) HandleOutgoing(ctx context.Context, req service.OutgoingRequest) service.Result {
	tag, ok := s.localTag(req.Prepare.Destination)
	if !ok {
		return s.Inner.HandleOutgoing(ctx, req)
	}

	sharedSecret := DeriveSharedSecret(s.RootSecret, tag)

	plaintext, err := Decrypt(sharedSecret, req.Prepare.Data)
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeApplicationError, s.OurAddress, "failed to decrypt STREAM packet"))
	}

	pkt, err := DecodePacket(plaintext)
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeApplicationError, s.OurAddress, "invalid STREAM packet"))
	}

	if req.Prepare.Amount < pkt.PrepareAmount {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeApplicationError, s.OurAddress, "prepare amount below STREAM packet's stated amount"))
	}

	cs := s.stateFor(tag)
	responseFrames := s.processFrames(cs, pkt, req.Prepare.Amount)

	respPkt := &Packet{
		Sequence:      pkt.Sequence,
		PacketType:    PacketTypeFulfill,
		PrepareAmount: pkt.PrepareAmount,
		Frames:        responseFrames,
	}
	respPlain, err := respPkt.Encode()
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInternalError, s.OurAddress, "failed to encode STREAM response"))
	}

	respCipher, err := Encrypt(sharedSecret, respPlain)
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInternalError, s.OurAddress, "failed to encrypt STREAM response"))
	}

	fulfillment := DeriveFulfillment(sharedSecret, req.Prepare.Data)

	return service.FulfillResult(&ilpwire.Fulfill{
		Fulfillment: fulfillment,
		Data:        respCipher,
	})
}

// processFrames applies the incoming frames in order and returns the
// response frame set.
func (s *ReceiverService) processFrames(cs *connState, pkt *Packet, prepareAmount uint64) []Frame {
	var response []Frame
	streamIDsSeen := make(map[uint64]bool)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	for _, f := range pkt.Frames {
		switch frame := f.(type) {
		case *ConnectionNewAddress:
			// Acknowledged implicitly; no response frame.

		case *ConnectionAssetDetails:
			response = append(response, &ConnectionAssetDetails{
				SourceAssetCode:  frame.SourceAssetCode,
				SourceAssetScale: frame.SourceAssetScale,
			})

		case *StreamMoney:
			streamIDsSeen[frame.StreamID] = true
			cs.totalReceived[frame.StreamID] += prepareAmount

		case *StreamClose:
			delete(cs.totalReceived, frame.StreamID)

		case *ConnectionClose:
			for id := range cs.totalReceived {
				delete(cs.totalReceived, id)
			}

		case *StreamData:
			streamIDsSeen[frame.StreamID] = true
		}
	}

	for id := range streamIDsSeen {
		response = append(response, &StreamMaxMoney{
			StreamID:      id,
			ReceiveMax:    ^uint64(0),
			TotalReceived: cs.totalReceived[id],
		})
	}

	return response
}
