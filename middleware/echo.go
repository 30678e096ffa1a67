package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// EchoMagic is the data prefix that marks a Prepare as an echo
// request.
var EchoMagic = []byte("ECHOECHOECHOECHO")

const (
	echoModePing EchoMode = 0
	echoModePong EchoMode = 1
)

// EchoMode distinguishes an echo request from its bounce-back.
type EchoMode byte

// EchoSender sends a freshly-originated Prepare to an address and
// waits for its terminal Result. The connector wires this to whatever entry point
// it uses for locally-originated packets.
type EchoSender interface {
	Send(ctx context.Context, destination ilpwire.Address, amount uint64, data []byte) service.Result
}

// Echo implements the connector's loopback diagnostic. A mode-0
// request is bounced back to the caller's stated source address as a
// mode-1 request; the eventual Fulfill is relayed to the original
// caller. A mode-1 request never recurses further — it is answered
// immediately.
type Echo struct {
	Inner      service.IncomingService
	OurAddress ilpwire.Address
	Sender     EchoSender

	// EchoExpiry bounds how long the bounced Prepare is allowed to
	// take; defaults to 30s if zero.
	EchoExpiry time.Duration
}

func (e *Echo) expiry() time.Duration {
	if e.EchoExpiry != 0 {
		return e.EchoExpiry
	}
	return 30 * time.Second
}

func (e *Echo) HandleIncoming(ctx context.Context, req service.IncomingRequest) service.Result {
	if req.Prepare.Destination != e.OurAddress || !bytes.HasPrefix(req.Prepare.Data, EchoMagic) {
		return e.Inner.HandleIncoming(ctx, req)
	}

	mode, sourceAddress, ok := decodeEchoData(req.Prepare.Data)
	if !ok {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeBadRequest, e.OurAddress, "malformed echo packet"))
	}

	switch mode {
	case echoModePong:
		return service.FulfillResult(&ilpwire.Fulfill{Fulfillment: deterministicFulfillment(req.Prepare.Data)})
	case echoModePing:
		bounceData := encodeEchoData(echoModePong, e.OurAddress)
		return e.Sender.Send(ctx, sourceAddress, req.Prepare.Amount, bounceData)
	default:
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeBadRequest, e.OurAddress, "unknown echo mode"))
	}
}

func decodeEchoData(data []byte) (EchoMode, ilpwire.Address, bool) {
	rest := data[len(EchoMagic):]
	if len(rest) < 1 {
		return 0, "", false
	}
	mode := EchoMode(rest[0])

	r := bytes.NewReader(rest[1:])
	addrBytes, err := ilpwire.ReadVarOctetString(r)
	if err != nil {
		return 0, "", false
	}
	addr, err := ilpwire.ParseAddress(string(addrBytes))
	if err != nil {
		return 0, "", false
	}
	return mode, addr, true
}

func encodeEchoData(mode EchoMode, address ilpwire.Address) []byte {
	var buf bytes.Buffer
	buf.Write(EchoMagic)
	buf.WriteByte(byte(mode))
	_ = ilpwire.WriteVarOctetString(&buf, []byte(address))
	return buf.Bytes()
}

// EchoCondition returns the execution condition a bounced echo Prepare
// must carry so that the original prober's own Echo middleware, on
// receiving the eventual pong back, derives a matching Fulfillment via
// deterministicFulfillment.
func EchoCondition(data []byte) [32]byte {
	f := deterministicFulfillment(data)
	return sha256.Sum256(f[:])
}

// deterministicFulfillment derives a fulfillment for echo responses
// from the request data so two independent echo exchanges never
// collide. Its SHA-256 is EchoCondition, so the Fulfill passes the
// outgoing validator's condition check on the bounced Prepare.
func deterministicFulfillment(data []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte("echo-fulfillment"))
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
	h.Write(lenBuf[:])
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
