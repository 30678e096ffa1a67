package middleware

import (
	"context"
	"time"

	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// DefaultExpiryMargin is the safety margin added to twice the next
// hop's RTT to form the forwarding allowance.
const DefaultExpiryMargin = 1000 * time.Millisecond

// ExpiryShortener reduces the forwarded Prepare's expiry so it never
// exceeds the amount of round-trip budget remaining to the next hop.
type ExpiryShortener struct {
	Inner      service.OutgoingService
	OurAddress ilpwire.Address
	Margin     time.Duration
	Now        func() time.Time

	// NextHopRoundTripTime returns the next hop's configured RTT in
	// milliseconds.
	NextHopRoundTripTime func(req service.OutgoingRequest) uint64
}

func (e *ExpiryShortener) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *ExpiryShortener) margin() time.Duration {
	if e.Margin != 0 {
		return e.Margin
	}
	return DefaultExpiryMargin
}

func (e *ExpiryShortener) HandleOutgoing(ctx context.Context, req service.OutgoingRequest) service.Result {
	rtt := e.NextHopRoundTripTime(req)
	allowance := 2*time.Duration(rtt)*time.Millisecond + e.margin()
	now := e.now()

	shortened := req.Prepare.ExpiresAt
	if candidate := now.Add(allowance); candidate.Before(shortened) {
		shortened = candidate
	}

	if !shortened.After(now) {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInsufficientTimeout, e.OurAddress, "insufficient timeout"))
	}

	forwarded := *req.Prepare
	forwarded.ExpiresAt = shortened
	next := req
	next.Prepare = &forwarded
	return e.Inner.HandleOutgoing(ctx, next)
}
