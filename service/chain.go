// Package service defines the two capabilities every layer of the
// forwarding pipeline exposes: each service wraps exactly one inner
// service, chains are built once at node start, outside-in, and are
// otherwise stateless — state lives in the store, in the CCP manager,
// or in a per-connection transport handle.
//
// Composition is dynamic dispatch — an interface wrapping an inner
// interface — rather than onion/sphinx layering, since ILP forwarding
// is a flat call chain, not an encrypted path.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/ilpwire"
)

// Result is what every service in the chain returns: exactly one of
// Fulfill or Reject, never both.
type Result struct {
	Fulfill *ilpwire.Fulfill
	Reject  *ilpwire.Reject
}

// FulfillResult wraps a Fulfill into a Result.
func FulfillResult(f *ilpwire.Fulfill) Result { return Result{Fulfill: f} }

// RejectResult wraps a Reject into a Result.
func RejectResult(r *ilpwire.Reject) Result { return Result{Reject: r} }

// IsFulfill reports whether this Result is a Fulfill.
func (r Result) IsFulfill() bool { return r.Fulfill != nil }

// IncomingRequest is the input to an IncomingService: the account the
// Prepare arrived from, plus the Prepare itself.
type IncomingRequest struct {
	From    uuid.UUID
	Prepare *ilpwire.Prepare
}

// OutgoingRequest is the input to an OutgoingService: the originating
// account, the chosen next-hop account, the
// (possibly already rate/scale-adjusted) Prepare to forward, and the
// amount the packet carried when it entered the outgoing chain
// (needed by the Balance service to reserve against the *original*
// amount while the ExchangeRate service has already mutated
// Prepare.Amount to the outgoing-asset amount).
type OutgoingRequest struct {
	From           uuid.UUID
	To             uuid.UUID
	Prepare        *ilpwire.Prepare
	OriginalAmount uint64
}

// IncomingService handles a Prepare received from an account.
type IncomingService interface {
	HandleIncoming(ctx context.Context, req IncomingRequest) Result
}

// OutgoingService forwards a Prepare to a next-hop account.
type OutgoingService interface {
	HandleOutgoing(ctx context.Context, req OutgoingRequest) Result
}

// IncomingFunc adapts a function to IncomingService.
type IncomingFunc func(ctx context.Context, req IncomingRequest) Result

func (f IncomingFunc) HandleIncoming(ctx context.Context, req IncomingRequest) Result {
	return f(ctx, req)
}

// OutgoingFunc adapts a function to OutgoingService.
type OutgoingFunc func(ctx context.Context, req OutgoingRequest) Result

func (f OutgoingFunc) HandleOutgoing(ctx context.Context, req OutgoingRequest) Result {
	return f(ctx, req)
}

// UnreachableOutgoing is an outgoing terminal that answers every
// request with an unreachable Reject. The connector does not mount it;
// its outgoing terminal is httptransport/btp/stream, see connector
// wiring.
var UnreachableOutgoing = OutgoingFunc(func(ctx context.Context, req OutgoingRequest) Result {
	return RejectResult(ilpwire.NewReject(ilpwire.CodeUnreachable, "", "no outgoing route"))
})

// WithDeadline runs fn with a context bound by the Prepare's
// ExpiresAt, used by the outgoing Validator to implement cancellation
// as a race between completion and a timer.
func WithDeadline(ctx context.Context, expiresAt time.Time, fn func(ctx context.Context) Result) Result {
	dctx, cancel := context.WithDeadline(ctx, expiresAt)
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		done <- fn(dctx)
	}()

	select {
	case res := <-done:
		return res
	case <-dctx.Done():
		return RejectResult(ilpwire.NewReject(ilpwire.CodeTransferTimedOut, "", "transfer timed out"))
	}
}
