// Package middleware implements the small forwarding-path services
// that make up a connector's incoming and outgoing chains: one file
// per service, each a thin service.IncomingService/OutgoingService
// wrapper around an inner service, composed link by link.
package middleware

import (
	"context"
	"time"

	"github.com/decred/slog"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// log is the package's subsystem logger, disabled until UseLogger is
// called by whatever wires this package up at startup.
var log = slog.Disabled

// UseLogger sets the package-level logger.
func UseLogger(l slog.Logger) {
	log = l
}

// IncomingValidator rejects expired Prepares before they enter the
// rest of the incoming stack.
type IncomingValidator struct {
	Inner service.IncomingService
	Now   func() time.Time
}

func (v *IncomingValidator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *IncomingValidator) HandleIncoming(ctx context.Context, req service.IncomingRequest) service.Result {
	if req.Prepare.ExpiresAt.Before(v.now()) {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeTransferTimedOut, "", "prepare has already expired"))
	}
	return v.Inner.HandleIncoming(ctx, req)
}

// OutgoingValidator enforces expiry and fulfillment integrity on the
// way out: it rejects a Prepare that has already expired, bounds the
// inner call to the Prepare's own deadline, and rejects any Fulfill
// whose fulfillment does not satisfy the execution condition.
type OutgoingValidator struct {
	Inner      service.OutgoingService
	Now        func() time.Time
	OurAddress ilpwire.Address
}

func (v *OutgoingValidator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *OutgoingValidator) HandleOutgoing(ctx context.Context, req service.OutgoingRequest) service.Result {
	now := v.now()
	if !req.Prepare.ExpiresAt.After(now) {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeTransferTimedOut, v.OurAddress, "prepare has already expired"))
	}

	res := service.WithDeadline(ctx, req.Prepare.ExpiresAt, func(dctx context.Context) service.Result {
		return v.Inner.HandleOutgoing(dctx, req)
	})

	if res.IsFulfill() {
		if !res.Fulfill.Matches(req.Prepare.ExecutionCondition) {
			log.Warnf("fulfillment did not match condition for destination %s", req.Prepare.Destination)
			return service.RejectResult(ilpwire.NewReject(
				ilpwire.CodeFulfillmentMismatch, v.OurAddress,
				"Fulfillment did not match condition",
			))
		}
	}
	return res
}
