package router

import (
	"context"

	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// Router is the terminal of the incoming stack: it resolves the
// longest-matching prefix in the effective table and hands the
// Prepare to the outgoing stack. It never mutates the amount; that is
// ExchangeRate's job further down the outgoing chain.
type Router struct {
	Table      *AtomicTable
	Outgoing   service.OutgoingService
	OurAddress ilpwire.Address
}

func (r *Router) HandleIncoming(ctx context.Context, req service.IncomingRequest) service.Result {
	to, ok := r.Table.Load().Lookup(string(req.Prepare.Destination))
	if !ok {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeUnreachable, r.OurAddress, "no route found for destination"))
	}

	if to == req.From {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeUnreachable, r.OurAddress, "next hop is the sending account"))
	}

	out := service.OutgoingRequest{
		From:           req.From,
		To:             to,
		Prepare:        req.Prepare,
		OriginalAmount: req.Prepare.Amount,
	}
	return r.Outgoing.HandleOutgoing(ctx, out)
}
