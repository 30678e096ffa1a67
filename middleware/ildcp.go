package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/ildcp"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// SenderInfo is the subset of the sending account ILDCP needs to
// synthesise a response.
type SenderInfo struct {
	Username   string
	AssetScale uint8
	AssetCode  string
}

// ILDCP answers "peer.config" requests with the requesting account's
// freshly-assigned ILP address, without forwarding further down the
// incoming stack.
type ILDCP struct {
	Inner      service.IncomingService
	OurAddress ilpwire.Address

	SenderInfoOf func(accountID uuid.UUID) (SenderInfo, bool)
}

func (i *ILDCP) HandleIncoming(ctx context.Context, req service.IncomingRequest) service.Result {
	if req.Prepare.Destination != ildcp.Destination {
		return i.Inner.HandleIncoming(ctx, req)
	}

	info, ok := i.SenderInfoOf(req.From)
	if !ok {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeBadRequest, i.OurAddress, "unknown account"))
	}

	resp := ildcp.Response{
		ClientAddress: i.OurAddress.WithSegment(info.Username),
		AssetScale:    info.AssetScale,
		AssetCode:     info.AssetCode,
	}

	return service.FulfillResult(&ilpwire.Fulfill{Data: resp.Encode()})
}
