package ccp

import (
	"context"

	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// RouteManagerService is the incoming-stack link that intercepts CCP
// packets and routes everything else to Inner. It sits just inside
// the router, so a route update or control request never reaches the
// forwarding table lookup.
type RouteManagerService struct {
	Inner   service.IncomingService
	Manager *Manager

	AccountByID func(accountID uuid.UUID) (AccountInfo, bool)
}

func (s *RouteManagerService) HandleIncoming(ctx context.Context, req service.IncomingRequest) service.Result {
	switch req.Prepare.Destination {
	case ControlDestination:
		return s.handleControl(req)
	case UpdateDestination:
		return s.handleUpdate(req)
	default:
		return s.Inner.HandleIncoming(ctx, req)
	}
}

func (s *RouteManagerService) handleControl(req service.IncomingRequest) service.Result {
	if req.Prepare.ExecutionCondition != Condition {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInvalidPacket, s.Manager.OurAddress, "unexpected CCP condition"))
	}
	parsed, err := DecodeRouteControlRequest(req.Prepare.Data)
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInvalidPacket, s.Manager.OurAddress, "malformed RouteControlRequest"))
	}
	s.Manager.HandleControl(req.From, parsed)
	return service.FulfillResult(&ilpwire.Fulfill{Fulfillment: Fulfillment})
}

func (s *RouteManagerService) handleUpdate(req service.IncomingRequest) service.Result {
	if req.Prepare.ExecutionCondition != Condition {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInvalidPacket, s.Manager.OurAddress, "unexpected CCP condition"))
	}

	acctInfo, ok := s.AccountByID(req.From)
	if !ok {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeBadRequest, s.Manager.OurAddress, "unknown account"))
	}

	parsed, err := DecodeRouteUpdateRequest(req.Prepare.Data)
	if err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInvalidPacket, s.Manager.OurAddress, "malformed RouteUpdateRequest"))
	}

	if err := s.Manager.HandleUpdate(acctInfo, parsed); err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeBadRequest, s.Manager.OurAddress, "route update rejected"))
	}

	return service.FulfillResult(&ilpwire.Fulfill{Fulfillment: Fulfillment})
}
