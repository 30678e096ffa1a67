package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
	"github.com/interledger/go-ilp-connector/store"
)

// SettlementEnqueuer fires a settlement message at the account's
// settlement engine. It must not block the packet on the forwarding
// path: fire-and-forget, engine failure never rejects the packet.
type SettlementEnqueuer interface {
	EnqueueSettlement(accountID uuid.UUID, amount int64)
}

// BalanceThresholds carries the min_balance/settle_threshold/settle_to
// triple the Balance service needs per account, narrowed to what this
// file uses.
type BalanceThresholds struct {
	MinBalance     int64
	SettleThreshold int64
	SettleTo        int64
}

// Balance implements the reserve/invoke/credit-or-rollback cycle: the
// incoming amount is reserved against the sending account's balance
// before the packet is forwarded; on Fulfill the next-hop account is
// credited with the forwarded amount, and on Reject the reservation is
// rolled back. Each of these mutations is atomic on its own in the
// underlying store.BalanceStore implementation (memstore's mutex,
// boltstore's bbolt transaction).
type Balance struct {
	Inner      service.OutgoingService
	Store      store.BalanceStore
	OurAddress ilpwire.Address

	ThresholdsOf func(accountID uuid.UUID) BalanceThresholds
	Settlement   SettlementEnqueuer
}

func (b *Balance) HandleOutgoing(ctx context.Context, req service.OutgoingRequest) service.Result {
	fromLimits := b.ThresholdsOf(req.From)

	if _, err := b.Store.Reserve(ctx, req.From, req.OriginalAmount, fromLimits.MinBalance); err != nil {
		return service.RejectResult(ilpwire.NewReject(ilpwire.CodeInsufficientLiquidity, b.OurAddress, "insufficient balance"))
	}

	res := b.Inner.HandleOutgoing(ctx, req)

	if res.IsFulfill() {
		toBal, err := b.Store.Credit(ctx, req.To, req.Prepare.Amount)
		if err != nil {
			log.Errorf("failed to credit balance for %s: %v", req.To, err)
			return res
		}

		toLimits := b.ThresholdsOf(req.To)
		if toBal.EffectiveBalance() >= toLimits.SettleThreshold && b.Settlement != nil {
			settleAmount := toBal.EffectiveBalance() - toLimits.SettleTo
			if settleAmount > 0 {
				b.Settlement.EnqueueSettlement(req.To, settleAmount)
			}
		}
		return res
	}

	if _, err := b.Store.Rollback(ctx, req.From, req.OriginalAmount); err != nil {
		log.Errorf("failed to roll back balance for %s: %v", req.From, err)
	}
	return res
}
