package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

// MaxPacketAmount rejects Prepares whose amount exceeds the sending
// account's configured ceiling.
type MaxPacketAmount struct {
	Inner      service.IncomingService
	OurAddress ilpwire.Address

	// MaxPacketAmountOf looks up the sending account's configured
	// limit. Returning ok=false is treated as "no limit configured".
	MaxPacketAmountOf func(accountID uuid.UUID) (max uint64, ok bool)
}

func (m *MaxPacketAmount) HandleIncoming(ctx context.Context, req service.IncomingRequest) service.Result {
	max, ok := m.MaxPacketAmountOf(req.From)
	if ok && req.Prepare.Amount > max {
		data := ilpwire.AmountTooLargeData{ReceivedAmount: req.Prepare.Amount, MaximumAmount: max}.Encode()
		return service.RejectResult(ilpwire.NewRejectWithData(
			ilpwire.CodeAmountTooLarge, m.OurAddress, "packet amount exceeds maxPacketAmount", data,
		))
	}
	return m.Inner.HandleIncoming(ctx, req)
}
