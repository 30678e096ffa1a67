package middleware

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

func TestMaxPacketAmountRejectsOverLimit(t *testing.T) {
	m := &MaxPacketAmount{
		Inner:             fixedIncoming{res: service.FulfillResult(&ilpwire.Fulfill{})},
		MaxPacketAmountOf: func(uuid.UUID) (uint64, bool) { return 100, true },
	}

	req := service.IncomingRequest{Prepare: &ilpwire.Prepare{Amount: 101}}
	res := m.HandleIncoming(context.Background(), req)

	require.False(t, res.IsFulfill())
	require.Equal(t, ilpwire.CodeAmountTooLarge, res.Reject.Code)

	data, ok := ilpwire.DecodeAmountTooLargeData(res.Reject.Data)
	require.True(t, ok)
	require.Equal(t, uint64(101), data.ReceivedAmount)
	require.Equal(t, uint64(100), data.MaximumAmount)
}

func TestMaxPacketAmountPassesWithinLimit(t *testing.T) {
	m := &MaxPacketAmount{
		Inner:             fixedIncoming{res: service.FulfillResult(&ilpwire.Fulfill{})},
		MaxPacketAmountOf: func(uuid.UUID) (uint64, bool) { return 100, true },
	}

	req := service.IncomingRequest{Prepare: &ilpwire.Prepare{Amount: 100}}
	res := m.HandleIncoming(context.Background(), req)
	require.True(t, res.IsFulfill())
}

func TestMaxPacketAmountNoLimitConfigured(t *testing.T) {
	m := &MaxPacketAmount{
		Inner:             fixedIncoming{res: service.FulfillResult(&ilpwire.Fulfill{})},
		MaxPacketAmountOf: func(uuid.UUID) (uint64, bool) { return 0, false },
	}

	req := service.IncomingRequest{Prepare: &ilpwire.Prepare{Amount: 1 << 40}}
	res := m.HandleIncoming(context.Background(), req)
	require.True(t, res.IsFulfill())
}
