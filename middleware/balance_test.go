package middleware

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
	"github.com/interledger/go-ilp-connector/store/memstore"
)

type recordingSettlement struct {
	accountID uuid.UUID
	amount    int64
	called    bool
}

func (r *recordingSettlement) EnqueueSettlement(accountID uuid.UUID, amount int64) {
	r.accountID = accountID
	r.amount = amount
	r.called = true
}

func TestBalanceReservesAndCreditsOnFulfill(t *testing.T) {
	s := memstore.New()
	from := uuid.New()
	to := uuid.New()

	b := &Balance{
		Inner:        fixedOutgoing{res: service.FulfillResult(&ilpwire.Fulfill{})},
		Store:        s,
		ThresholdsOf: func(uuid.UUID) BalanceThresholds { return BalanceThresholds{MinBalance: -1000} },
	}

	req := service.OutgoingRequest{
		From:           from,
		To:             to,
		Prepare:        &ilpwire.Prepare{Amount: 50},
		OriginalAmount: 50,
	}
	res := b.HandleOutgoing(context.Background(), req)
	require.True(t, res.IsFulfill())

	fromBal, err := s.GetBalance(context.Background(), from)
	require.NoError(t, err)
	require.Equal(t, int64(-50), fromBal.Balance)

	toBal, err := s.GetBalance(context.Background(), to)
	require.NoError(t, err)
	require.Equal(t, int64(50), toBal.Balance)
}

func TestBalanceRollsBackOnReject(t *testing.T) {
	s := memstore.New()
	from := uuid.New()
	to := uuid.New()

	b := &Balance{
		Inner:        fixedOutgoing{res: service.RejectResult(ilpwire.NewReject(ilpwire.CodeUnreachable, "", "no route"))},
		Store:        s,
		ThresholdsOf: func(uuid.UUID) BalanceThresholds { return BalanceThresholds{MinBalance: -1000} },
	}

	req := service.OutgoingRequest{From: from, To: to, Prepare: &ilpwire.Prepare{Amount: 50}, OriginalAmount: 50}
	res := b.HandleOutgoing(context.Background(), req)
	require.False(t, res.IsFulfill())

	fromBal, err := s.GetBalance(context.Background(), from)
	require.NoError(t, err)
	require.Equal(t, int64(0), fromBal.Balance, "a rejected forward must roll back the reservation")
}

func TestBalanceRejectsInsufficientLiquidity(t *testing.T) {
	s := memstore.New()
	from := uuid.New()
	to := uuid.New()

	b := &Balance{
		Inner:        fixedOutgoing{res: service.FulfillResult(&ilpwire.Fulfill{})},
		Store:        s,
		ThresholdsOf: func(uuid.UUID) BalanceThresholds { return BalanceThresholds{MinBalance: 0} },
	}

	req := service.OutgoingRequest{From: from, To: to, Prepare: &ilpwire.Prepare{Amount: 50}, OriginalAmount: 50}
	res := b.HandleOutgoing(context.Background(), req)
	require.False(t, res.IsFulfill())
	require.Equal(t, ilpwire.CodeInsufficientLiquidity, res.Reject.Code)
}

func TestBalanceEnqueuesSettlementAboveThreshold(t *testing.T) {
	s := memstore.New()
	from := uuid.New()
	to := uuid.New()
	settlement := &recordingSettlement{}

	b := &Balance{
		Inner: fixedOutgoing{res: service.FulfillResult(&ilpwire.Fulfill{})},
		Store: s,
		ThresholdsOf: func(id uuid.UUID) BalanceThresholds {
			if id == to {
				return BalanceThresholds{MinBalance: -1000, SettleThreshold: 40, SettleTo: 0}
			}
			return BalanceThresholds{MinBalance: -1000}
		},
		Settlement: settlement,
	}

	req := service.OutgoingRequest{From: from, To: to, Prepare: &ilpwire.Prepare{Amount: 50}, OriginalAmount: 50}
	res := b.HandleOutgoing(context.Background(), req)
	require.True(t, res.IsFulfill())

	require.True(t, settlement.called)
	require.Equal(t, to, settlement.accountID)
	require.Equal(t, int64(50), settlement.amount)
}

func TestBalanceSkipsSettlementBelowThreshold(t *testing.T) {
	s := memstore.New()
	from := uuid.New()
	to := uuid.New()
	settlement := &recordingSettlement{}

	b := &Balance{
		Inner: fixedOutgoing{res: service.FulfillResult(&ilpwire.Fulfill{})},
		Store: s,
		ThresholdsOf: func(id uuid.UUID) BalanceThresholds {
			return BalanceThresholds{MinBalance: -1000, SettleThreshold: 1000, SettleTo: 0}
		},
		Settlement: settlement,
	}

	req := service.OutgoingRequest{From: from, To: to, Prepare: &ilpwire.Prepare{Amount: 50}, OriginalAmount: 50}
	res := b.HandleOutgoing(context.Background(), req)
	require.True(t, res.IsFulfill())
	require.False(t, settlement.called)
}
