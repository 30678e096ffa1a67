package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/service"
)

type fixedIncoming struct {
	res service.Result
}

func (f fixedIncoming) HandleIncoming(ctx context.Context, req service.IncomingRequest) service.Result {
	return f.res
}

type fixedOutgoing struct {
	res service.Result
}

func (f fixedOutgoing) HandleOutgoing(ctx context.Context, req service.OutgoingRequest) service.Result {
	return f.res
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIncomingValidatorRejectsExpired(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	v := &IncomingValidator{
		Inner: fixedIncoming{res: service.FulfillResult(&ilpwire.Fulfill{})},
		Now:   fixedClock(now),
	}

	req := service.IncomingRequest{Prepare: &ilpwire.Prepare{ExpiresAt: now.Add(-time.Second)}}
	res := v.HandleIncoming(context.Background(), req)

	require.False(t, res.IsFulfill())
	require.Equal(t, ilpwire.CodeTransferTimedOut, res.Reject.Code)
}

func TestIncomingValidatorPassesNonExpired(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	v := &IncomingValidator{
		Inner: fixedIncoming{res: service.FulfillResult(&ilpwire.Fulfill{})},
		Now:   fixedClock(now),
	}

	req := service.IncomingRequest{Prepare: &ilpwire.Prepare{ExpiresAt: now.Add(time.Second)}}
	res := v.HandleIncoming(context.Background(), req)

	require.True(t, res.IsFulfill())
}

func TestOutgoingValidatorRejectsExpired(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	v := &OutgoingValidator{
		Inner: fixedOutgoing{res: service.FulfillResult(&ilpwire.Fulfill{})},
		Now:   fixedClock(now),
	}

	req := service.OutgoingRequest{Prepare: &ilpwire.Prepare{ExpiresAt: now}}
	res := v.HandleOutgoing(context.Background(), req)

	require.False(t, res.IsFulfill())
	require.Equal(t, ilpwire.CodeTransferTimedOut, res.Reject.Code)
}

func TestOutgoingValidatorRejectsFulfillmentMismatch(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	cond := [32]byte{1, 2, 3}
	badFulfill := &ilpwire.Fulfill{Fulfillment: [32]byte{9, 9, 9}}
	v := &OutgoingValidator{
		Inner: fixedOutgoing{res: service.FulfillResult(badFulfill)},
		Now:   fixedClock(now),
	}

	req := service.OutgoingRequest{Prepare: &ilpwire.Prepare{
		ExpiresAt:          now.Add(time.Minute),
		ExecutionCondition: cond,
	}}
	res := v.HandleOutgoing(context.Background(), req)

	require.False(t, res.IsFulfill())
	require.Equal(t, ilpwire.CodeFulfillmentMismatch, res.Reject.Code)
}

func TestOutgoingValidatorPassesMatchingFulfillment(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	var preimage [32]byte
	cond := ilpwire.Fulfill{Fulfillment: preimage}.Condition()

	v := &OutgoingValidator{
		Inner: fixedOutgoing{res: service.FulfillResult(&ilpwire.Fulfill{Fulfillment: preimage})},
		Now:   fixedClock(now),
	}

	req := service.OutgoingRequest{Prepare: &ilpwire.Prepare{
		ExpiresAt:          now.Add(time.Minute),
		ExecutionCondition: cond,
	}}
	res := v.HandleOutgoing(context.Background(), req)

	require.True(t, res.IsFulfill())
}
