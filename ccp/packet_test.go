package ccp

import (
	"bytes"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/interledger/go-ilp-connector/ilpwire"
)

func TestConditionIsSha256OfFulfillment(t *testing.T) {
	want := sha256.Sum256(Fulfillment[:])
	require.Equal(t, want, Condition)

	f := ilpwire.Fulfill{Fulfillment: Fulfillment}
	require.True(t, f.Matches(Condition), "the fixed CCP fulfillment must satisfy the fixed CCP condition")
}

func TestRouteControlRequestRoundTrip(t *testing.T) {
	req := &RouteControlRequest{
		Mode:                    ModeSync,
		LastKnownRoutingTableID: [16]byte{1, 2, 3},
		LastKnownEpoch:          42,
		Features:                []string{"foo", "bar"},
	}

	var buf bytes.Buffer
	require.NoError(t, req.Encode(&buf))

	got, err := DecodeRouteControlRequest(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestRouteUpdateRequestRoundTrip(t *testing.T) {
	req := &RouteUpdateRequest{
		RoutingTableID: [16]byte{9, 9, 9},
		CurrentEpoch:   5,
		FromEpoch:      2,
		ToEpoch:        5,
		HoldDownTime:   30000,
		Speaker:        ilpwire.Address("test.connector"),
		NewRoutes: []Route{
			{
				Prefix: "test.alice",
				Path:   []string{"test.connector"},
				Auth:   [32]byte{1},
				Props: []RouteProp{
					{Optional: true, ID: RoutePropIDAuth, Value: []byte("x")},
				},
			},
		},
		WithdrawnRoutes: []string{"test.bob"},
	}

	var buf bytes.Buffer
	require.NoError(t, req.Encode(&buf))

	got, err := DecodeRouteUpdateRequest(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestRouteControlRequestToPrepare(t *testing.T) {
	req := &RouteControlRequest{Mode: ModeIdle}
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	p, err := req.ToPrepare(now)
	require.NoError(t, err)
	require.Equal(t, ControlDestination, p.Destination)
	require.Equal(t, Condition, p.ExecutionCondition)
	require.True(t, p.ExpiresAt.Equal(now.Add(Expiry)))
}

func TestRouteUpdateRequestToPrepare(t *testing.T) {
	req := &RouteUpdateRequest{}
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	p, err := req.ToPrepare(now)
	require.NoError(t, err)
	require.Equal(t, UpdateDestination, p.Destination)
	require.Equal(t, Condition, p.ExecutionCondition)
}
