package ilpwire

import (
	"bytes"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPrepareRoundTrip(t *testing.T) {
	dest, err := ParseAddress("test.alice.charlie")
	require.NoError(t, err)

	cond := sha256.Sum256([]byte("preimage"))
	p := &Prepare{
		Amount:             1000,
		ExpiresAt:          time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC),
		ExecutionCondition: cond,
		Destination:        dest,
		Data:               []byte("hello"),
	}

	var buf bytes.Buffer
	require.NoError(t, p.Encode(&buf))

	got, err := ReadPacket(&buf)
	require.NoError(t, err)
	p2, ok := got.(*Prepare)
	require.True(t, ok)
	require.Equal(t, p.Amount, p2.Amount)
	require.True(t, p.ExpiresAt.Equal(p2.ExpiresAt))
	require.Equal(t, p.ExecutionCondition, p2.ExecutionCondition)
	require.Equal(t, p.Destination, p2.Destination)
	require.Equal(t, p.Data, p2.Data)
}

func TestFulfillRoundTripAndIntegrity(t *testing.T) {
	preimage := [32]byte{1, 2, 3}
	f := &Fulfill{Fulfillment: preimage, Data: []byte("data")}

	var buf bytes.Buffer
	require.NoError(t, f.Encode(&buf))

	got, err := ReadPacket(&buf)
	require.NoError(t, err)
	f2 := got.(*Fulfill)
	require.Equal(t, f.Fulfillment, f2.Fulfillment)

	cond := sha256.Sum256(preimage[:])
	require.True(t, f2.Matches(cond))
}

func TestRejectRoundTrip(t *testing.T) {
	addr, err := ParseAddress("test.connector")
	require.NoError(t, err)
	rj := &Reject{
		Code:        CodeAmountTooLarge,
		TriggeredBy: addr,
		Message:     "amount too large",
		Data:        AmountTooLargeData{ReceivedAmount: 10, MaximumAmount: 5}.Encode(),
	}

	var buf bytes.Buffer
	require.NoError(t, rj.Encode(&buf))

	got, err := ReadPacket(&buf)
	require.NoError(t, err)
	rj2 := got.(*Reject)
	require.Equal(t, rj.Code, rj2.Code)
	require.Equal(t, rj.TriggeredBy, rj2.TriggeredBy)
	require.Equal(t, rj.Message, rj2.Message)

	data, ok := DecodeAmountTooLargeData(rj2.Data)
	require.True(t, ok)
	require.Equal(t, uint64(10), data.ReceivedAmount)
	require.Equal(t, uint64(5), data.MaximumAmount)
}

func TestAddressValidation(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
	}{
		{"test.alice", false},
		{"g.us.nexus.bob", false},
		{"", true},
		{"test..alice", true},
		{".test.alice", true},
		{"test.alice.", true},
		{"test.al ice", true},
	}
	for _, c := range cases {
		_, err := ParseAddress(c.in)
		if c.wantErr {
			require.Error(t, err, c.in)
		} else {
			require.NoError(t, err, c.in)
		}
	}
}

func TestAddressHasPrefix(t *testing.T) {
	a := Address("test.alice.charlie")
	require.True(t, a.HasPrefix("test.alice"))
	require.True(t, a.HasPrefix(""))
	require.True(t, a.HasPrefix("test.alice.charlie"))
	require.False(t, a.HasPrefix("test.al"))
	require.False(t, a.HasPrefix("test.bob"))
}
