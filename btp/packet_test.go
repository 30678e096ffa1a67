package btp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketEncodeDecodeRoundTrip(t *testing.T) {
	p := &Packet{
		Type:      TypeMessage,
		RequestID: 42,
		ProtocolData: []ProtocolDataEntry{
			{Name: IlpProtocolDataName, ContentType: ContentTypeApplicationOctetStream, Data: []byte{1, 2, 3}},
			{Name: "extra", ContentType: ContentTypeTextPlainUTF8, Data: []byte("hi")},
		},
	}

	raw, err := p.Encode()
	require.NoError(t, err)

	got, err := DecodePacket(raw)
	require.NoError(t, err)
	require.Equal(t, p.Type, got.Type)
	require.Equal(t, p.RequestID, got.RequestID)
	require.Equal(t, p.ProtocolData, got.ProtocolData)
}

func TestDecodePacketRejectsShortInput(t *testing.T) {
	_, err := DecodePacket([]byte{1, 2})
	require.ErrorIs(t, err, ErrInvalidPacket)
}

func TestIlpDataExtractsIlpEntry(t *testing.T) {
	p := NewIlpMessage(7, []byte("ilp-bytes"))
	data, ok := p.IlpData()
	require.True(t, ok)
	require.Equal(t, []byte("ilp-bytes"), data)
}

func TestIlpDataMissingWhenNoIlpEntry(t *testing.T) {
	p := &Packet{Type: TypeMessage, RequestID: 1}
	_, ok := p.IlpData()
	require.False(t, ok)
}

func TestAuthMessageRoundTrip(t *testing.T) {
	p := NewAuthMessage(1, "secret-token")
	token, ok := p.AuthToken()
	require.True(t, ok)
	require.Equal(t, "secret-token", token)
}

func TestAuthTokenFalseWhenNotAuthMessage(t *testing.T) {
	p := NewIlpMessage(1, []byte("x"))
	_, ok := p.AuthToken()
	require.False(t, ok)
}

func TestNewIlpResponseRoundTrip(t *testing.T) {
	p := NewIlpResponse(5, []byte("resp"))
	raw, err := p.Encode()
	require.NoError(t, err)

	got, err := DecodePacket(raw)
	require.NoError(t, err)
	require.Equal(t, TypeResponse, got.Type)
	data, ok := got.IlpData()
	require.True(t, ok)
	require.Equal(t, []byte("resp"), data)
}

func TestNewErrorRoundTrip(t *testing.T) {
	p := NewError(9, "boom")
	raw, err := p.Encode()
	require.NoError(t, err)

	got, err := DecodePacket(raw)
	require.NoError(t, err)
	require.Equal(t, TypeError, got.Type)
	require.Equal(t, "boom", string(got.ProtocolData[0].Data))
}
