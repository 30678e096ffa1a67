// Package ildcp implements the address-assignment sub-protocol: a
// Child learns its own ILP address, asset scale, and asset code from
// its Parent by sending a Prepare to "peer.config".
package ildcp

import (
	"bytes"
	"io"

	"github.com/interledger/go-ilp-connector/ilpwire"
)

// Destination is the well-known address ILDCP requests are sent to.
const Destination = ilpwire.Address("peer.config")

// Response is the payload of the synthesised Fulfill.
type Response struct {
	ClientAddress ilpwire.Address
	AssetScale    uint8
	AssetCode     string
}

// Encode writes the response in the same OER-framed style as the
// packet wire format: var-octet-string address, one byte scale,
// var-octet-string asset code.
func (r Response) Encode() []byte {
	var buf bytes.Buffer
	_ = ilpwire.WriteVarOctetString(&buf, []byte(r.ClientAddress))
	buf.WriteByte(r.AssetScale)
	_ = ilpwire.WriteVarOctetString(&buf, []byte(r.AssetCode))
	return buf.Bytes()
}

// Decode parses a Response from its wire encoding.
func Decode(data []byte) (Response, error) {
	r := bytes.NewReader(data)

	addr, err := ilpwire.ReadVarOctetString(r)
	if err != nil {
		return Response{}, err
	}
	clientAddr, err := ilpwire.ParseAddress(string(addr))
	if err != nil {
		return Response{}, err
	}

	var scaleBuf [1]byte
	if _, err := io.ReadFull(r, scaleBuf[:]); err != nil {
		return Response{}, err
	}

	code, err := ilpwire.ReadVarOctetString(r)
	if err != nil {
		return Response{}, err
	}

	return Response{
		ClientAddress: clientAddr,
		AssetScale:    scaleBuf[0],
		AssetCode:     string(code),
	}, nil
}
