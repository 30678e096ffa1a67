// Package btp implements the Bilateral Transfer Protocol: a framed
// ILP transport multiplexed over a single WebSocket per peer.
package btp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	"github.com/interledger/go-ilp-connector/ilpwire"
)

// MessageType is the BTP outer frame's type byte.
type MessageType uint8

const (
	TypeResponse MessageType = 1
	TypeError    MessageType = 2
	TypeMessage  MessageType = 6
)

// ContentType is a protocol-data entry's content type.
type ContentType uint8

const (
	ContentTypeApplicationOctetStream ContentType = 0
	ContentTypeTextPlainUTF8          ContentType = 1
	ContentTypeApplicationJSON        ContentType = 2
)

// ProtocolDataEntry is one named sub-payload of a BTP packet: a name,
// a content type, and the raw bytes for it.
type ProtocolDataEntry struct {
	Name        string
	ContentType ContentType
	Data        []byte
}

// IlpProtocolDataName is the well-known entry name carrying a binary
// ILP packet.
const IlpProtocolDataName = "ilp"

const (
	authProtocolDataName      = "auth"
	authTokenProtocolDataName = "auth_token"
)

var ErrInvalidPacket = errors.New("btp: invalid packet")

// Packet is a decoded BTP message, response, or error.
type Packet struct {
	Type          MessageType
	RequestID     uint32
	ProtocolData  []ProtocolDataEntry
}

// Encode serialises a Packet as type(u8) | request_id(u32 BE) |
// var-octet-string(protocol_data_count(var-uint) | entries...).
func (p *Packet) Encode() ([]byte, error) {
	var body bytes.Buffer
	if err := ilpwire.WriteVarUint(&body, uint64(len(p.ProtocolData))); err != nil {
		return nil, err
	}
	for _, e := range p.ProtocolData {
		if err := ilpwire.WriteVarOctetString(&body, []byte(e.Name)); err != nil {
			return nil, err
		}
		body.WriteByte(byte(e.ContentType))
		if err := ilpwire.WriteVarOctetString(&body, e.Data); err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	out.WriteByte(byte(p.Type))
	var reqIDBuf [4]byte
	binary.BigEndian.PutUint32(reqIDBuf[:], p.RequestID)
	out.Write(reqIDBuf[:])
	if err := ilpwire.WriteVarOctetString(&out, body.Bytes()); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// DecodePacket parses a Packet from a raw WebSocket binary frame.
func DecodePacket(raw []byte) (*Packet, error) {
	if len(raw) < 5 {
		return nil, ErrInvalidPacket
	}
	r := bytes.NewReader(raw)

	var typeByte [1]byte
	if _, err := io.ReadFull(r, typeByte[:]); err != nil {
		return nil, ErrInvalidPacket
	}

	var reqIDBuf [4]byte
	if _, err := io.ReadFull(r, reqIDBuf[:]); err != nil {
		return nil, ErrInvalidPacket
	}
	reqID := binary.BigEndian.Uint32(reqIDBuf[:])

	body, err := ilpwire.ReadVarOctetString(r)
	if err != nil {
		return nil, ErrInvalidPacket
	}

	br := bytes.NewReader(body)
	count, err := ilpwire.ReadVarUint(br)
	if err != nil {
		return nil, ErrInvalidPacket
	}

	entries := make([]ProtocolDataEntry, 0, count)
	for i := uint64(0); i < count; i++ {
		name, err := ilpwire.ReadVarOctetString(br)
		if err != nil {
			return nil, ErrInvalidPacket
		}
		var ctByte [1]byte
		if _, err := io.ReadFull(br, ctByte[:]); err != nil {
			return nil, ErrInvalidPacket
		}
		data, err := ilpwire.ReadVarOctetString(br)
		if err != nil {
			return nil, ErrInvalidPacket
		}
		entries = append(entries, ProtocolDataEntry{
			Name:        string(name),
			ContentType: ContentType(ctByte[0]),
			Data:        data,
		})
	}

	return &Packet{Type: MessageType(typeByte[0]), RequestID: reqID, ProtocolData: entries}, nil
}

// IlpData extracts the "ilp" protocol-data entry's bytes, if present.
func (p *Packet) IlpData() ([]byte, bool) {
	for _, e := range p.ProtocolData {
		if e.Name == IlpProtocolDataName {
			return e.Data, true
		}
	}
	return nil, false
}

// NewIlpMessage wraps an encoded ILP packet as a BTP Message.
func NewIlpMessage(requestID uint32, ilpPacketBytes []byte) *Packet {
	return &Packet{
		Type:      TypeMessage,
		RequestID: requestID,
		ProtocolData: []ProtocolDataEntry{
			{Name: IlpProtocolDataName, ContentType: ContentTypeApplicationOctetStream, Data: ilpPacketBytes},
		},
	}
}

// NewIlpResponse wraps an encoded ILP packet as a BTP Response.
func NewIlpResponse(requestID uint32, ilpPacketBytes []byte) *Packet {
	return &Packet{
		Type:      TypeResponse,
		RequestID: requestID,
		ProtocolData: []ProtocolDataEntry{
			{Name: IlpProtocolDataName, ContentType: ContentTypeApplicationOctetStream, Data: ilpPacketBytes},
		},
	}
}

// NewAuthMessage builds the first message sent on a new connection.
func NewAuthMessage(requestID uint32, token string) *Packet {
	return &Packet{
		Type:      TypeMessage,
		RequestID: requestID,
		ProtocolData: []ProtocolDataEntry{
			{Name: authProtocolDataName, ContentType: ContentTypeApplicationOctetStream, Data: nil},
			{Name: authTokenProtocolDataName, ContentType: ContentTypeTextPlainUTF8, Data: []byte(token)},
		},
	}
}

// AuthToken extracts the bearer token from an auth message, if this
// packet is one.
func (p *Packet) AuthToken() (string, bool) {
	var isAuth bool
	var token string
	for _, e := range p.ProtocolData {
		if e.Name == authProtocolDataName {
			isAuth = true
		}
		if e.Name == authTokenProtocolDataName {
			token = string(e.Data)
		}
	}
	if !isAuth {
		return "", false
	}
	return token, true
}

// NewEmptyResponse builds the empty BtpResponse sent on successful
// auth.
func NewEmptyResponse(requestID uint32) *Packet {
	return &Packet{Type: TypeResponse, RequestID: requestID}
}

// NewError builds a BtpError carrying a message string.
func NewError(requestID uint32, message string) *Packet {
	return &Packet{
		Type:      TypeError,
		RequestID: requestID,
		ProtocolData: []ProtocolDataEntry{
			{Name: "message", ContentType: ContentTypeTextPlainUTF8, Data: []byte(message)},
		},
	}
}
