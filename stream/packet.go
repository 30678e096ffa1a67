package stream

import (
	"bytes"
	"errors"
	"io"

	"github.com/interledger/go-ilp-connector/ilpwire"
)

// Version is the only STREAM packet version this implementation
// speaks.
const Version = 1

// PacketType mirrors the carrying ILP packet's type.
type PacketType uint8

const (
	PacketTypePrepare PacketType = 12
	PacketTypeFulfill PacketType = 13
	PacketTypeReject  PacketType = 14
)

var ErrUnsupportedVersion = errors.New("stream: unsupported packet version")

// Packet is the decrypted STREAM packet carried inside a Prepare or
// Fulfill's data field.
type Packet struct {
	Sequence      uint64
	PacketType    PacketType
	PrepareAmount uint64
	Frames        []Frame
}

// Encode serialises the packet: version(u8) | sequence(var-uint) |
// ilp_packet_type(u8) | prepare_amount(var-uint) | frame_count(var-uint) | frames[].
func (p *Packet) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(Version)
	if err := ilpwire.WriteVarUint(&buf, p.Sequence); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(p.PacketType))
	if err := ilpwire.WriteVarUint(&buf, p.PrepareAmount); err != nil {
		return nil, err
	}
	if err := ilpwire.WriteVarUint(&buf, uint64(len(p.Frames))); err != nil {
		return nil, err
	}
	for _, f := range p.Frames {
		if err := EncodeFrame(&buf, f); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodePacket parses a Packet from its plaintext wire form.
func DecodePacket(data []byte) (*Packet, error) {
	r := bytes.NewReader(data)

	var versionByte [1]byte
	if _, err := io.ReadFull(r, versionByte[:]); err != nil {
		return nil, err
	}
	if versionByte[0] != Version {
		return nil, ErrUnsupportedVersion
	}

	seq, err := ilpwire.ReadVarUint(r)
	if err != nil {
		return nil, err
	}

	typeByte, err := readUint8(r)
	if err != nil {
		return nil, err
	}

	amount, err := ilpwire.ReadVarUint(r)
	if err != nil {
		return nil, err
	}

	count, err := ilpwire.ReadVarUint(r)
	if err != nil {
		return nil, err
	}

	frames := make([]Frame, 0, count)
	for i := uint64(0); i < count; i++ {
		f, err := DecodeFrame(r)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}

	return &Packet{
		Sequence:      seq,
		PacketType:    PacketType(typeByte),
		PrepareAmount: amount,
		Frames:        frames,
	}, nil
}
