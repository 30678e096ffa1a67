// Package stream implements the end-to-end STREAM protocol that runs
// encrypted inside ILP Prepare/Fulfill data: frame codecs,
// shared-secret crypto, and the receiver service that terminates
// locally-addressed packets.
package stream

import (
	"bytes"
	"errors"
	"io"

	"github.com/interledger/go-ilp-connector/ilpwire"
)

// FrameType identifies a STREAM frame.
type FrameType byte

const (
	FrameConnectionClose           FrameType = 0x01
	FrameConnectionNewAddress      FrameType = 0x02
	FrameConnectionMaxData        FrameType = 0x03
	FrameConnectionDataBlocked     FrameType = 0x04
	FrameConnectionMaxStreamID     FrameType = 0x05
	FrameConnectionStreamIDBlocked FrameType = 0x06
	FrameConnectionAssetDetails    FrameType = 0x07
	FrameStreamClose               FrameType = 0x10
	FrameStreamMoney                FrameType = 0x11
	FrameStreamMaxMoney            FrameType = 0x12
	FrameStreamMoneyBlocked        FrameType = 0x13
	FrameStreamData                 FrameType = 0x14
	FrameStreamMaxData              FrameType = 0x15
	FrameStreamDataBlocked          FrameType = 0x16
)

var ErrUnknownFrameType = errors.New("stream: unknown frame type")

// Frame is any decoded STREAM frame; the concrete types below all
// implement it via Type()/body().
type Frame interface {
	Type() FrameType
	body() []byte
}

// EncodeFrame writes frame_type(u8) | var-oct-string(contents).
func EncodeFrame(w io.Writer, f Frame) error {
	if _, err := w.Write([]byte{byte(f.Type())}); err != nil {
		return err
	}
	return ilpwire.WriteVarOctetString(w, f.body())
}

// DecodeFrame reads one frame from r.
func DecodeFrame(r io.Reader) (Frame, error) {
	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return nil, err
	}
	content, err := ilpwire.ReadVarOctetString(r)
	if err != nil {
		return nil, err
	}
	return decodeFrameBody(FrameType(typeBuf[0]), content)
}

func decodeFrameBody(t FrameType, content []byte) (Frame, error) {
	r := bytes.NewReader(content)
	switch t {
	case FrameConnectionClose:
		code, err := readUint8(r)
		if err != nil {
			return nil, err
		}
		msg, err := ilpwire.ReadVarOctetString(r)
		if err != nil {
			return nil, err
		}
		return &ConnectionClose{Code: code, Message: string(msg)}, nil

	case FrameConnectionNewAddress:
		addr, err := ilpwire.ReadVarOctetString(r)
		if err != nil {
			return nil, err
		}
		return &ConnectionNewAddress{SourceAccount: string(addr)}, nil

	case FrameConnectionAssetDetails:
		code, err := ilpwire.ReadVarOctetString(r)
		if err != nil {
			return nil, err
		}
		scale, err := readUint8(r)
		if err != nil {
			return nil, err
		}
		return &ConnectionAssetDetails{SourceAssetCode: string(code), SourceAssetScale: scale}, nil

	case FrameConnectionMaxData:
		v, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		return &ConnectionMaxData{MaxOffset: v}, nil

	case FrameConnectionDataBlocked:
		v, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		return &ConnectionDataBlocked{MaxOffset: v}, nil

	case FrameConnectionMaxStreamID:
		v, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		return &ConnectionMaxStreamID{MaxStreamID: v}, nil

	case FrameConnectionStreamIDBlocked:
		v, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		return &ConnectionStreamIDBlocked{MaxStreamID: v}, nil

	case FrameStreamClose:
		id, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		code, err := readUint8(r)
		if err != nil {
			return nil, err
		}
		msg, err := ilpwire.ReadVarOctetString(r)
		if err != nil {
			return nil, err
		}
		return &StreamClose{StreamID: id, Code: code, Message: string(msg)}, nil

	case FrameStreamMoney:
		id, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		shares, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		return &StreamMoney{StreamID: id, Shares: shares}, nil

	case FrameStreamMaxMoney:
		id, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		max, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		total, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		return &StreamMaxMoney{StreamID: id, ReceiveMax: max, TotalReceived: total}, nil

	case FrameStreamMoneyBlocked:
		id, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		sendMax, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		totalSent, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		return &StreamMoneyBlocked{StreamID: id, SendMax: sendMax, TotalSent: totalSent}, nil

	case FrameStreamData:
		id, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		offset, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		data, err := ilpwire.ReadVarOctetString(r)
		if err != nil {
			return nil, err
		}
		return &StreamData{StreamID: id, Offset: offset, Data: data}, nil

	case FrameStreamMaxData:
		id, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		max, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		return &StreamMaxData{StreamID: id, MaxOffset: max}, nil

	case FrameStreamDataBlocked:
		id, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		max, err := ilpwire.ReadVarUint(r)
		if err != nil {
			return nil, err
		}
		return &StreamDataBlocked{StreamID: id, MaxOffset: max}, nil

	default:
		return nil, ErrUnknownFrameType
	}
}

func readUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func encodeBody(parts ...[]byte) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(p)
	}
	return buf.Bytes()
}

func varUintBytes(n uint64) []byte {
	var buf bytes.Buffer
	_ = ilpwire.WriteVarUint(&buf, n)
	return buf.Bytes()
}

func varOctetBytes(data []byte) []byte {
	var buf bytes.Buffer
	_ = ilpwire.WriteVarOctetString(&buf, data)
	return buf.Bytes()
}

type ConnectionClose struct {
	Code    uint8
	Message string
}

func (f *ConnectionClose) Type() FrameType { return FrameConnectionClose }
func (f *ConnectionClose) body() []byte {
	return encodeBody([]byte{f.Code}, varOctetBytes([]byte(f.Message)))
}

type ConnectionNewAddress struct {
	SourceAccount string
}

func (f *ConnectionNewAddress) Type() FrameType { return FrameConnectionNewAddress }
func (f *ConnectionNewAddress) body() []byte {
	return varOctetBytes([]byte(f.SourceAccount))
}

type ConnectionAssetDetails struct {
	SourceAssetCode  string
	SourceAssetScale uint8
}

func (f *ConnectionAssetDetails) Type() FrameType { return FrameConnectionAssetDetails }
func (f *ConnectionAssetDetails) body() []byte {
	return encodeBody(varOctetBytes([]byte(f.SourceAssetCode)), []byte{f.SourceAssetScale})
}

type ConnectionMaxData struct{ MaxOffset uint64 }

func (f *ConnectionMaxData) Type() FrameType { return FrameConnectionMaxData }
func (f *ConnectionMaxData) body() []byte    { return varUintBytes(f.MaxOffset) }

type ConnectionDataBlocked struct{ MaxOffset uint64 }

func (f *ConnectionDataBlocked) Type() FrameType { return FrameConnectionDataBlocked }
func (f *ConnectionDataBlocked) body() []byte    { return varUintBytes(f.MaxOffset) }

type ConnectionMaxStreamID struct{ MaxStreamID uint64 }

func (f *ConnectionMaxStreamID) Type() FrameType { return FrameConnectionMaxStreamID }
func (f *ConnectionMaxStreamID) body() []byte    { return varUintBytes(f.MaxStreamID) }

type ConnectionStreamIDBlocked struct{ MaxStreamID uint64 }

func (f *ConnectionStreamIDBlocked) Type() FrameType { return FrameConnectionStreamIDBlocked }
func (f *ConnectionStreamIDBlocked) body() []byte    { return varUintBytes(f.MaxStreamID) }

type StreamClose struct {
	StreamID uint64
	Code     uint8
	Message  string
}

func (f *StreamClose) Type() FrameType { return FrameStreamClose }
func (f *StreamClose) body() []byte {
	return encodeBody(varUintBytes(f.StreamID), []byte{f.Code}, varOctetBytes([]byte(f.Message)))
}

type StreamMoney struct {
	StreamID uint64
	Shares   uint64
}

func (f *StreamMoney) Type() FrameType { return FrameStreamMoney }
func (f *StreamMoney) body() []byte {
	return encodeBody(varUintBytes(f.StreamID), varUintBytes(f.Shares))
}

type StreamMaxMoney struct {
	StreamID      uint64
	ReceiveMax    uint64
	TotalReceived uint64
}

func (f *StreamMaxMoney) Type() FrameType { return FrameStreamMaxMoney }
func (f *StreamMaxMoney) body() []byte {
	return encodeBody(varUintBytes(f.StreamID), varUintBytes(f.ReceiveMax), varUintBytes(f.TotalReceived))
}

type StreamMoneyBlocked struct {
	StreamID  uint64
	SendMax   uint64
	TotalSent uint64
}

func (f *StreamMoneyBlocked) Type() FrameType { return FrameStreamMoneyBlocked }
func (f *StreamMoneyBlocked) body() []byte {
	return encodeBody(varUintBytes(f.StreamID), varUintBytes(f.SendMax), varUintBytes(f.TotalSent))
}

type StreamData struct {
	StreamID uint64
	Offset   uint64
	Data     []byte
}

func (f *StreamData) Type() FrameType { return FrameStreamData }
func (f *StreamData) body() []byte {
	return encodeBody(varUintBytes(f.StreamID), varUintBytes(f.Offset), varOctetBytes(f.Data))
}

type StreamMaxData struct {
	StreamID  uint64
	MaxOffset uint64
}

func (f *StreamMaxData) Type() FrameType { return FrameStreamMaxData }
func (f *StreamMaxData) body() []byte {
	return encodeBody(varUintBytes(f.StreamID), varUintBytes(f.MaxOffset))
}

type StreamDataBlocked struct {
	StreamID  uint64
	MaxOffset uint64
}

func (f *StreamDataBlocked) Type() FrameType { return FrameStreamDataBlocked }
func (f *StreamDataBlocked) body() []byte {
	return encodeBody(varUintBytes(f.StreamID), varUintBytes(f.MaxOffset))
}
