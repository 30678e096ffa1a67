// Package ilpwire implements the ILP packet machine: the Prepare,
// Fulfill and Reject wire types and their ASN.1-OER inspired codec,
// each type exposing paired Encode(io.Writer)/Decode(io.Reader)
// methods behind a fixed type-byte discriminant.
package ilpwire

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"io"
	"time"
)

// PacketType is the first byte of every ILP packet on the wire.
type PacketType uint8

const (
	TypePrepare PacketType = 12
	TypeFulfill PacketType = 13
	TypeReject  PacketType = 14
)

// ConditionLength is the fixed size of an execution condition or
// fulfillment: both are always exactly 32 bytes.
const ConditionLength = 32

var (
	ErrUnknownPacketType = errors.New("ilpwire: unknown packet type")
	ErrBadTimestamp      = errors.New("ilpwire: malformed expires_at")
)

// tsLayout is ILP's fixed 17-byte ASCII interval timestamp,
// YYYYMMDDHHMMSSmmm, always UTC.
const tsLayout = "20060102150405.000"

func encodeTimestamp(t time.Time) []byte {
	s := t.UTC().Format(tsLayout)
	// Format yields "YYYYMMDDHHMMSS.mmm" (18 bytes incl. the dot);
	// ILP's wire form drops the dot to get the specified 17 ASCII
	// digits.
	out := make([]byte, 0, 17)
	for i := 0; i < len(s); i++ {
		if s[i] != '.' {
			out = append(out, s[i])
		}
	}
	return out
}

func decodeTimestamp(b []byte) (time.Time, error) {
	if len(b) != 17 {
		return time.Time{}, ErrBadTimestamp
	}
	withDot := string(b[:14]) + "." + string(b[14:])
	t, err := time.ParseInLocation(tsLayout, withDot, time.UTC)
	if err != nil {
		return time.Time{}, ErrBadTimestamp
	}
	return t, nil
}

// Prepare is the ILP Prepare packet.
type Prepare struct {
	Amount             uint64
	ExpiresAt          time.Time
	ExecutionCondition [ConditionLength]byte
	Destination        Address
	Data               []byte
}

// Fulfill is the ILP Fulfill packet. It is valid iff
// SHA-256(Fulfillment) equals the triggering Prepare's
// ExecutionCondition.
type Fulfill struct {
	Fulfillment [32]byte
	Data        []byte
}

// Condition returns SHA-256(f.Fulfillment), the condition this
// fulfillment satisfies.
func (f Fulfill) Condition() [32]byte {
	return sha256.Sum256(f.Fulfillment[:])
}

// Matches reports whether f fulfills cond.
func (f Fulfill) Matches(cond [32]byte) bool {
	return f.Condition() == cond
}

// Reject is the ILP Reject packet.
type Reject struct {
	Code        ErrorCode
	TriggeredBy Address
	Message     string
	Data        []byte
}

func (r Reject) Error() string {
	return string(r.Code) + ": " + r.Message
}

// Packet is either a *Fulfill or a *Reject; Prepare never appears as
// a response value — see service.Result.
type Packet interface {
	isPacket()
}

func (*Fulfill) isPacket() {}
func (*Reject) isPacket()  {}

// Encode writes p as a framed ILP packet: type octet, OER length
// determinant, contents.
func (p *Prepare) Encode(w io.Writer) error {
	var body bytes.Buffer
	if err := writeUint64(&body, p.Amount); err != nil {
		return err
	}
	if _, err := body.Write(encodeTimestamp(p.ExpiresAt)); err != nil {
		return err
	}
	if _, err := body.Write(p.ExecutionCondition[:]); err != nil {
		return err
	}
	if err := WriteVarOctetString(&body, []byte(p.Destination)); err != nil {
		return err
	}
	if err := WriteVarOctetString(&body, p.Data); err != nil {
		return err
	}
	return writeFramed(w, TypePrepare, body.Bytes())
}

// Decode reads a Prepare whose type octet has already been consumed
// by the caller (see ReadPacket).
func (p *Prepare) Decode(r io.Reader) error {
	amt, err := readUint64(r)
	if err != nil {
		return err
	}
	var ts [17]byte
	if _, err := io.ReadFull(r, ts[:]); err != nil {
		return err
	}
	expires, err := decodeTimestamp(ts[:])
	if err != nil {
		return err
	}
	var cond [32]byte
	if _, err := io.ReadFull(r, cond[:]); err != nil {
		return err
	}
	destRaw, err := ReadVarOctetString(r)
	if err != nil {
		return err
	}
	dest, err := ParseAddress(string(destRaw))
	if err != nil {
		return err
	}
	data, err := ReadVarOctetString(r)
	if err != nil {
		return err
	}
	p.Amount = amt
	p.ExpiresAt = expires
	p.ExecutionCondition = cond
	p.Destination = dest
	p.Data = data
	return nil
}

func (f *Fulfill) Encode(w io.Writer) error {
	var body bytes.Buffer
	if _, err := body.Write(f.Fulfillment[:]); err != nil {
		return err
	}
	if err := WriteVarOctetString(&body, f.Data); err != nil {
		return err
	}
	return writeFramed(w, TypeFulfill, body.Bytes())
}

func (f *Fulfill) Decode(r io.Reader) error {
	var fulfillment [32]byte
	if _, err := io.ReadFull(r, fulfillment[:]); err != nil {
		return err
	}
	data, err := ReadVarOctetString(r)
	if err != nil {
		return err
	}
	f.Fulfillment = fulfillment
	f.Data = data
	return nil
}

func (rj *Reject) Encode(w io.Writer) error {
	var body bytes.Buffer
	if len(rj.Code) != 3 {
		return errors.New("ilpwire: reject code must be 3 ASCII characters")
	}
	if _, err := body.Write([]byte(rj.Code)); err != nil {
		return err
	}
	if err := WriteVarOctetString(&body, []byte(rj.TriggeredBy)); err != nil {
		return err
	}
	if err := WriteVarOctetString(&body, []byte(rj.Message)); err != nil {
		return err
	}
	if err := WriteVarOctetString(&body, rj.Data); err != nil {
		return err
	}
	return writeFramed(w, TypeReject, body.Bytes())
}

func (rj *Reject) Decode(r io.Reader) error {
	var code [3]byte
	if _, err := io.ReadFull(r, code[:]); err != nil {
		return err
	}
	triggeredRaw, err := ReadVarOctetString(r)
	if err != nil {
		return err
	}
	// TriggeredBy may legitimately be empty (e.g. a synthetic local
	// Reject before any hop is known); only validate non-empty.
	var triggeredBy Address
	if len(triggeredRaw) > 0 {
		triggeredBy, err = ParseAddress(string(triggeredRaw))
		if err != nil {
			return err
		}
	}
	msg, err := ReadVarOctetString(r)
	if err != nil {
		return err
	}
	data, err := ReadVarOctetString(r)
	if err != nil {
		return err
	}
	rj.Code = ErrorCode(code[:])
	rj.TriggeredBy = triggeredBy
	rj.Message = string(msg)
	rj.Data = data
	return nil
}

func writeFramed(w io.Writer, t PacketType, body []byte) error {
	var out bytes.Buffer
	if err := writeUint8(&out, uint8(t)); err != nil {
		return err
	}
	if err := WriteVarOctetString(&out, body); err != nil {
		return err
	}
	_, err := w.Write(out.Bytes())
	return err
}

// ReadPacket reads any of Prepare/Fulfill/Reject from r, dispatching
// on the leading type=12|13|14 octet every ILP transport frames a
// packet with.
func ReadPacket(r io.Reader) (interface{}, error) {
	t, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	body, err := ReadVarOctetString(r)
	if err != nil {
		return nil, err
	}
	br := bytes.NewReader(body)
	switch PacketType(t) {
	case TypePrepare:
		p := &Prepare{}
		if err := p.Decode(br); err != nil {
			return nil, err
		}
		return p, nil
	case TypeFulfill:
		f := &Fulfill{}
		if err := f.Decode(br); err != nil {
			return nil, err
		}
		return f, nil
	case TypeReject:
		rj := &Reject{}
		if err := rj.Decode(br); err != nil {
			return nil, err
		}
		return rj, nil
	default:
		return nil, ErrUnknownPacketType
	}
}

// EncodeToBytes is a convenience used by transports that deal in raw
// []byte rather than io.Writer (BTP protocol-data, HTTP bodies).
func EncodeToBytes(v interface{ Encode(io.Writer) error }) ([]byte, error) {
	var buf bytes.Buffer
	if err := v.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
