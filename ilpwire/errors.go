package ilpwire

import "encoding/binary"

// ErrorCode is the 3-character ILP error code. The first character
// classifies it: F(inal), T(emporary), R(elative).
type ErrorCode string

const (
	CodeBadRequest           ErrorCode = "F00"
	CodeInvalidPacket        ErrorCode = "F01"
	CodeUnreachable          ErrorCode = "F02"
	CodeAmountTooLarge       ErrorCode = "F08"
	CodeFulfillmentMismatch  ErrorCode = "F09"
	CodeApplicationError     ErrorCode = "F99"
	CodeInternalError        ErrorCode = "T00"
	CodePeerUnreachable      ErrorCode = "T01"
	CodeInsufficientLiquidity ErrorCode = "T04"
	CodeRateLimited          ErrorCode = "T05"
	CodeTransferTimedOut     ErrorCode = "R00"
	CodeInsufficientTimeout  ErrorCode = "R02"
	CodeInsufficientSourceAmount ErrorCode = "R01"
)

// AmountTooLargeData encodes the {receivedAmount, maximumAmount} data
// payload carried by an F08 Reject: two big-endian u64s.
type AmountTooLargeData struct {
	ReceivedAmount uint64
	MaximumAmount  uint64
}

// Encode returns the 16-byte wire form.
func (d AmountTooLargeData) Encode() []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], d.ReceivedAmount)
	binary.BigEndian.PutUint64(buf[8:16], d.MaximumAmount)
	return buf
}

// DecodeAmountTooLargeData parses the data payload of an F08 Reject.
func DecodeAmountTooLargeData(b []byte) (AmountTooLargeData, bool) {
	if len(b) != 16 {
		return AmountTooLargeData{}, false
	}
	return AmountTooLargeData{
		ReceivedAmount: binary.BigEndian.Uint64(b[0:8]),
		MaximumAmount:  binary.BigEndian.Uint64(b[8:16]),
	}, true
}

// NewReject is a small helper used throughout the service chain so
// call sites don't repeat struct literals for the common case.
func NewReject(code ErrorCode, triggeredBy Address, message string) *Reject {
	return &Reject{Code: code, TriggeredBy: triggeredBy, Message: message}
}

// NewRejectWithData is NewReject plus a data payload.
func NewRejectWithData(code ErrorCode, triggeredBy Address, message string, data []byte) *Reject {
	return &Reject{Code: code, TriggeredBy: triggeredBy, Message: message, Data: data}
}
