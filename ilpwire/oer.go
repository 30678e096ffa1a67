package ilpwire

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrLengthTooLarge is returned when a length determinant would not
// fit the 8-length-octet ceiling we enforce (far beyond anything a
// real ILP packet carries; this simply bounds allocation).
var ErrLengthTooLarge = errors.New("ilpwire: length determinant too large")

// WriteVarOctetString writes data prefixed with an OER length
// determinant: a single byte for lengths < 128, or a high-bit-set
// byte giving the number of following big-endian length octets for
// longer payloads. This is the canonical ILP "var-oct" encoding used
// throughout §6 (destination, data, message, speaker, prefix, ...).
func WriteVarOctetString(w io.Writer, data []byte) error {
	if err := writeLength(w, len(data)); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func writeLength(w io.Writer, n int) error {
	if n < 128 {
		_, err := w.Write([]byte{byte(n)})
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	// trim leading zero octets
	start := 0
	for start < 7 && buf[start] == 0 {
		start++
	}
	lenOctets := buf[start:]
	if len(lenOctets) > 0x7f {
		return ErrLengthTooLarge
	}
	if _, err := w.Write([]byte{0x80 | byte(len(lenOctets))}); err != nil {
		return err
	}
	_, err := w.Write(lenOctets)
	return err
}

// ReadVarOctetString reads a var-oct encoded payload.
func ReadVarOctetString(r io.Reader) ([]byte, error) {
	n, err := readLength(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func readLength(r io.Reader) (int, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return 0, err
	}
	if first[0] < 0x80 {
		return int(first[0]), nil
	}
	numOctets := int(first[0] &^ 0x80)
	if numOctets > 8 {
		return 0, ErrLengthTooLarge
	}
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf[8-numOctets:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint64(buf)), nil
}

// WriteVarUint writes n using the same length-determinant discipline
// as WriteVarOctetString, but over the minimal big-endian encoding of
// the integer itself (the CCP wire format's "var-uint" fields, e.g.
// a route's path_len and the counted-array lengths of new_routes,
// withdrawn_routes, path_entries and props).
func WriteVarUint(w io.Writer, n uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	start := 0
	for start < 7 && buf[start] == 0 {
		start++
	}
	return WriteVarOctetString(w, buf[start:])
}

// ReadVarUint reads a WriteVarUint-encoded integer.
func ReadVarUint(r io.Reader) (uint64, error) {
	b, err := ReadVarOctetString(r)
	if err != nil {
		return 0, err
	}
	if len(b) > 8 {
		return 0, ErrLengthTooLarge
	}
	var buf [8]byte
	copy(buf[8-len(b):], b)
	return binary.BigEndian.Uint64(buf[:]), nil
}

func writeUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

func readUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}
