package ilpwire

import (
	"errors"
	"strings"
)

// MaxAddressLength is the wire limit on an ILP address.
const MaxAddressLength = 1023

// ErrInvalidAddress is returned by ParseAddress when the grammar is
// violated.
var ErrInvalidAddress = errors.New("ilpwire: invalid ILP address")

// Address is a validated ILP address: a dot-separated path of
// segments, each drawn from [A-Za-z0-9_~.-] with dashes/underscores
// allowed but no empty segment and no leading/trailing dot.
type Address string

// ParseAddress validates s and returns it as an Address.
func ParseAddress(s string) (Address, error) {
	if len(s) == 0 || len(s) > MaxAddressLength {
		return "", ErrInvalidAddress
	}
	segs := strings.Split(s, ".")
	for _, seg := range segs {
		if len(seg) == 0 {
			return "", ErrInvalidAddress
		}
		for _, r := range seg {
			if !isAddressChar(r) {
				return "", ErrInvalidAddress
			}
		}
	}
	return Address(s), nil
}

func isAddressChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '_' || r == '~' || r == '-':
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (a Address) String() string { return string(a) }

// WithSegment appends a segment, e.g. our_address.WithSegment(username).
func (a Address) WithSegment(seg string) Address {
	return Address(string(a) + "." + seg)
}

// HasPrefix reports whether prefix is a dot-aligned prefix of a (used
// by the local-termination check in stream receiver and by routing
// table lookups which operate on raw strings for performance, see
// router.Table).
func (a Address) HasPrefix(prefix Address) bool {
	s, p := string(a), string(prefix)
	if p == "" {
		return true
	}
	if !strings.HasPrefix(s, p) {
		return false
	}
	return len(s) == len(p) || s[len(p)] == '.'
}

// TrimPrefix removes prefix and the following dot, if present.
func (a Address) TrimPrefix(prefix Address) string {
	s, p := string(a), string(prefix)
	if !a.HasPrefix(prefix) {
		return s
	}
	rest := strings.TrimPrefix(s, p)
	return strings.TrimPrefix(rest, ".")
}
