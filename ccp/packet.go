// Package ccp implements the Connector-to-Connector Protocol route
// distribution engine: a wire codec for RouteControlRequest/
// RouteUpdateRequest plus the Manager that runs the broadcast loop
// and applies received updates to the routing table.
package ccp

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"io"
	"time"

	"github.com/interledger/go-ilp-connector/ilpwire"
)

// ControlDestination and UpdateDestination are the two fixed CCP
// addresses.
const (
	ControlDestination = ilpwire.Address("peer.route.control")
	UpdateDestination   = ilpwire.Address("peer.route.update")
)

// Fulfillment is the fixed 32 zero-byte fulfillment every CCP packet
// carries in response.
var Fulfillment [32]byte

// Condition is the fixed peer-protocol execution condition: the
// SHA-256 of Fulfillment, so every CCP exchange satisfies the same
// condition/fulfillment relationship any other ILP packet does.
var Condition = sha256.Sum256(Fulfillment[:])

// Expiry is the fixed 60s expiry CCP packets use.
const Expiry = 60 * time.Second

// RoutingTableIDLen is the length of the routing_table_id field.
const RoutingTableIDLen = 16

const (
	authLen    = 32
	epochLen   = 4
	holdDownLen = 4
)

var (
	ErrUnexpectedDestination = errors.New("ccp: unexpected destination")
	ErrUnexpectedCondition   = errors.New("ccp: unexpected execution condition")
	ErrTruncated             = errors.New("ccp: truncated packet")
)

// Mode distinguishes the two RouteControlRequest states: Idle (stop
// sending broadcasts) and Sync (start/continue sending them).
type Mode uint8

const (
	ModeIdle Mode = 0
	ModeSync Mode = 1
)

// RouteControlRequest asks the receiver to start/stop broadcasting
// routes to the sender.
type RouteControlRequest struct {
	Mode                   Mode
	LastKnownRoutingTableID [16]byte
	LastKnownEpoch         uint32
	Features               []string
}

// RoutePropIDAuth is the well-known property id reserved for the AUTH
// property; all other property ids are opaque application properties.
const RoutePropIDAuth uint16 = 0

// RouteProp flag bits.
const (
	PropFlagOptional  uint8 = 0x80
	PropFlagTransitive uint8 = 0x40
	PropFlagPartial   uint8 = 0x20
	PropFlagUTF8      uint8 = 0x10
)

// RouteProp is one property attached to a Route.
type RouteProp struct {
	Optional   bool
	Transitive bool
	Partial    bool
	UTF8       bool
	ID         uint16
	Value      []byte
}

// Route is one routing-table entry announced over CCP.
type Route struct {
	Prefix string
	Path   []string
	Auth   [32]byte
	Props  []RouteProp
}

// RouteUpdateRequest carries an incremental or full routing table
// diff.
type RouteUpdateRequest struct {
	RoutingTableID   [16]byte
	CurrentEpoch     uint32
	FromEpoch        uint32
	ToEpoch          uint32
	HoldDownTime     uint32
	Speaker          ilpwire.Address
	NewRoutes        []Route
	WithdrawnRoutes  []string
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

func writeUint16(w io.Writer, v uint16) error {
	_, err := w.Write([]byte{byte(v >> 8), byte(v)})
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	_, err := w.Write([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func (p RouteProp) Encode(w io.Writer) error {
	var flags uint8
	if p.Optional {
		flags |= PropFlagOptional
	}
	if p.Transitive {
		flags |= PropFlagTransitive
	}
	if p.Partial {
		flags |= PropFlagPartial
	}
	if p.UTF8 {
		flags |= PropFlagUTF8
	}
	if err := writeUint8(w, flags); err != nil {
		return err
	}
	if err := writeUint16(w, p.ID); err != nil {
		return err
	}
	return ilpwire.WriteVarOctetString(w, p.Value)
}

func decodeRouteProp(r io.Reader) (RouteProp, error) {
	flags, err := readUint8(r)
	if err != nil {
		return RouteProp{}, err
	}
	id, err := readUint16(r)
	if err != nil {
		return RouteProp{}, err
	}
	value, err := ilpwire.ReadVarOctetString(r)
	if err != nil {
		return RouteProp{}, err
	}
	return RouteProp{
		Optional:   flags&PropFlagOptional != 0,
		Transitive: flags&PropFlagTransitive != 0,
		Partial:    flags&PropFlagPartial != 0,
		UTF8:       flags&PropFlagUTF8 != 0,
		ID:         id,
		Value:      value,
	}, nil
}

func (r Route) Encode(w io.Writer) error {
	if err := ilpwire.WriteVarOctetString(w, []byte(r.Prefix)); err != nil {
		return err
	}
	if err := ilpwire.WriteVarUint(w, uint64(len(r.Path))); err != nil {
		return err
	}
	for _, p := range r.Path {
		if err := ilpwire.WriteVarOctetString(w, []byte(p)); err != nil {
			return err
		}
	}
	if _, err := w.Write(r.Auth[:]); err != nil {
		return err
	}
	if err := ilpwire.WriteVarUint(w, uint64(len(r.Props))); err != nil {
		return err
	}
	for _, p := range r.Props {
		if err := p.Encode(w); err != nil {
			return err
		}
	}
	return nil
}

func decodeRoute(r io.Reader) (Route, error) {
	prefix, err := ilpwire.ReadVarOctetString(r)
	if err != nil {
		return Route{}, err
	}
	pathLen, err := ilpwire.ReadVarUint(r)
	if err != nil {
		return Route{}, err
	}
	path := make([]string, 0, pathLen)
	for i := uint64(0); i < pathLen; i++ {
		seg, err := ilpwire.ReadVarOctetString(r)
		if err != nil {
			return Route{}, err
		}
		path = append(path, string(seg))
	}

	var auth [32]byte
	if _, err := io.ReadFull(r, auth[:]); err != nil {
		return Route{}, ErrTruncated
	}

	propLen, err := ilpwire.ReadVarUint(r)
	if err != nil {
		return Route{}, err
	}
	props := make([]RouteProp, 0, propLen)
	for i := uint64(0); i < propLen; i++ {
		p, err := decodeRouteProp(r)
		if err != nil {
			return Route{}, err
		}
		props = append(props, p)
	}

	return Route{Prefix: string(prefix), Path: path, Auth: auth, Props: props}, nil
}

// Encode serialises a RouteControlRequest's Prepare.Data payload.
func (req *RouteControlRequest) Encode(w io.Writer) error {
	if err := writeUint8(w, uint8(req.Mode)); err != nil {
		return err
	}
	if _, err := w.Write(req.LastKnownRoutingTableID[:]); err != nil {
		return err
	}
	if err := writeUint32(w, req.LastKnownEpoch); err != nil {
		return err
	}
	if err := ilpwire.WriteVarUint(w, uint64(len(req.Features))); err != nil {
		return err
	}
	for _, f := range req.Features {
		if err := ilpwire.WriteVarOctetString(w, []byte(f)); err != nil {
			return err
		}
	}
	return nil
}

// DecodeRouteControlRequest parses a RouteControlRequest from a
// Prepare's data payload.
func DecodeRouteControlRequest(data []byte) (*RouteControlRequest, error) {
	r := bytes.NewReader(data)

	mode, err := readUint8(r)
	if err != nil {
		return nil, err
	}
	var tableID [16]byte
	if _, err := io.ReadFull(r, tableID[:]); err != nil {
		return nil, ErrTruncated
	}
	epoch, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	numFeatures, err := ilpwire.ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	features := make([]string, 0, numFeatures)
	for i := uint64(0); i < numFeatures; i++ {
		f, err := ilpwire.ReadVarOctetString(r)
		if err != nil {
			return nil, err
		}
		features = append(features, string(f))
	}

	return &RouteControlRequest{
		Mode:                    Mode(mode),
		LastKnownRoutingTableID: tableID,
		LastKnownEpoch:          epoch,
		Features:                features,
	}, nil
}

// Encode serialises a RouteUpdateRequest's Prepare.Data payload.
func (req *RouteUpdateRequest) Encode(w io.Writer) error {
	if _, err := w.Write(req.RoutingTableID[:]); err != nil {
		return err
	}
	if err := writeUint32(w, req.CurrentEpoch); err != nil {
		return err
	}
	if err := writeUint32(w, req.FromEpoch); err != nil {
		return err
	}
	if err := writeUint32(w, req.ToEpoch); err != nil {
		return err
	}
	if err := writeUint32(w, req.HoldDownTime); err != nil {
		return err
	}
	if err := ilpwire.WriteVarOctetString(w, []byte(req.Speaker)); err != nil {
		return err
	}
	if err := ilpwire.WriteVarUint(w, uint64(len(req.NewRoutes))); err != nil {
		return err
	}
	for _, route := range req.NewRoutes {
		if err := route.Encode(w); err != nil {
			return err
		}
	}
	if err := ilpwire.WriteVarUint(w, uint64(len(req.WithdrawnRoutes))); err != nil {
		return err
	}
	for _, prefix := range req.WithdrawnRoutes {
		if err := ilpwire.WriteVarOctetString(w, []byte(prefix)); err != nil {
			return err
		}
	}
	return nil
}

// DecodeRouteUpdateRequest parses a RouteUpdateRequest from a
// Prepare's data payload.
func DecodeRouteUpdateRequest(data []byte) (*RouteUpdateRequest, error) {
	r := bytes.NewReader(data)

	var tableID [16]byte
	if _, err := io.ReadFull(r, tableID[:]); err != nil {
		return nil, ErrTruncated
	}
	currentEpoch, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	fromEpoch, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	toEpoch, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	holdDown, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	speakerBytes, err := ilpwire.ReadVarOctetString(r)
	if err != nil {
		return nil, err
	}
	speaker, err := ilpwire.ParseAddress(string(speakerBytes))
	if err != nil {
		return nil, err
	}

	numNew, err := ilpwire.ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	newRoutes := make([]Route, 0, numNew)
	for i := uint64(0); i < numNew; i++ {
		route, err := decodeRoute(r)
		if err != nil {
			return nil, err
		}
		newRoutes = append(newRoutes, route)
	}

	numWithdrawn, err := ilpwire.ReadVarUint(r)
	if err != nil {
		return nil, err
	}
	withdrawn := make([]string, 0, numWithdrawn)
	for i := uint64(0); i < numWithdrawn; i++ {
		prefix, err := ilpwire.ReadVarOctetString(r)
		if err != nil {
			return nil, err
		}
		withdrawn = append(withdrawn, string(prefix))
	}

	return &RouteUpdateRequest{
		RoutingTableID:  tableID,
		CurrentEpoch:    currentEpoch,
		FromEpoch:       fromEpoch,
		ToEpoch:         toEpoch,
		HoldDownTime:    holdDown,
		Speaker:         speaker,
		NewRoutes:       newRoutes,
		WithdrawnRoutes: withdrawn,
	}, nil
}

// ToPrepare wraps req as the fixed-condition, fixed-expiry Prepare
// CCP always sends.
func (req *RouteControlRequest) ToPrepare(now time.Time) (*ilpwire.Prepare, error) {
	var buf bytes.Buffer
	if err := req.Encode(&buf); err != nil {
		return nil, err
	}
	return &ilpwire.Prepare{
		Amount:              0,
		ExpiresAt:           now.Add(Expiry),
		ExecutionCondition:  Condition,
		Destination:         ControlDestination,
		Data:                buf.Bytes(),
	}, nil
}

// ToPrepare wraps req as the fixed-condition, fixed-expiry Prepare
// CCP always sends.
func (req *RouteUpdateRequest) ToPrepare(now time.Time) (*ilpwire.Prepare, error) {
	var buf bytes.Buffer
	if err := req.Encode(&buf); err != nil {
		return nil, err
	}
	return &ilpwire.Prepare{
		Amount:              0,
		ExpiresAt:           now.Add(Expiry),
		ExecutionCondition:  Condition,
		Destination:         UpdateDestination,
		Data:                buf.Bytes(),
	}, nil
}
