// Package account defines the Account model: the unit of peering.
package account

import (
	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/secret"
)

// RoutingRelation is the peering role, which governs route trust and
// distribution.
type RoutingRelation int

const (
	NonRoutingAccount RoutingRelation = iota
	Parent
	Peer
	Child
)

func (r RoutingRelation) String() string {
	switch r {
	case Parent:
		return "Parent"
	case Peer:
		return "Peer"
	case Child:
		return "Child"
	default:
		return "NonRoutingAccount"
	}
}

// RoutesCCP reports whether this relation ever sends/receives CCP
// route broadcasts at all: only Peer and Child accounts do.
func (r RoutingRelation) RoutesCCP() bool {
	return r == Peer || r == Child
}

// TrustedCCPSource reports whether route updates received from this
// relation are honored: only Parent and Peer accounts are trusted to
// announce routes.
func (r RoutingRelation) TrustedCCPSource() bool {
	return r == Parent || r == Peer
}

// Account is the unit of peering.
type Account struct {
	ID       uuid.UUID
	Username string

	AssetCode  string
	AssetScale uint8

	ILPAddress ilpwire.Address

	// Transport endpoints.
	OutgoingHTTPURL   string
	OutgoingHTTPToken secret.Secret
	OutgoingBTPURL    string
	OutgoingBTPToken  secret.Secret
	IncomingHTTPToken secret.Secret
	IncomingBTPToken  secret.Secret

	RoutingRelation RoutingRelation

	MaxPacketAmount uint64
	MinBalance      int64
	SettleThreshold int64
	SettleTo        int64

	RoundTripTime          uint64 // milliseconds
	AmountPerMinuteLimit   uint64
	PacketsPerMinuteLimit  uint64

	SettlementEngineURL string

	// ReceiveRoutes/SendRoutes gate whether the CCP manager will ever
	// exchange routes with this peer, independent of whether its
	// RoutingRelation would otherwise allow it: a Peer can be
	// configured CCP-silent without demoting it to NonRoutingAccount
	// (which would also stop it being a forwarding target).
	ReceiveRoutes bool
	SendRoutes    bool
}

// EffectiveRoundTripBudget returns 2*RTT in milliseconds, the
// round-trip part of the allowance the expiry shortener adds to now
// when it caps a forwarded Prepare's expiry.
func (a *Account) EffectiveRoundTripBudget() uint64 {
	return 2 * a.RoundTripTime
}
