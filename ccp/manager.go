package ccp

import (
	"context"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/interledger/go-ilp-connector/account"
	"github.com/interledger/go-ilp-connector/ilpwire"
	"github.com/interledger/go-ilp-connector/router"
	"github.com/interledger/go-ilp-connector/service"
)

// log is the package's subsystem logger, wired by the connector.
var log = slog.Disabled

// UseLogger sets the package-level logger.
func UseLogger(l slog.Logger) {
	log = l
}

// DefaultBroadcastInterval is how often the manager re-broadcasts its
// routing table to peers when no interval is configured.
const DefaultBroadcastInterval = 30 * time.Second

// routeEntry is one entry of the manager's own table: the prefix this
// node can reach, the account it is reachable through, and the path
// of node addresses the route has traversed (for loop detection).
type routeEntry struct {
	accountID uuid.UUID
	path      []string
}

// epochEvent is one entry of the epoch log: an ordered record of
// route additions and withdrawals, indexed by epoch.
type epochEvent struct {
	prefix    string
	withdrawn bool
}

// peerState is the per-peer broadcast/subscription state: the mode
// the peer last requested, the epoch we last sent it, and the table
// id/epoch it last told us it knows about.
type peerState struct {
	mode             Mode
	lastSentEpoch    uint32
	lastKnownTableID [16]byte
	lastKnownEpoch   uint32
}

// AccountInfo is the subset of account fields the manager needs per
// peer. SendRoutes/ReceiveRoutes let a peer be taken out of CCP
// broadcast/acceptance independently of its RoutingRelation, so a
// Peer can be configured CCP-silent without also losing its standing
// as a forwarding target.
type AccountInfo struct {
	ID              uuid.UUID
	ILPAddress      ilpwire.Address
	RoutingRelation account.RoutingRelation
	SendRoutes      bool
	ReceiveRoutes   bool
}

// Sender delivers a Prepare to a peer through the outgoing stack; the
// connector wires this to the same outgoing chain entry point Echo
// uses for locally-originated packets.
type Sender interface {
	Send(ctx context.Context, accountID uuid.UUID, prepare *ilpwire.Prepare) service.Result
}

// Manager owns all CCP routing state for this node: the
// routing_table_id, the monotonic epoch counter, the epoch log, and
// per-peer broadcast state. It also owns the CCP layer of the routing
// table (router.LayerCCP) and pushes rebuilt snapshots to
// router.Builder/AtomicTable on every change.
type Manager struct {
	OurAddress ilpwire.Address
	Table      *router.AtomicTable
	Builder    *router.Builder
	Sender     Sender

	AccountsOf func() []AccountInfo

	BroadcastInterval time.Duration

	mu           sync.Mutex
	routingTableID [16]byte
	currentEpoch uint32
	epochLog     []epochEvent
	routes       map[string]routeEntry // prefix -> entry, CCP layer only
	peers        map[uuid.UUID]*peerState
}

// NewManager returns a Manager with a freshly generated routing table
// id and an empty CCP route set.
func NewManager(ourAddress ilpwire.Address, table *router.AtomicTable, builder *router.Builder, sender Sender, accountsOf func() []AccountInfo) *Manager {
	id := uuid.New()
	var tableID [16]byte
	copy(tableID[:], id[:])

	return &Manager{
		OurAddress:     ourAddress,
		Table:          table,
		Builder:        builder,
		Sender:         sender,
		AccountsOf:     accountsOf,
		routingTableID: tableID,
		routes:         make(map[string]routeEntry),
		peers:          make(map[uuid.UUID]*peerState),
	}
}

func (m *Manager) interval() time.Duration {
	if m.BroadcastInterval != 0 {
		return m.BroadcastInterval
	}
	return DefaultBroadcastInterval
}

func (m *Manager) peerState(id uuid.UUID) *peerState {
	ps, ok := m.peers[id]
	if !ok {
		ps = &peerState{mode: ModeIdle}
		m.peers[id] = ps
	}
	return ps
}

// Run drives the periodic broadcast loop until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.broadcastAll(ctx)
		}
	}
}

func (m *Manager) broadcastAll(ctx context.Context) {
	for _, acct := range m.AccountsOf() {
		if !acct.RoutingRelation.RoutesCCP() || !acct.SendRoutes {
			continue
		}
		m.broadcastTo(ctx, acct)
	}
}

func (m *Manager) broadcastTo(ctx context.Context, acct AccountInfo) {
	m.mu.Lock()
	ps := m.peerState(acct.ID)
	if ps.mode != ModeSync {
		m.mu.Unlock()
		return
	}

	req := m.buildUpdateLocked(ps)
	ps.lastSentEpoch = m.currentEpoch
	m.mu.Unlock()

	prepare, err := req.ToPrepare(time.Now())
	if err != nil {
		log.Errorf("ccp: failed to encode route update for %s: %v", acct.ID, err)
		return
	}

	res := m.Sender.Send(ctx, acct.ID, prepare)
	if !res.IsFulfill() {
		log.Debugf("ccp: route update to %s rejected: %v", acct.ID, res.Reject)
	}
}

// buildUpdateLocked computes the diff (or full table, if the peer's
// known table id differs) to send a peer. Caller must hold m.mu.
func (m *Manager) buildUpdateLocked(ps *peerState) *RouteUpdateRequest {
	fullTable := ps.lastKnownTableID != m.routingTableID

	var newRoutes []Route
	var withdrawn []string
	fromEpoch := ps.lastSentEpoch

	if fullTable {
		for prefix, entry := range m.routes {
			newRoutes = append(newRoutes, m.toWireRoute(prefix, entry))
		}
		fromEpoch = 0
	} else {
		seen := make(map[string]bool)
		for i := ps.lastSentEpoch; i < m.currentEpoch && int(i) < len(m.epochLog); i++ {
			ev := m.epochLog[i]
			if seen[ev.prefix] {
				continue
			}
			seen[ev.prefix] = true
			if ev.withdrawn {
				withdrawn = append(withdrawn, ev.prefix)
			} else if entry, ok := m.routes[ev.prefix]; ok {
				newRoutes = append(newRoutes, m.toWireRoute(ev.prefix, entry))
			}
		}
	}

	return &RouteUpdateRequest{
		RoutingTableID: m.routingTableID,
		CurrentEpoch:   m.currentEpoch,
		FromEpoch:      fromEpoch,
		ToEpoch:        m.currentEpoch,
		HoldDownTime:   uint32(m.interval().Milliseconds()),
		Speaker:        m.OurAddress,
		NewRoutes:      newRoutes,
		WithdrawnRoutes: withdrawn,
	}
}

func (m *Manager) toWireRoute(prefix string, entry routeEntry) Route {
	path := append([]string{string(m.OurAddress)}, entry.path...)
	return Route{Prefix: prefix, Path: path}
}

// HandleControl applies an incoming RouteControlRequest, recording
// the peer's requested broadcast mode and what it already knows.
func (m *Manager) HandleControl(from uuid.UUID, req *RouteControlRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps := m.peerState(from)
	ps.mode = req.Mode
	ps.lastKnownTableID = req.LastKnownRoutingTableID
	ps.lastKnownEpoch = req.LastKnownEpoch
	if req.Mode == ModeIdle {
		ps.lastSentEpoch = 0
	}
}

// HandleUpdate applies an incoming RouteUpdateRequest from a
// Parent/Peer account: adds routes with loop detection, applies
// withdrawals, bumps this node's own epoch, and rebuilds the CCP
// routing layer.
func (m *Manager) HandleUpdate(from AccountInfo, req *RouteUpdateRequest) error {
	if !from.RoutingRelation.TrustedCCPSource() || !from.ReceiveRoutes {
		return ErrUnexpectedDestination
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false

	for _, withdrawnPrefix := range req.WithdrawnRoutes {
		if _, ok := m.routes[withdrawnPrefix]; ok {
			delete(m.routes, withdrawnPrefix)
			m.appendEpochLocked(epochEvent{prefix: withdrawnPrefix, withdrawn: true})
			changed = true
		}
	}

	for _, route := range req.NewRoutes {
		if containsAddress(route.Path, string(m.OurAddress)) {
			// Loop detection: our own address already appears in the
			// announced path, so accepting this route would route
			// back through ourselves.
			continue
		}
		m.routes[route.Prefix] = routeEntry{accountID: from.ID, path: route.Path}
		m.appendEpochLocked(epochEvent{prefix: route.Prefix})
		changed = true
	}

	if changed {
		m.rebuildTableLocked()
	}
	return nil
}

func containsAddress(path []string, address string) bool {
	for _, p := range path {
		if p == address {
			return true
		}
	}
	return false
}

func (m *Manager) appendEpochLocked(ev epochEvent) {
	m.epochLog = append(m.epochLog, ev)
	m.currentEpoch = uint32(len(m.epochLog))
}

func (m *Manager) rebuildTableLocked() {
	ccpLayer := make(map[string]uuid.UUID, len(m.routes))
	for prefix, entry := range m.routes {
		ccpLayer[prefix] = entry.accountID
	}
	m.Builder.SetLayer(router.LayerCCP, ccpLayer)
	m.Table.Store(m.Builder.Build())
}
