// Package router implements the account-scoped forwarding table and
// the Router service that looks up a destination's next hop in it.
package router

import (
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// Layer distinguishes the three overlaid route sources: static
// routes, CCP-learned routes, and configured local routes, overlaid
// in that priority order (high to low). Higher numeric value wins a
// tie on the same prefix.
type Layer int

const (
	LayerLocal Layer = iota
	LayerCCP
	LayerStatic
)

type entry struct {
	accountID uuid.UUID
	layer     Layer
}

// Table is an immutable snapshot of the effective routing table:
// prefix -> chosen next-hop account, already resolved across the
// three layers. A new Table is built and atomically swapped in
// whenever any layer changes, so lookups never block on a writer.
type Table struct {
	routes map[string]entry
}

// Lookup returns the account bound to the longest prefix of
// destination present in the table. The empty-string prefix, if
// present, is the default route.
func (t *Table) Lookup(destination string) (uuid.UUID, bool) {
	if t == nil {
		return uuid.UUID{}, false
	}

	best := -1
	var bestAccount uuid.UUID
	found := false

	for prefix, e := range t.routes {
		if prefix != "" && !strings.HasPrefix(destination, prefix) {
			continue
		}
		if len(prefix) > best {
			best = len(prefix)
			bestAccount = e.accountID
			found = true
		}
	}
	return bestAccount, found
}

// Builder accumulates per-layer route sets and produces a resolved
// Table. Each layer's contents are set wholesale: the static and
// local-route layers are small, rarely-changing sets, while the CCP
// layer is rebuilt by ccp.Manager on every epoch tick.
type Builder struct {
	layers map[Layer]map[string]uuid.UUID
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{layers: make(map[Layer]map[string]uuid.UUID)}
}

// SetLayer replaces the entire route set for one layer.
func (b *Builder) SetLayer(layer Layer, routes map[string]uuid.UUID) {
	cp := make(map[string]uuid.UUID, len(routes))
	for k, v := range routes {
		cp[k] = v
	}
	b.layers[layer] = cp
}

// Build resolves the overlaid layers into a Table: for each prefix,
// the highest-priority layer that defines it wins.
func (b *Builder) Build() *Table {
	byPrefix := make(map[string]entry)

	for layer := LayerLocal; layer <= LayerStatic; layer++ {
		for prefix, acct := range b.layers[layer] {
			existing, ok := byPrefix[prefix]
			if !ok || layer >= existing.layer {
				byPrefix[prefix] = entry{accountID: acct, layer: layer}
			}
		}
	}
	return &Table{routes: byPrefix}
}

// AtomicTable is the live, swappable table handle the router and the
// CCP manager share.
type AtomicTable struct {
	v atomic.Value
}

// NewAtomicTable returns a handle holding an empty table.
func NewAtomicTable() *AtomicTable {
	a := &AtomicTable{}
	a.Store(NewBuilder().Build())
	return a
}

// Store atomically replaces the current table.
func (a *AtomicTable) Store(t *Table) {
	a.v.Store(t)
}

// Load returns the current table.
func (a *AtomicTable) Load() *Table {
	t, _ := a.v.Load().(*Table)
	return t
}
