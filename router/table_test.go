package router

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTableLookupLongestPrefix(t *testing.T) {
	b := NewBuilder()
	acctShort := uuid.New()
	acctLong := uuid.New()
	b.SetLayer(LayerStatic, map[string]uuid.UUID{
		"test":       acctShort,
		"test.alice": acctLong,
	})
	table := b.Build()

	got, ok := table.Lookup("test.alice.charlie")
	require.True(t, ok)
	require.Equal(t, acctLong, got)

	got, ok = table.Lookup("test.bob")
	require.True(t, ok)
	require.Equal(t, acctShort, got)

	_, ok = table.Lookup("other.prefix")
	require.False(t, ok)
}

func TestTableDefaultRoute(t *testing.T) {
	b := NewBuilder()
	def := uuid.New()
	b.SetLayer(LayerStatic, map[string]uuid.UUID{"": def})
	table := b.Build()

	got, ok := table.Lookup("anything.at.all")
	require.True(t, ok)
	require.Equal(t, def, got)
}

func TestTableLayerPriority(t *testing.T) {
	b := NewBuilder()
	local := uuid.New()
	ccp := uuid.New()
	static := uuid.New()

	b.SetLayer(LayerLocal, map[string]uuid.UUID{"test.alice": local})
	b.SetLayer(LayerCCP, map[string]uuid.UUID{"test.alice": ccp})
	b.SetLayer(LayerStatic, map[string]uuid.UUID{"test.alice": static})

	table := b.Build()
	got, ok := table.Lookup("test.alice")
	require.True(t, ok)
	require.Equal(t, static, got, "static routes must win over CCP and local routes on the same prefix")
}

func TestTableLayerPriorityWithoutStatic(t *testing.T) {
	b := NewBuilder()
	local := uuid.New()
	ccp := uuid.New()

	b.SetLayer(LayerLocal, map[string]uuid.UUID{"test.alice": local})
	b.SetLayer(LayerCCP, map[string]uuid.UUID{"test.alice": ccp})

	table := b.Build()
	got, ok := table.Lookup("test.alice")
	require.True(t, ok)
	require.Equal(t, ccp, got, "CCP routes must win over local routes on the same prefix")
}

func TestNilTableLookupMisses(t *testing.T) {
	var table *Table
	_, ok := table.Lookup("test.alice")
	require.False(t, ok)
}

func TestAtomicTableStoreLoad(t *testing.T) {
	at := NewAtomicTable()
	require.NotNil(t, at.Load())

	acct := uuid.New()
	b := NewBuilder()
	b.SetLayer(LayerStatic, map[string]uuid.UUID{"test.alice": acct})
	at.Store(b.Build())

	got, ok := at.Load().Lookup("test.alice")
	require.True(t, ok)
	require.Equal(t, acct, got)
}

func TestBuilderSetLayerCopiesInput(t *testing.T) {
	b := NewBuilder()
	routes := map[string]uuid.UUID{"test.alice": uuid.New()}
	b.SetLayer(LayerStatic, routes)

	routes["test.bob"] = uuid.New()

	table := b.Build()
	_, ok := table.Lookup("test.bob")
	require.False(t, ok, "mutating the caller's map after SetLayer must not affect the built table")
}
