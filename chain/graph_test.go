package chain

import (
	"testing"

	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/stretchr/testify/require"
)

// TestGraphInvariant exercises the graph invariant: after applying a
// sequence of edge events, an edge u->v exists in the graph iff the
// corresponding channel is Open or PendingToClose.
func TestGraphInvariant(t *testing.T) {
	g := NewGraph()

	var u, v primitives.KeyId = 1, 2
	var chanID primitives.ChannelId
	chanID[0] = 0xAA

	_, ok := g.HasEdge(u, v)
	require.False(t, ok)

	g.UpsertEdge(u, v, chanID)
	got, ok := g.HasEdge(u, v)
	require.True(t, ok)
	require.Equal(t, chanID, got)

	require.Equal(t, map[primitives.KeyId]primitives.ChannelId{v: chanID}, g.OutgoingNeighbors(u))
	require.Equal(t, map[primitives.KeyId]primitives.ChannelId{u: chanID}, g.IncomingNeighbors(v))

	// Closure removes the edge.
	g.RemoveEdge(u, v)
	_, ok = g.HasEdge(u, v)
	require.False(t, ok)
	require.Empty(t, g.OutgoingNeighbors(u))
	require.Empty(t, g.IncomingNeighbors(v))
}

func TestGraphDirectionalIndependence(t *testing.T) {
	g := NewGraph()

	var u, v primitives.KeyId = 1, 2
	var fwd, rev primitives.ChannelId
	fwd[0] = 1
	rev[0] = 2

	g.UpsertEdge(u, v, fwd)
	g.UpsertEdge(v, u, rev)

	gotFwd, ok := g.HasEdge(u, v)
	require.True(t, ok)
	require.Equal(t, fwd, gotFwd)

	gotRev, ok := g.HasEdge(v, u)
	require.True(t, ok)
	require.Equal(t, rev, gotRev)

	// Removing one direction must not affect the other.
	g.RemoveEdge(u, v)
	_, ok = g.HasEdge(u, v)
	require.False(t, ok)
	_, ok = g.HasEdge(v, u)
	require.True(t, ok)
}

func TestGraphDegree(t *testing.T) {
	g := NewGraph()
	var u primitives.KeyId = 1

	require.Equal(t, 0, g.Degree(u))

	var id1, id2 primitives.ChannelId
	id1[0], id2[0] = 1, 2
	g.UpsertEdge(u, 2, id1)
	g.UpsertEdge(u, 3, id2)

	require.Equal(t, 2, g.Degree(u))
}
