package chain

import (
	"sync"

	"github.com/hoprnet/hopr-relay-core/primitives"
)

// Graph is a persistent, in-memory directed-graph representation of the
// payment-channel network. Vertices are compact KeyIds; each directed
// edge is labelled by the ChannelId of the channel that backs it. The
// graph is intentionally the small, fast-path structure: the
// authoritative, durable record of every ChannelEntry lives in the
// Backend, and Graph only ever needs to answer "does an edge exist" and
// "what are u's neighbors" without touching disk.
//
// Two directed edges between the same pair (u,v) in opposite
// orientation are independent: channels are uni-directional at the
// payment layer, exactly like two HTLC-bearing edges in a Lightning
// channel graph share a node pair but carry independent policies.
type Graph struct {
	mu sync.RWMutex

	// out maps a source vertex to its outgoing edges, keyed by
	// destination vertex.
	out map[primitives.KeyId]map[primitives.KeyId]primitives.ChannelId

	// in is the reverse index, used for incoming-channel lookups (e.g.
	// "who can reach me") without a full scan.
	in map[primitives.KeyId]map[primitives.KeyId]primitives.ChannelId
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		out: make(map[primitives.KeyId]map[primitives.KeyId]primitives.ChannelId),
		in:  make(map[primitives.KeyId]map[primitives.KeyId]primitives.ChannelId),
	}
}

// UpsertEdge adds or replaces the directed edge u->v, labelling it with
// the given channel id. Call sites hold the lock only across this
// in-memory mutation, never across a disk write or channel send.
func (g *Graph) UpsertEdge(u, v primitives.KeyId, id primitives.ChannelId) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.out[u] == nil {
		g.out[u] = make(map[primitives.KeyId]primitives.ChannelId)
	}
	g.out[u][v] = id

	if g.in[v] == nil {
		g.in[v] = make(map[primitives.KeyId]primitives.ChannelId)
	}
	g.in[v][u] = id
}

// RemoveEdge deletes the directed edge u->v, if present. Used once a
// channel reaches the Closed status and should no longer be considered
// for path resolution.
func (g *Graph) RemoveEdge(u, v primitives.KeyId) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if neighbors, ok := g.out[u]; ok {
		delete(neighbors, v)
		if len(neighbors) == 0 {
			delete(g.out, u)
		}
	}
	if neighbors, ok := g.in[v]; ok {
		delete(neighbors, u)
		if len(neighbors) == 0 {
			delete(g.in, v)
		}
	}
}

// HasEdge reports whether a directed edge u->v currently exists.
func (g *Graph) HasEdge(u, v primitives.KeyId) (primitives.ChannelId, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.out[u][v]
	return id, ok
}

// OutgoingNeighbors returns a snapshot of u's outgoing neighbors and the
// channel id of each edge.
func (g *Graph) OutgoingNeighbors(u primitives.KeyId) map[primitives.KeyId]primitives.ChannelId {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make(map[primitives.KeyId]primitives.ChannelId, len(g.out[u]))
	for v, id := range g.out[u] {
		out[v] = id
	}
	return out
}

// IncomingNeighbors returns a snapshot of u's incoming neighbors and the
// channel id of each edge.
func (g *Graph) IncomingNeighbors(u primitives.KeyId) map[primitives.KeyId]primitives.ChannelId {
	g.mu.RLock()
	defer g.mu.RUnlock()

	in := make(map[primitives.KeyId]primitives.ChannelId, len(g.in[u]))
	for v, id := range g.in[u] {
		in[v] = id
	}
	return in
}

// Degree returns the out-degree of a vertex.
func (g *Graph) Degree(u primitives.KeyId) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.out[u])
}
