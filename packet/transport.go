package packet

// PeerID is an opaque transport-assigned identifier for a remote peer
// (e.g. a libp2p peer id), consumed but not interpreted by this
// package beyond using it as a cache/resolver key
// ("Transport (consumed): inbound and outbound raw-byte datagrams
// tagged with a peer identifier").
type PeerID string

// InboundDatagram is one raw wire packet delivered by the transport
// layer, tagged with the peer it arrived from.
type InboundDatagram struct {
	Peer PeerID
	Data []byte
}

// OutboundDatagram is a packet this node emits, destined for Peer.
// Constructing one does not send it; a Transport implementation (an
// external collaborator) owns delivery.
type OutboundDatagram struct {
	Peer PeerID
	Data []byte
}

// Transport is the external collaborator that moves raw datagram bytes
// between peers. It is consumed, never implemented, by this package.
type Transport interface {
	Send(OutboundDatagram) error
	Inbound() <-chan InboundDatagram
}
