// Package packet implements the per-packet decode-and-forward pipeline:
// peer-key resolution, SPHINX layer peeling, replay detection, ticket
// validate-and-replace, and classification of the result as a final
// payload, an acknowledgement batch, or a forwarded packet. Grounded on
// peer.go's handleUpstreamMsg/ProcessOnionPacket dispatch: decode once,
// switch on the action enum.
package packet

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/hoprnet/hopr-relay-core/chain"
	"github.com/hoprnet/hopr-relay-core/cpupool"
	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/hoprnet/hopr-relay-core/sphinxcodec"
	"github.com/hoprnet/hopr-relay-core/ticket"
)

// Kind discriminates the three IncomingPacket variants: Final,
// Acknowledgement, Forward.
type Kind uint8

const (
	KindFinal Kind = iota
	KindAcknowledgement
	KindForward
)

// SurbStore is where SURBs attached to a Final application packet are
// stashed under the sender's pseudonym before the packet is yielded
// upstream. It is consumed by this package but
// owned by the session layer, which balances SURB supply against
// consumption.
type SurbStore interface {
	StoreSurbs(pseudonym primitives.Pseudonym, surbs [][]byte)
}

// ChainView is the subset of *chain.Connector the decoder depends on,
// narrowed to an interface so the packet package can be tested without
// a live connector.
type ChainView interface {
	AddressForPacketKey(key primitives.OffchainPublicKey) (primitives.Address, error)
	ChannelByParties(source, destination primitives.Address) (chain.ChannelEntry, error)
	Oracle() (chain.OracleValues, bool)
}

// Config carries the construction inputs the validate-and-replace
// sub-protocol and outgoing ticket minting need.
type Config struct {
	MyAddress           primitives.Address
	DomainSeparator     [32]byte
	OutgoingWinProb     float64
	OutgoingPrice       primitives.Balance
	SignerKey           *btcec.PrivateKey
	PeerKeyCacheSize    uint64
	ReplayFilterItems   uint64
	ReplayFalsePositive float64
}

// IncomingPacket is the classified result of decoding one wire packet:
// exactly one of the three Kind-tagged variants is populated.
type IncomingPacket struct {
	Kind Kind

	// Final fields.
	Payload          []byte
	AckKey           [32]byte
	SenderPseudonym  primitives.Pseudonym
	StoredSurbsCount int
	PacketSignals    uint8

	// Acknowledgement fields.
	Acks []ticket.Acknowledgement

	// Forward fields.
	NextHop         primitives.KeyId
	NextHopAddress  primitives.Address
	OutgoingData    []byte
	AckChallenge    ticket.Challenge
	ReceivedTicket  ticket.UnacknowledgedTicket
	AckKeyPrevHop   [32]byte
	IncomingChannel primitives.ChannelId
}

// Decoder is the per-node instance that peels one SPHINX layer from
// each inbound datagram and classifies the result. The only shared
// mutable state it touches directly is the replay filter (lock-
// protected, constant time) and the caches reached through resolver/
// chainView (lock-free, update-don't-invalidate)
// "State machine".
type Decoder struct {
	cfg Config

	sphinx    *sphinxcodec.Decoder
	replay    *sphinxcodec.ReplayFilter
	pool      *cpupool.Pool
	peerKeys  *cachedPeerKeyResolver
	chainView ChainView
	tracker   *ticket.Tracker
	surbs     SurbStore
}

// NewDecoder builds a Decoder. replayKey1/replayKey2 should be
// process-random siphash keys (see sphinxcodec.NewReplayFilter).
func NewDecoder(
	cfg Config,
	sphinxDecoder *sphinxcodec.Decoder,
	pool *cpupool.Pool,
	peerKeys PeerKeyResolver,
	chainView ChainView,
	tracker *ticket.Tracker,
	surbs SurbStore,
	replayKey1, replayKey2 [16]byte,
) *Decoder {
	cacheSize := cfg.PeerKeyCacheSize
	if cacheSize == 0 {
		cacheSize = 50_000
	}
	replayItems := cfg.ReplayFilterItems
	if replayItems == 0 {
		replayItems = 1_000_000
	}
	replayFP := cfg.ReplayFalsePositive
	if replayFP == 0 {
		replayFP = 1e-9
	}

	return &Decoder{
		cfg:       cfg,
		sphinx:    sphinxDecoder,
		replay:    sphinxcodec.NewReplayFilter(replayItems, replayFP, replayKey1, replayKey2),
		pool:      pool,
		peerKeys:  newCachedPeerKeyResolver(peerKeys, cacheSize),
		chainView: chainView,
		tracker:   tracker,
		surbs:     surbs,
	}
}

// Decode runs the full per-packet protocol on one inbound datagram.
func (d *Decoder) Decode(ctx context.Context, peer PeerID, raw []byte) (*IncomingPacket, error) {
	senderKey, err := d.resolveSenderKey(ctx, peer)
	if err != nil {
		return nil, err
	}

	decoded, err := d.sphinxDecode(ctx, raw, senderKey)
	if err != nil {
		if errors.Is(err, sphinxcodec.ErrOutgoingAtIngress) {
			return nil, fmt.Errorf("%w: cannot be outgoing packet", ErrInvalidState)
		}
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	// The replay check runs after SPHINX decode so that invalid
	// packets never pollute the Bloom filter.
	if d.replay.CheckAndSet(decoded.Tag) {
		return nil, ErrReplay
	}

	switch decoded.Action {
	case sphinxcodec.ActionFinal:
		return d.decodeFinal(decoded)
	case sphinxcodec.ActionForwarded:
		return d.decodeForwarded(ctx, senderKey, decoded)
	default:
		return nil, fmt.Errorf("%w: unexpected sphinx action", ErrInvalidState)
	}
}

func (d *Decoder) resolveSenderKey(ctx context.Context, peer PeerID) (primitives.OffchainPublicKey, error) {
	result, err := d.pool.Submit(ctx, func() (any, error) {
		return d.peerKeys.resolve(peer)
	})
	if err != nil {
		if errors.Is(err, cpupool.ErrOverload) {
			// Local overload, not billed against the sender.
			return primitives.OffchainPublicKey{}, fmt.Errorf("%w: local overload", ErrUndecodable)
		}
		return primitives.OffchainPublicKey{}, fmt.Errorf("%w: %v", ErrResolverError, err)
	}
	return result.(primitives.OffchainPublicKey), nil
}

func (d *Decoder) sphinxDecode(ctx context.Context, raw []byte, senderKey primitives.OffchainPublicKey) (*sphinxcodec.DecodedPacket, error) {
	result, err := d.pool.Submit(ctx, func() (any, error) {
		return d.sphinx.Decode(raw, senderKey[:])
	})
	if err != nil {
		if errors.Is(err, cpupool.ErrOverload) {
			return nil, fmt.Errorf("%w: local overload", ErrUndecodable)
		}
		return nil, err
	}
	return result.(*sphinxcodec.DecodedPacket), nil
}

// decodeFinal handles the Final branch: an ack_key-less plaintext is
// a packed acknowledgement batch; an
// ack_key-bearing plaintext is application data whose attached SURBs
// are stored under the sender pseudonym before the packet is returned.
func (d *Decoder) decodeFinal(decoded *sphinxcodec.DecodedPacket) (*IncomingPacket, error) {
	exit, err := sphinxcodec.DecodeExitPayload(decoded.PlainText)
	if err != nil {
		return nil, fmt.Errorf("%w: exit payload: %v", ErrUndecodable, err)
	}

	if !exit.IsApplicationData {
		acks, err := ticket.DecodeAcknowledgementBatch(exit.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: acknowledgement batch: %v", ErrUndecodable, err)
		}
		return &IncomingPacket{Kind: KindAcknowledgement, Acks: acks}, nil
	}

	// A SessionId pairs a pseudonym with a per-session tag; at the
	// decoder layer the only stable per-sender value available is the
	// SPHINX packet tag, so it doubles as the pseudonym under which
	// SURBs are filed (see DESIGN.md for this open-question decision).
	pseudonym := primitives.Pseudonym(decoded.Tag)

	if len(exit.Surbs) > 0 && d.surbs != nil {
		d.surbs.StoreSurbs(pseudonym, exit.Surbs)
	}

	return &IncomingPacket{
		Kind:             KindFinal,
		Payload:          exit.Payload,
		AckKey:           exit.AckKey,
		SenderPseudonym:  pseudonym,
		StoredSurbsCount: len(exit.Surbs),
		PacketSignals:    exit.PacketSignals,
	}, nil
}

// decodeForwarded runs the validate-and-replace sub-protocol: resolve
// hops, load the incoming channel, validate the incoming ticket
// against live channel state, mint the outgoing ticket.
func (d *Decoder) decodeForwarded(ctx context.Context, senderKey primitives.OffchainPublicKey, decoded *sphinxcodec.DecodedPacket) (*IncomingPacket, error) {
	previousHop, err := d.chainView.AddressForPacketKey(senderKey)
	if err != nil {
		return nil, fmt.Errorf("%w: previous hop: %v", ErrKeyNotFound, err)
	}

	incomingChannel, err := d.chainView.ChannelByParties(previousHop, d.cfg.MyAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: incoming channel %s->me: %v", ErrChannelNotFound, previousHop, err)
	}

	oracle, _ := d.chainView.Oracle()

	pathPosition := decoded.HopPayload.PathPosition
	minTicketPrice := scalePrice(oracle.TicketPrice, pathPosition)
	remainingBalance := incomingChannel.Balance.Sub(d.tracker.IncomingUnrealized(incomingChannel.Id))

	incomingTicket, err := ticket.DecodeTicket(decoded.HopPayload.Ticket)
	if err != nil {
		return nil, &TicketValidationError{PreviousHop: previousHop, Err: err}
	}

	validation := ticket.ValidationInput{
		Channel:          incomingChannel,
		MinTicketPrice:   minTicketPrice,
		MinWinProb:       oracle.MinWinProb,
		RemainingBalance: remainingBalance,
		DomainSeparator:  d.cfg.DomainSeparator,
	}

	if _, err := d.pool.Submit(ctx, func() (any, error) {
		return nil, ticket.Validate(incomingTicket, validation)
	}); err != nil {
		if errors.Is(err, cpupool.ErrOverload) {
			return nil, fmt.Errorf("%w: local overload", ErrUndecodable)
		}
		return nil, &TicketValidationError{PreviousHop: previousHop, Err: err}
	}

	outTicket, err := d.mintOutgoing(decoded, incomingTicket, pathPosition)
	if err != nil {
		return nil, err
	}

	d.tracker.TrackUnacknowledged(incomingChannel.Id, &ticket.UnacknowledgedTicket{
		Ticket:        incomingTicket,
		OwnHalfKey:    decoded.OwnHalfKey,
		IssuerAddress: previousHop,
	})

	outgoingTicketBytes, err := outTicket.Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: encode outgoing ticket: %v", ErrUndecodable, err)
	}

	outgoingData := make([]byte, 0, len(decoded.OutgoingData)+len(outgoingTicketBytes))
	outgoingData = append(outgoingData, decoded.OutgoingData...)
	outgoingData = append(outgoingData, outgoingTicketBytes...)

	return &IncomingPacket{
		Kind:            KindForward,
		NextHop:         decoded.NextHopKeyId,
		NextHopAddress:  decoded.NextHopAddress,
		OutgoingData:    outgoingData,
		AckChallenge:    outTicket.Challenge,
		ReceivedTicket:  ticket.UnacknowledgedTicket{Ticket: incomingTicket, OwnHalfKey: decoded.OwnHalfKey, IssuerAddress: previousHop},
		AckKeyPrevHop:   decoded.OwnHalfKey,
		IncomingChannel: incomingChannel.Id,
	}, nil
}

// mintOutgoing mints the outgoing ticket: a multi-hop packet requires
// the outgoing channel {me -> next_hop} and mints a ticket whose
// win_prob is at least as high as the one declared incoming (win
// probability may only increase along a path); a single-hop
// (path_position == 1) packet is a counterparty-only zero-hop ticket
// that never touches the tracker.
func (d *Decoder) mintOutgoing(decoded *sphinxcodec.DecodedPacket, incoming ticket.Ticket, pathPosition uint32) (ticket.Ticket, error) {
	winProb := incoming.WinProb
	if d.cfg.OutgoingWinProb > winProb {
		winProb = d.cfg.OutgoingWinProb
	}

	var out ticket.Ticket
	if pathPosition <= 1 {
		out = ticket.Ticket{
			ChannelId:    incoming.ChannelId,
			Amount:       d.cfg.OutgoingPrice,
			IndexOffset:  1,
			ChannelEpoch: incoming.ChannelEpoch,
			WinProb:      winProb,
		}
	} else {
		outgoingChannel, err := d.chainView.ChannelByParties(d.cfg.MyAddress, decoded.NextHopAddress)
		if err != nil {
			return ticket.Ticket{}, fmt.Errorf("%w: outgoing channel me->%s: %v", ErrChannelNotFound, decoded.NextHopAddress, err)
		}

		minted, err := d.tracker.CreateMultihopTicket(outgoingChannel, pathPosition, winProb, d.cfg.OutgoingPrice)
		if err != nil {
			// OutOfFunds surfaces verbatim.
			return ticket.Ticket{}, err
		}
		out = minted.Ticket
	}

	out.Challenge = decoded.NextChallenge
	if err := ticket.SignTicketWithDomain(&out, d.cfg.SignerKey, d.cfg.DomainSeparator); err != nil {
		return ticket.Ticket{}, fmt.Errorf("%w: sign outgoing ticket: %v", ErrUndecodable, err)
	}
	return out, nil
}

// scalePrice computes min_ticket_price = oracle.ticket_price *
// path_position.
func scalePrice(unit primitives.Balance, pathPosition uint32) primitives.Balance {
	total := primitives.Balance{}
	for i := uint32(0); i < pathPosition; i++ {
		total = total.Add(unit)
	}
	return total
}
