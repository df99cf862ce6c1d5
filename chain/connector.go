package chain

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/lightningnetwork/lnd/clock"
)

// readyTolerance is the fraction of the initial account/channel counts
// that must be observed before Connect fires ready
// step 4 ("tolerance absorbs in-flight state change between
// counter-read and subscribe").
const readyTolerance = 0.99

// Sequencer is the subset of chain/sequencer.Sequencer the connector
// depends on, kept as a narrow interface here to avoid an import cycle
// between chain and chain/sequencer (the sequencer itself depends on
// chain.TxClient).
type Sequencer interface {
	Start() error
	EnqueueTransaction(ctx context.Context, req TxRequest, confirmTimeout time.Duration) (*PendingTx, error)
}

// PendingTx is the two-layer future EnqueueTransaction returns: the
// outer layer resolves once a nonce has been assigned and the
// transaction broadcast; the inner layer resolves on confirmation or
// timeout.
type PendingTx struct {
	submitted chan error
	confirmed chan confirmResult
}

type confirmResult struct {
	receipt Receipt
	err     error
}

// NewPendingTx builds an empty PendingTx for a sequencer implementation
// to drive; exported so chain/sequencer can construct one without chain
// exposing its internal fields.
func NewPendingTx() *PendingTx {
	return &PendingTx{
		submitted: make(chan error, 1),
		confirmed: make(chan confirmResult, 1),
	}
}

// ResolveSubmitted is called by the sequencer once the transaction has
// been assigned a nonce and handed to the TxClient (or failed to be).
func (p *PendingTx) ResolveSubmitted(err error) {
	p.submitted <- err
}

// ResolveConfirmed is called by the sequencer once confirmation
// succeeds, fails, or times out.
func (p *PendingTx) ResolveConfirmed(receipt Receipt, err error) {
	p.confirmed <- confirmResult{receipt: receipt, err: err}
}

// Submitted blocks until the transaction has a nonce assigned (or the
// context is canceled).
func (p *PendingTx) Submitted(ctx context.Context) error {
	select {
	case err := <-p.submitted:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Confirmed blocks until the transaction is confirmed, fails, or times
// out.
func (p *PendingTx) Confirmed(ctx context.Context) (Receipt, error) {
	select {
	case res := <-p.confirmed:
		return res.receipt, res.err
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

// connState is the connector's own lifecycle, distinct from the ticket
// state machine in the ticket package.
type connState uint8

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateFailed
)

// Config carries the construction inputs: the confirmation timeout
// passed through to every sequenced transaction, and the flat fee
// charged for binding a new offchain key to an on-chain address.
type Config struct {
	TxConfirmTimeout time.Duration
	NewKeyBindingFee primitives.Balance
}

// Connector maintains the in-memory graph and caches, fed by an
// external Indexer, and exposes transaction submission via a
// Sequencer.
type Connector struct {
	cfg Config

	indexer  Indexer
	backend  *Backend
	sequencer Sequencer

	graph   *Graph
	caches  *Caches
	events  *Broadcaster
	clock   clock.Clock

	mu          sync.Mutex
	state       connState
	cancelSub   context.CancelFunc
	lastWinProb *float64

	keyIdMu  sync.Mutex
	keyIds   map[primitives.Address]primitives.KeyId
	nextKeyId primitives.KeyId
}

// NewConnector builds a Connector in the disconnected state.
func NewConnector(cfg Config, indexer Indexer, backend *Backend, sequencer Sequencer, clk clock.Clock) *Connector {
	return &Connector{
		cfg:       cfg,
		indexer:   indexer,
		backend:   backend,
		sequencer: sequencer,
		graph:     NewGraph(),
		caches:    NewCaches(100_000, clk),
		events:    NewBroadcaster(),
		clock:     clk,
		keyIds:    make(map[primitives.Address]primitives.KeyId),
	}
}

// Subscribe returns a channel of chain events; see Broadcaster.Subscribe.
func (c *Connector) Subscribe() (<-chan Event, int) {
	return c.events.Subscribe()
}

// Unsubscribe releases a subscription obtained from Subscribe.
func (c *Connector) Unsubscribe(id int) {
	c.events.Unsubscribe(id)
}

// Connect reads initial account/channel counts, opens the three
// subscription streams, and streams events until readyTolerance of
// both counts have been applied or timeout elapses.
func (c *Connector) Connect(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	if c.state != stateDisconnected {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.state = stateConnecting
	c.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelSub = cancel
	c.mu.Unlock()

	connectCtx, connectCancel := context.WithTimeout(subCtx, timeout)
	defer connectCancel()

	countAccounts, err := c.indexer.CountAccounts(connectCtx)
	if err != nil {
		cancel()
		c.fail()
		return err
	}
	countChannels, err := c.indexer.CountChannels(connectCtx)
	if err != nil {
		cancel()
		c.fail()
		return err
	}

	accountStream, err := c.indexer.SubscribeAccounts(subCtx)
	if err != nil {
		cancel()
		c.fail()
		return err
	}
	channelStream, err := c.indexer.SubscribeChannels(subCtx)
	if err != nil {
		cancel()
		c.fail()
		return err
	}
	valueStream, err := c.indexer.SubscribeValues(subCtx)
	if err != nil {
		cancel()
		c.fail()
		return err
	}

	accountTarget := uint64(math.Ceil(readyTolerance * float64(countAccounts)))
	channelTarget := uint64(math.Ceil(readyTolerance * float64(countChannels)))

	var appliedAccounts, appliedChannels uint64
	var counterMu sync.Mutex
	ready := make(chan struct{})
	var readyOnce sync.Once

	checkReady := func() {
		counterMu.Lock()
		a, ch := appliedAccounts, appliedChannels
		counterMu.Unlock()
		if a >= accountTarget && ch >= channelTarget {
			readyOnce.Do(func() { close(ready) })
		}
	}

	go func() {
		for {
			ev, err := accountStream.Next(subCtx)
			if err != nil {
				return
			}
			if applyErr := c.applyAccountEvent(ev); applyErr == nil {
				counterMu.Lock()
				appliedAccounts++
				counterMu.Unlock()
				checkReady()
			}
		}
	}()

	go func() {
		for {
			ev, err := channelStream.Next(subCtx)
			if err != nil {
				return
			}
			if applyErr := c.applyChannelEvent(ev); applyErr == nil {
				counterMu.Lock()
				appliedChannels++
				counterMu.Unlock()
				checkReady()
			}
		}
	}()

	go func() {
		for {
			ev, err := valueStream.Next(subCtx)
			if err != nil {
				return
			}
			c.applyValueEvent(ev)
		}
	}()

	// A zero-count stream is trivially ready.
	checkReady()

	select {
	case <-ready:
	case <-connectCtx.Done():
		cancel()
		c.fail()
		return ErrConnectionTimeout
	}

	c.mu.Lock()
	c.state = stateConnected
	c.mu.Unlock()

	return c.sequencer.Start()
}

func (c *Connector) fail() {
	c.mu.Lock()
	c.state = stateFailed
	c.mu.Unlock()
}

// Disconnect aborts the subscription goroutines and closes the
// broadcast channel "Drop aborts the subscription and
// closes the broadcast channel".
func (c *Connector) Disconnect() {
	c.mu.Lock()
	cancel := c.cancelSub
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.events.Close()
}

func (c *Connector) keyIdFor(addr primitives.Address) primitives.KeyId {
	c.keyIdMu.Lock()
	defer c.keyIdMu.Unlock()

	if id, ok := c.keyIds[addr]; ok {
		return id
	}
	id := c.nextKeyId
	c.nextKeyId++
	c.keyIds[addr] = id
	return id
}

func (c *Connector) applyAccountEvent(ev AccountEvent) error {
	entry := ev.Entry

	previous, err := c.backend.GetAccount(entry.ChainAddr)
	if err != nil {
		return err
	}
	if _, err := c.backend.InsertAccount(entry); err != nil {
		return err
	}

	c.caches.ChainToPacket.Put(entry.ChainAddr, entry.PacketKey)
	c.caches.PacketToChain.Put(entry.PacketKey, entry.ChainAddr)

	if (previous == nil || !previous.Announced) && entry.Announced {
		c.events.Publish(Event{Kind: EventAnnouncement, Account: &entry})
	}

	return nil
}

func (c *Connector) applyChannelEvent(ev ChannelEvent) error {
	entry := ev.Entry

	previous, err := c.backend.GetChannel(entry.Id)
	if err != nil {
		return err
	}
	if _, err := c.backend.InsertChannel(entry); err != nil {
		return err
	}

	srcKeyId := c.keyIdFor(entry.Source)
	dstKeyId := c.keyIdFor(entry.Destination)
	if entry.Status == primitives.ChannelClosed {
		c.graph.RemoveEdge(srcKeyId, dstKeyId)
	} else {
		c.graph.UpsertEdge(srcKeyId, dstKeyId, entry.Id)
	}

	c.caches.ByChannelId.Put(entry.Id, entry)
	c.caches.ByParties.Put(partyKey{Source: entry.Source, Destination: entry.Destination}, entry)

	if previous == nil {
		c.events.Publish(Event{Kind: EventChannelOpened, Channel: &entry})
		return nil
	}

	diff := diffChannel(previous, &entry)
	if diff.BalanceChanged {
		kind := EventChannelBalanceDecreased
		if diff.BalanceIncreased {
			kind = EventChannelBalanceIncreased
		}
		c.events.Publish(Event{Kind: kind, Channel: &entry})
	}
	if diff.StatusChangedTo != nil {
		switch *diff.StatusChangedTo {
		case primitives.ChannelPendingToClose:
			c.events.Publish(Event{Kind: EventChannelClosing, Channel: &entry})
		case primitives.ChannelClosed:
			c.events.Publish(Event{Kind: EventChannelClosed, Channel: &entry})
		}
	}
	if diff.TicketIndexIncreased {
		c.events.Publish(Event{Kind: EventTicketRedeemed, Channel: &entry})
	}

	return nil
}

func (c *Connector) applyValueEvent(ev ValueEvent) {
	current, _ := c.caches.Values.Get(valueCacheKey{})

	if ev.TicketPrice != nil {
		current.TicketPrice = *ev.TicketPrice
		current.CachedAt = c.clock.Now()
		c.caches.Values.Put(valueCacheKey{}, current)
		c.events.Publish(Event{Kind: EventTicketPriceChanged})
	}

	if ev.MinWinProb != nil {
		prevProb := c.lastWinProb
		newProb := *ev.MinWinProb
		current.MinWinProb = newProb
		current.CachedAt = c.clock.Now()
		c.caches.Values.Put(valueCacheKey{}, current)
		c.lastWinProb = &newProb

		if prevProb != nil {
			kind := EventWinningProbabilityDecreased
			if newProb > *prevProb {
				kind = EventWinningProbabilityIncreased
			}
			c.events.Publish(Event{Kind: kind})
		}
	}
}

// ChannelByParties resolves a channel by its (source, destination)
// chain addresses, falling through from the parties cache to the
// channel-id cache via the graph edge "Path
// resolution".
func (c *Connector) ChannelByParties(source, destination primitives.Address) (ChannelEntry, error) {
	if entry, ok := c.caches.ByParties.Get(partyKey{Source: source, Destination: destination}); ok {
		return entry, nil
	}

	srcKeyId := c.keyIdFor(source)
	dstKeyId := c.keyIdFor(destination)
	if _, ok := c.graph.HasEdge(srcKeyId, dstKeyId); !ok {
		return ChannelEntry{}, ErrChannelNotFound
	}

	id := primitives.NewChannelId(source, destination)
	if entry, ok := c.caches.ByChannelId.Get(id); ok {
		return entry, nil
	}

	entry, err := c.backend.GetChannel(id)
	if err != nil {
		return ChannelEntry{}, err
	}
	if entry == nil {
		return ChannelEntry{}, ErrChannelNotFound
	}
	return *entry, nil
}

// PacketKeyForAddress resolves a chain address to its announced
// offchain (packet) key, falling through from the cache to the
// backend "cache coherence".
func (c *Connector) PacketKeyForAddress(addr primitives.Address) (primitives.OffchainPublicKey, error) {
	if key, ok := c.caches.ChainToPacket.Get(addr); ok {
		return key, nil
	}

	entry, err := c.backend.GetAccount(addr)
	if err != nil {
		return primitives.OffchainPublicKey{}, err
	}
	if entry == nil {
		return primitives.OffchainPublicKey{}, ErrKeyNotFound
	}

	c.caches.ChainToPacket.Put(addr, entry.PacketKey)
	c.caches.PacketToChain.Put(entry.PacketKey, addr)
	return entry.PacketKey, nil
}

// AddressForPacketKey is the reverse of PacketKeyForAddress, used by
// the packet decoder to resolve the previous-hop and next-hop chain
// addresses from the offchain keys embedded in a SPHINX header. Unlike
// the forward direction the backend carries no secondary index keyed
// by packet key, so a cache miss here is reported as ErrKeyNotFound
// rather than falling through to a backend scan.
func (c *Connector) AddressForPacketKey(key primitives.OffchainPublicKey) (primitives.Address, error) {
	if addr, ok := c.caches.PacketToChain.Get(key); ok {
		return addr, nil
	}
	return primitives.Address{}, ErrKeyNotFound
}

// Oracle returns the cached ticket-price / minimum-winning-probability
// pair the packet decoder needs for ticket validation. ok is false if
// neither value has ever been observed (the value cache's absolute TTL
// has not yet been primed, or has expired).
func (c *Connector) Oracle() (OracleValues, bool) {
	return c.caches.Values.Get(valueCacheKey{})
}

// ChannelById resolves a channel by its id, falling through from the
// channel-id cache to the backend.
func (c *Connector) ChannelById(id primitives.ChannelId) (ChannelEntry, error) {
	if entry, ok := c.caches.ByChannelId.Get(id); ok {
		return entry, nil
	}

	entry, err := c.backend.GetChannel(id)
	if err != nil {
		return ChannelEntry{}, err
	}
	if entry == nil {
		return ChannelEntry{}, ErrChannelNotFound
	}
	return *entry, nil
}

// SendTx delegates to the Sequencer "Transaction
// submission is delegated to the Sequencer".
func (c *Connector) SendTx(ctx context.Context, req TxRequest) (*PendingTx, error) {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state != stateConnected {
		return nil, ErrInvalidState
	}
	return c.sequencer.EnqueueTransaction(ctx, req, c.cfg.TxConfirmTimeout)
}
