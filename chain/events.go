package chain

import "sync"

// EventKind enumerates the chain events emitted on the broadcast
// channel
type EventKind uint8

const (
	EventAnnouncement EventKind = iota
	EventChannelOpened
	EventChannelClosing
	EventChannelClosed
	EventChannelBalanceIncreased
	EventChannelBalanceDecreased
	EventTicketRedeemed
	EventTicketPriceChanged
	EventWinningProbabilityIncreased
	EventWinningProbabilityDecreased
	EventNodeSafeRegistered
)

func (k EventKind) String() string {
	switch k {
	case EventAnnouncement:
		return "Announcement"
	case EventChannelOpened:
		return "ChannelOpened"
	case EventChannelClosing:
		return "ChannelClosing"
	case EventChannelClosed:
		return "ChannelClosed"
	case EventChannelBalanceIncreased:
		return "ChannelBalanceIncreased"
	case EventChannelBalanceDecreased:
		return "ChannelBalanceDecreased"
	case EventTicketRedeemed:
		return "TicketRedeemed"
	case EventTicketPriceChanged:
		return "TicketPriceChanged"
	case EventWinningProbabilityIncreased:
		return "WinningProbabilityIncreased"
	case EventWinningProbabilityDecreased:
		return "WinningProbabilityDecreased"
	case EventNodeSafeRegistered:
		return "NodeSafeRegistered"
	default:
		return "Unknown"
	}
}

// Event is a single chain-state-change notification.
type Event struct {
	Kind    EventKind
	Account *AccountEntry
	Channel *ChannelEntry
}

// broadcastCapacity is the capacity of every subscriber's event channel,
//
const broadcastCapacity = 1024

// Broadcaster fans chain events out to any number of subscribers with a
// drop-oldest, non-blocking overflow policy: a slow subscriber loses the
// oldest buffered events rather than stalling the connector's event
// mutators. This mirrors the buffered, MUST-be-buffered channel
// contracts of chainntfs's ConfirmationEvent/SpendEvent/BlockEpochEvent,
// generalized here to support multiple, independently-paced
// subscribers.
//
// A subscriber that falls behind can always recover full steady-state
// knowledge by re-reading the caches, since every underlying update is
// an insert-or-replace, which is what makes the caches self-healing.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
	done bool
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber and returns its event channel and
// an id used to Unsubscribe later.
func (b *Broadcaster) Subscribe() (<-chan Event, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, broadcastCapacity)
	id := b.next
	b.next++
	if b.done {
		close(ch)
		return ch, id
	}
	b.subs[id] = ch
	return ch, id
}

// Unsubscribe removes and closes a subscriber's channel.
func (b *Broadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish fans out an event to every current subscriber. If a
// subscriber's buffer is full, the oldest buffered event for that
// subscriber is dropped to make room — overflow is silent and
// non-blocking (await_active = false).
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Drop the oldest buffered event, then retry once.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Close shuts down the broadcaster, closing every subscriber channel and
// rejecting future subscriptions: dropping the connector aborts the
// subscription and closes the broadcast channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return
	}
	b.done = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
