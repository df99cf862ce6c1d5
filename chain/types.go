package chain

import (
	"time"

	"github.com/hoprnet/hopr-relay-core/primitives"
)

// AccountEntry mirrors an on-chain account record as indexed from the
// node-registration contract. An account becomes "announced" once its
// packet key has been published and is therefore usable as a mix relay.
type AccountEntry struct {
	ChainAddr   primitives.Address
	PacketKey   primitives.OffchainPublicKey
	KeyId       primitives.KeyId
	Announced   bool
	SafeAddress *primitives.Address
}

// ChannelEntry mirrors an on-chain payment-channel record.
//
// Invariants (enforced by callers applying events, not by this type
// itself, which is a plain data holder):
//   - Source != Destination
//   - Status == ChannelOpen implies Balance >= 0 (Balance is
//     unsigned, so this always holds by construction)
//   - TicketIndex is monotonically non-decreasing within a fixed Epoch
type ChannelEntry struct {
	Id          primitives.ChannelId
	Source      primitives.Address
	Destination primitives.Address
	Balance     primitives.Balance
	TicketIndex uint64
	Status      primitives.ChannelStatus
	Epoch       uint32

	// ClosureAt is set only when Status == ChannelPendingToClose; it
	// is the on-chain timestamp after which the closure may be
	// finalized.
	ClosureAt *time.Time
}

// Diff describes which fields changed between two observations of the
// same channel, driving which chain events get broadcast.
type Diff struct {
	BalanceChanged     bool
	BalanceIncreased    bool
	StatusChangedTo     *primitives.ChannelStatus
	EpochBumped         bool
	TicketIndexIncreased bool
}

// diffChannel computes the Diff between a previous and current
// observation of the same channel. prev == nil means the channel was
// not previously known (a newly opened channel).
func diffChannel(prev, cur *ChannelEntry) Diff {
	var d Diff
	if prev == nil {
		return d
	}

	if prev.Balance.Cmp(cur.Balance) != 0 {
		d.BalanceChanged = true
		d.BalanceIncreased = cur.Balance.Cmp(prev.Balance) > 0
	}
	if prev.Status != cur.Status {
		s := cur.Status
		d.StatusChangedTo = &s
	}
	if cur.Epoch > prev.Epoch {
		d.EpochBumped = true
	}
	if cur.TicketIndex > prev.TicketIndex {
		d.TicketIndexIncreased = true
	}
	return d
}
