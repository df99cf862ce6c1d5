package chain

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/lightningnetwork/lnd/kvdb"
	"github.com/stretchr/testify/require"
)

func makeTestBackend(t *testing.T) *Backend {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "hopr-test.db")
	db, err := kvdb.Create(kvdb.BoltBackendName, dbPath, true, kvdb.DefaultDBTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	backend, err := NewBackend(db)
	require.NoError(t, err)
	return backend
}

func TestBackendAccountRoundTrip(t *testing.T) {
	b := makeTestBackend(t)

	var addr primitives.Address
	addr[0] = 0x01
	var packetKey primitives.OffchainPublicKey
	packetKey[0] = 0x02

	entry := AccountEntry{
		ChainAddr: addr,
		PacketKey: packetKey,
		KeyId:     7,
		Announced: true,
	}

	prev, err := b.InsertAccount(entry)
	require.NoError(t, err)
	require.Nil(t, prev)

	got, err := b.GetAccount(addr)
	require.NoError(t, err)
	require.Equal(t, entry, *got)

	entry.Announced = false
	prev, err = b.InsertAccount(entry)
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.True(t, prev.Announced)
}

func TestBackendChannelRoundTrip(t *testing.T) {
	b := makeTestBackend(t)

	var src, dst primitives.Address
	src[0], dst[0] = 0x01, 0x02
	id := primitives.NewChannelId(src, dst)

	entry := ChannelEntry{
		Id:          id,
		Source:      src,
		Destination: dst,
		Balance:     primitives.NewBalance(1000),
		TicketIndex: 3,
		Status:      primitives.ChannelOpen,
		Epoch:       1,
	}

	_, err := b.InsertChannel(entry)
	require.NoError(t, err)

	got, err := b.GetChannel(id)
	require.NoError(t, err)
	require.Equal(t, entry, *got)

	closureAt := time.Unix(1_700_000_000, 0).UTC()
	entry.Status = primitives.ChannelPendingToClose
	entry.ClosureAt = &closureAt

	_, err = b.InsertChannel(entry)
	require.NoError(t, err)

	got, err = b.GetChannel(id)
	require.NoError(t, err)
	require.Equal(t, primitives.ChannelPendingToClose, got.Status)
	require.NotNil(t, got.ClosureAt)
	require.True(t, closureAt.Equal(*got.ClosureAt))
}

func TestBackendMissingChannel(t *testing.T) {
	b := makeTestBackend(t)

	var id primitives.ChannelId
	id[0] = 0xFF

	got, err := b.GetChannel(id)
	require.NoError(t, err)
	require.Nil(t, got)
}
