package chain

import (
	"encoding/binary"

	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/lightningnetwork/lnd/kvdb"
)

// Top-level buckets, mirroring channeldb's bucket layout
// (nodeBucket/edgeBucket/edgeIndexBucket) adapted to the account/
// channel/key-id schema this connector needs.
var (
	accountBucket    = []byte("hopr-accounts")
	channelBucket    = []byte("hopr-channels")
	keyIdIndexBucket = []byte("hopr-keyid-index")
)

// Backend is the row-oriented key/value store the connector persists
// into. Concrete instances are backed by
// github.com/lightningnetwork/lnd/kvdb (a swappable bolt/etcd/postgres
// abstraction), but any kvdb.Backend works.
type Backend struct {
	db kvdb.Backend
}

// NewBackend wraps an already-open kvdb.Backend, creating the
// top-level buckets this package needs if they don't yet exist.
func NewBackend(db kvdb.Backend) (*Backend, error) {
	err := kvdb.Update(db, func(tx kvdb.RwTx) error {
		for _, name := range [][]byte{accountBucket, channelBucket, keyIdIndexBucket} {
			if _, err := tx.CreateTopLevelBucket(name); err != nil {
				return err
			}
		}
		return nil
	}, func() {})
	if err != nil {
		return nil, err
	}

	return &Backend{db: db}, nil
}

// InsertAccount upserts an account entry, returning the previous value
// if one existed.
func (b *Backend) InsertAccount(entry AccountEntry) (*AccountEntry, error) {
	var previous *AccountEntry

	err := kvdb.Update(b.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(accountBucket)
		key := entry.ChainAddr[:]

		if raw := bucket.Get(key); raw != nil {
			prev, err := decodeAccount(raw)
			if err != nil {
				return err
			}
			previous = prev
		}

		encoded, err := encodeAccount(entry)
		if err != nil {
			return err
		}
		if err := bucket.Put(key, encoded); err != nil {
			return err
		}

		keyIdBucket := tx.ReadWriteBucket(keyIdIndexBucket)
		var keyIdBuf [4]byte
		binary.BigEndian.PutUint32(keyIdBuf[:], uint32(entry.KeyId))
		return keyIdBucket.Put(keyIdBuf[:], entry.ChainAddr[:])
	}, func() {})
	if err != nil {
		return nil, err
	}

	return previous, nil
}

// GetAccount looks up an account entry by chain address.
func (b *Backend) GetAccount(addr primitives.Address) (*AccountEntry, error) {
	var result *AccountEntry

	err := kvdb.View(b.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(accountBucket)
		raw := bucket.Get(addr[:])
		if raw == nil {
			return nil
		}
		decoded, err := decodeAccount(raw)
		if err != nil {
			return err
		}
		result = decoded
		return nil
	}, func() {})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// InsertChannel upserts a channel entry, returning the previous value
// if one existed.
func (b *Backend) InsertChannel(entry ChannelEntry) (*ChannelEntry, error) {
	var previous *ChannelEntry

	err := kvdb.Update(b.db, func(tx kvdb.RwTx) error {
		bucket := tx.ReadWriteBucket(channelBucket)
		key := entry.Id[:]

		if raw := bucket.Get(key); raw != nil {
			prev, err := decodeChannel(raw)
			if err != nil {
				return err
			}
			previous = prev
		}

		encoded, err := encodeChannel(entry)
		if err != nil {
			return err
		}
		return bucket.Put(key, encoded)
	}, func() {})
	if err != nil {
		return nil, err
	}

	return previous, nil
}

// GetChannel looks up a channel entry by id.
func (b *Backend) GetChannel(id primitives.ChannelId) (*ChannelEntry, error) {
	var result *ChannelEntry

	err := kvdb.View(b.db, func(tx kvdb.RTx) error {
		bucket := tx.ReadBucket(channelBucket)
		raw := bucket.Get(id[:])
		if raw == nil {
			return nil
		}
		decoded, err := decodeChannel(raw)
		if err != nil {
			return err
		}
		result = decoded
		return nil
	}, func() {})
	if err != nil {
		return nil, err
	}

	return result, nil
}
