package chain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/hoprnet/hopr-relay-core/primitives"
)

// Fixed-width binary encodings for the two row types persisted by
// Backend. channeldb encodes most of its records with TLV (see
// tlv.Stream) but nodeBucket/edgeBucket entries are plain fixed-offset
// structs for the fields that are always present; these two records
// follow that simpler precedent since every field here is mandatory.

func encodeAccount(a AccountEntry) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(a.ChainAddr[:])
	buf.Write(a.PacketKey[:])
	if err := binary.Write(&buf, binary.BigEndian, uint32(a.KeyId)); err != nil {
		return nil, err
	}
	announced := byte(0)
	if a.Announced {
		announced = 1
	}
	buf.WriteByte(announced)

	if a.SafeAddress != nil {
		buf.WriteByte(1)
		buf.Write(a.SafeAddress[:])
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes(), nil
}

func decodeAccount(raw []byte) (*AccountEntry, error) {
	const minLen = primitives.AddressLength + primitives.OffchainPublicKeyLength + 4 + 1 + 1
	if len(raw) < minLen {
		return nil, fmt.Errorf("chain: short account record (%d bytes)", len(raw))
	}

	var a AccountEntry
	off := 0
	copy(a.ChainAddr[:], raw[off:off+primitives.AddressLength])
	off += primitives.AddressLength
	copy(a.PacketKey[:], raw[off:off+primitives.OffchainPublicKeyLength])
	off += primitives.OffchainPublicKeyLength
	a.KeyId = primitives.KeyId(binary.BigEndian.Uint32(raw[off : off+4]))
	off += 4
	a.Announced = raw[off] == 1
	off++

	hasSafe := raw[off] == 1
	off++
	if hasSafe {
		if len(raw) < off+primitives.AddressLength {
			return nil, fmt.Errorf("chain: truncated account record safe address")
		}
		var safe primitives.Address
		copy(safe[:], raw[off:off+primitives.AddressLength])
		a.SafeAddress = &safe
	}

	return &a, nil
}

func encodeChannel(c ChannelEntry) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(c.Id[:])
	buf.Write(c.Source[:])
	buf.Write(c.Destination[:])

	lo, hi := c.Balance.Raw()
	if err := binary.Write(&buf, binary.BigEndian, lo); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, hi); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, c.TicketIndex); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(c.Status))
	if err := binary.Write(&buf, binary.BigEndian, c.Epoch); err != nil {
		return nil, err
	}

	if c.ClosureAt != nil {
		buf.WriteByte(1)
		if err := binary.Write(&buf, binary.BigEndian, c.ClosureAt.Unix()); err != nil {
			return nil, err
		}
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes(), nil
}

func decodeChannel(raw []byte) (*ChannelEntry, error) {
	r := bytes.NewReader(raw)
	var c ChannelEntry

	if _, err := readFull(r, c.Id[:]); err != nil {
		return nil, err
	}
	if _, err := readFull(r, c.Source[:]); err != nil {
		return nil, err
	}
	if _, err := readFull(r, c.Destination[:]); err != nil {
		return nil, err
	}

	var lo uint64
	var hi uint32
	if err := binary.Read(r, binary.BigEndian, &lo); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &hi); err != nil {
		return nil, err
	}
	c.Balance = primitives.BalanceFromRaw(lo, hi)

	if err := binary.Read(r, binary.BigEndian, &c.TicketIndex); err != nil {
		return nil, err
	}

	statusByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	c.Status = primitives.ChannelStatus(statusByte)

	if err := binary.Read(r, binary.BigEndian, &c.Epoch); err != nil {
		return nil, err
	}

	hasClosure, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if hasClosure == 1 {
		var unixSec int64
		if err := binary.Read(r, binary.BigEndian, &unixSec); err != nil {
			return nil, err
		}
		t := time.Unix(unixSec, 0).UTC()
		c.ClosureAt = &t
	}

	return &c, nil
}

func readFull(r *bytes.Reader, dst []byte) (int, error) {
	n, err := r.Read(dst)
	if err == nil && n != len(dst) {
		err = fmt.Errorf("chain: short read, wanted %d got %d", len(dst), n)
	}
	return n, err
}
