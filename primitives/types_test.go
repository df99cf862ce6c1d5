package primitives

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressFromBytes(t *testing.T) {
	raw := make([]byte, AddressLength)
	for i := range raw {
		raw[i] = byte(i)
	}

	addr, err := AddressFromBytes(raw)
	require.NoError(t, err)
	require.Equal(t, raw, addr[:])

	_, err = AddressFromBytes(raw[:AddressLength-1])
	require.Error(t, err)
}

func TestNewChannelIdDeterministic(t *testing.T) {
	var src, dst Address
	src[0] = 0x01
	dst[0] = 0x02

	id1 := NewChannelId(src, dst)
	id2 := NewChannelId(src, dst)
	require.Equal(t, id1, id2)

	reversed := NewChannelId(dst, src)
	require.NotEqual(t, id1, reversed, "channels are uni-directional")
}

func TestBalanceArithmetic(t *testing.T) {
	a := NewBalance(100)
	b := NewBalance(40)

	require.Equal(t, uint64(140), a.Add(b).Uint64())
	require.Equal(t, uint64(60), a.Sub(b).Uint64())
	require.True(t, b.Sub(a).IsZero(), "subtraction saturates at zero")
	require.Equal(t, 1, a.Cmp(b))
	require.Equal(t, -1, b.Cmp(a))
	require.Equal(t, 0, a.Cmp(NewBalance(100)))
}
