package ticket

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/hoprnet/hopr-relay-core/chain"
	"github.com/hoprnet/hopr-relay-core/primitives"
	"github.com/stretchr/testify/require"
)

func signedTestTicket(t *testing.T, priv *btcec.PrivateKey, amount uint64, index uint64, epoch uint32, winProb float64) Ticket {
	t.Helper()

	tk := Ticket{
		Amount:       primitives.NewBalance(amount),
		Index:        index,
		IndexOffset:  1,
		ChannelEpoch: epoch,
		WinProb:      winProb,
	}
	require.NoError(t, SignTicketWithDomain(&tk, priv, [32]byte{}))
	return tk
}

func TestVerifySignatureAcceptsOwnSignature(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	tk := signedTestTicket(t, priv, 5, 1, 1, 1.0)
	signer := addressFromPubKey(priv.PubKey())

	require.NoError(t, VerifySignature(tk, [32]byte{}, signer))
}

func TestVerifySignatureRejectsWrongSigner(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	tk := signedTestTicket(t, priv, 5, 1, 1, 1.0)

	var wrong primitives.Address
	wrong[0] = 0xff

	require.Error(t, VerifySignature(tk, [32]byte{}, wrong))
}

func TestValidateRejectsLowAmount(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	signer := addressFromPubKey(priv.PubKey())

	tk := signedTestTicket(t, priv, 4, 1, 1, 1.0)

	channel := chain.ChannelEntry{Source: signer, Epoch: 1, Balance: primitives.NewBalance(100)}
	err = Validate(tk, ValidationInput{
		Channel:          channel,
		MinTicketPrice:   primitives.NewBalance(5),
		MinWinProb:       1.0,
		RemainingBalance: primitives.NewBalance(100),
	})
	require.ErrorIs(t, err, ErrTicketValidation)
}

func TestValidateAcceptsWinningTicket(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	signer := addressFromPubKey(priv.PubKey())

	tk := signedTestTicket(t, priv, 5, 1, 1, 1.0)

	channel := chain.ChannelEntry{Source: signer, Epoch: 1, Balance: primitives.NewBalance(100)}
	err = Validate(tk, ValidationInput{
		Channel:          channel,
		MinTicketPrice:   primitives.NewBalance(5),
		MinWinProb:       1.0,
		RemainingBalance: primitives.NewBalance(100),
	})
	require.NoError(t, err)
}

func TestIsWinningAtProbabilityOneAlwaysWins(t *testing.T) {
	tk := Ticket{WinProb: 1.0}
	var resp [32]byte
	resp[0] = 0xaa
	require.True(t, IsWinning(tk, resp))
}

func TestIsWinningAtProbabilityZeroNeverWins(t *testing.T) {
	tk := Ticket{WinProb: 0}
	var resp [32]byte
	resp[0] = 0xaa
	require.False(t, IsWinning(tk, resp))
}

func TestTrackerAcknowledgeWinningTicket(t *testing.T) {
	tr := NewTracker()
	var channelId primitives.ChannelId
	channelId[0] = 0x7

	unack := &UnacknowledgedTicket{
		Ticket:     Ticket{ChannelId: channelId, Amount: primitives.NewBalance(5), Index: 3, WinProb: 1.0},
		OwnHalfKey: [32]byte{1},
	}
	tr.TrackUnacknowledged(channelId, unack)

	ack, winning, err := tr.Acknowledge(channelId, 3, [32]byte{2})
	require.NoError(t, err)
	require.True(t, winning)
	require.NotNil(t, ack)
	require.Equal(t, primitives.NewBalance(5), tr.IncomingUnrealized(channelId))
}

func TestTrackerAcknowledgeUnknownIndex(t *testing.T) {
	tr := NewTracker()
	var channelId primitives.ChannelId

	_, _, err := tr.Acknowledge(channelId, 99, [32]byte{})
	require.Error(t, err)
}
