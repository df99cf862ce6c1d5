package ticket

import (
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/hoprnet/hopr-relay-core/chain"
	"github.com/hoprnet/hopr-relay-core/primitives"
	"golang.org/x/crypto/sha3"
)

// SigningHash derives the deterministic hash a ticket's signature
// covers: keccak256 of every wire field except the signature itself,
// concatenated with the caller's domain separator. The domain
// separator binds a ticket to one deployment of the channels contract,
// mirroring the "domain_separator" input to verification.
func SigningHash(t Ticket, domainSeparator [32]byte) [32]byte {
	digest := sha3.NewLegacyKeccak256()
	digest.Write(t.ChannelId[:])

	lo, hi := t.Amount.Raw()
	var amountBuf [12]byte
	amountBuf[0], amountBuf[1], amountBuf[2], amountBuf[3] = byte(hi>>24), byte(hi>>16), byte(hi>>8), byte(hi)
	for i := 0; i < 8; i++ {
		amountBuf[4+i] = byte(lo >> uint(56-8*i))
	}
	digest.Write(amountBuf[:])

	var idxBuf [6]byte
	for i := 0; i < 6; i++ {
		idxBuf[i] = byte(t.Index >> uint(40-8*i))
	}
	digest.Write(idxBuf[:])

	var offBuf [4]byte
	offBuf[0], offBuf[1], offBuf[2], offBuf[3] = byte(t.IndexOffset>>24), byte(t.IndexOffset>>16), byte(t.IndexOffset>>8), byte(t.IndexOffset)
	digest.Write(offBuf[:])

	var epochBuf [3]byte
	epochBuf[0], epochBuf[1], epochBuf[2] = byte(t.ChannelEpoch>>16), byte(t.ChannelEpoch>>8), byte(t.ChannelEpoch)
	digest.Write(epochBuf[:])

	digest.Write(encodeWinProb(t.WinProb))
	digest.Write(t.Challenge[:])
	digest.Write(domainSeparator[:])

	var out [32]byte
	copy(out[:], digest.Sum(nil))
	return out
}

// SignTicket signs t's SigningHash with priv and writes the resulting
// compact (r,s) signature into t.Signature. The wire format has no room
// for an explicit recovery id (the signature field is a fixed 64
// bytes), so VerifySignature recovers the signer by trying both
// recovery candidates, the same trade-off the original Ethereum-style
// ticket
// format makes when space-constrained.
func SignTicket(t *Ticket, priv *btcec.PrivateKey) error {
	// A zero-value domain separator here would make every signature
	// fail to bind to the caller's intended deployment; callers that
	// care about cross-deployment replay should call SignTicketWithDomain.
	return SignTicketWithDomain(t, priv, [32]byte{})
}

// SignTicketWithDomain is SignTicket with an explicit domain separator.
func SignTicketWithDomain(t *Ticket, priv *btcec.PrivateKey, domainSeparator [32]byte) error {
	hash := SigningHash(*t, domainSeparator)

	sig := ecdsa.Sign(priv, hash[:])
	der := sig.Serialize()
	r, s, err := parseDERSignature(der)
	if err != nil {
		return fmt.Errorf("ticket: sign: %w", err)
	}

	var out Signature
	r.FillBytes(out[0:32])
	s.FillBytes(out[32:64])
	t.Signature = out
	return nil
}

// VerifySignature checks that t.Signature is a valid signature over
// SigningHash(t, domainSeparator) produced by the private key whose
// keccak-derived on-chain address equals expectedSigner, binding the
// ticket to the previous hop's address.
func VerifySignature(t Ticket, domainSeparator [32]byte, expectedSigner primitives.Address) error {
	hash := SigningHash(t, domainSeparator)

	r := new(big.Int).SetBytes(t.Signature[0:32])
	s := new(big.Int).SetBytes(t.Signature[32:64])

	for _, recID := range [...]byte{0, 1} {
		compact := make([]byte, 65)
		compact[0] = 27 + recID
		r.FillBytes(compact[1:33])
		s.FillBytes(compact[33:65])

		pub, _, err := ecdsa.RecoverCompact(compact, hash[:])
		if err != nil {
			continue
		}

		addr := addressFromPubKey(pub)
		if addr == expectedSigner {
			return nil
		}
	}

	return fmt.Errorf("ticket: signature does not recover to %s", expectedSigner)
}

// AddressFromPublicKey derives the on-chain address for a chain
// keypair's public key: keccak256 of the uncompressed coordinates, low
// 20 bytes. Exported for callers (tests, the packet decoder) that need
// to compute a signer's expected on-chain address without holding its
// private key.
func AddressFromPublicKey(pub *btcec.PublicKey) primitives.Address {
	return addressFromPubKey(pub)
}

// addressFromPubKey derives the on-chain address the same way
// primitives.NewChannelId derives channel ids: keccak256 of the
// uncompressed public key's coordinates, low 20 bytes.
func addressFromPubKey(pub *btcec.PublicKey) primitives.Address {
	uncompressed := pub.SerializeUncompressed()[1:] // drop the 0x04 prefix

	digest := sha3.NewLegacyKeccak256()
	digest.Write(uncompressed)
	sum := digest.Sum(nil)

	var addr primitives.Address
	copy(addr[:], sum[len(sum)-primitives.AddressLength:])
	return addr
}

// parseDERSignature extracts (r,s) from a DER-encoded ECDSA signature,
// avoiding a dependency on btcec's lower-level ASN.1 helpers for this
// one conversion.
func parseDERSignature(der []byte) (*big.Int, *big.Int, error) {
	// DER: 0x30 len 0x02 rlen r 0x02 slen s
	if len(der) < 8 || der[0] != 0x30 {
		return nil, nil, fmt.Errorf("malformed DER signature")
	}
	off := 2
	if der[off] != 0x02 {
		return nil, nil, fmt.Errorf("malformed DER signature: expected r marker")
	}
	off++
	rLen := int(der[off])
	off++
	r := new(big.Int).SetBytes(der[off : off+rLen])
	off += rLen

	if der[off] != 0x02 {
		return nil, nil, fmt.Errorf("malformed DER signature: expected s marker")
	}
	off++
	sLen := int(der[off])
	off++
	s := new(big.Int).SetBytes(der[off : off+sLen])

	return r, s, nil
}

// ValidationInput bundles the live channel state the validate-and-
// replace sub-protocol checks an incoming ticket against.
type ValidationInput struct {
	Channel          chain.ChannelEntry
	MinTicketPrice   primitives.Balance
	MinWinProb       float64
	RemainingBalance primitives.Balance
	DomainSeparator  [32]byte
}

// Validate runs every required check: the signature (binding the
// ticket to the channel's source address), the channel epoch, the
// ticket index against the channel's stored index, the
// amount against the minimum ticket price, the winning probability
// against the minimum, and the amount against the remaining balance.
// Any failure is wrapped in ErrTicketValidation so callers can branch
// on the error class without string matching.
func Validate(t Ticket, in ValidationInput) error {
	if err := VerifySignature(t, in.DomainSeparator, in.Channel.Source); err != nil {
		return fmt.Errorf("%w: signature: %v", ErrTicketValidation, err)
	}
	if t.ChannelEpoch != in.Channel.Epoch {
		return fmt.Errorf("%w: epoch %d != channel epoch %d", ErrTicketValidation, t.ChannelEpoch, in.Channel.Epoch)
	}
	if t.Index < in.Channel.TicketIndex {
		return fmt.Errorf("%w: stale index %d < channel index %d", ErrTicketValidation, t.Index, in.Channel.TicketIndex)
	}
	if t.Amount.Cmp(in.MinTicketPrice) < 0 {
		return fmt.Errorf("%w: amount %s below minimum price %s", ErrTicketValidation, t.Amount, in.MinTicketPrice)
	}
	if t.WinProb < in.MinWinProb {
		return fmt.Errorf("%w: win_prob %f below minimum %f", ErrTicketValidation, t.WinProb, in.MinWinProb)
	}
	if t.Amount.Cmp(in.RemainingBalance) > 0 {
		return fmt.Errorf("%w: amount %s exceeds remaining balance %s", ErrTicketValidation, t.Amount, in.RemainingBalance)
	}
	return nil
}

// winProbThreshold converts a [0,1] probability into the big-endian
// 256-bit threshold a VRF output must fall under to count as winning:
// floor(winProb * 2^256).
func winProbThreshold(winProb float64) *big.Int {
	f := new(big.Float).SetFloat64(winProb)
	max := new(big.Float).SetInt(new(big.Int).Lsh(big.NewInt(1), 256))
	f.Mul(f, max)
	out, _ := f.Int(nil)
	return out
}

// IsWinning reports whether a ticket is winning given the full response
// (the combination of both half-keys): "VRF(response,
// challenge) falls within win_prob * 2^256". The VRF itself is modeled
// here as keccak256(response || challenge) interpreted as a big-endian
// integer, the same construction this module's own secp256k1-based
// signing scheme uses elsewhere for deriving deterministic values from
// key material (hash-then-compare rather than a dedicated VRF curve
// proof, since the exact VRF construction is left unspecified).
func IsWinning(t Ticket, response [32]byte) bool {
	digest := sha3.NewLegacyKeccak256()
	digest.Write(response[:])
	digest.Write(t.Challenge[:])
	sum := digest.Sum(nil)

	val := new(big.Int).SetBytes(sum)
	return val.Cmp(winProbThreshold(t.WinProb)) < 0
}

// CombineHalfKeys derives the full response from a relay's own half-key
// and the counterparty's half-key revealed by an Acknowledgement.
func CombineHalfKeys(own, counterparty [32]byte) [32]byte {
	digest := sha3.NewLegacyKeccak256()
	digest.Write(own[:])
	digest.Write(counterparty[:])

	var out [32]byte
	copy(out[:], digest.Sum(nil))
	return out
}
