package ethsig

import (
	"crypto/subtle"
	"fmt"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// compactMagic is the header offset ecdsa.RecoverCompact expects for an
// uncompressed public key.
const compactMagic = 27

// RecoveryID selects which candidate point an (r, s) pair recovers to.
type RecoveryID uint8

// Expected is the signer a recovered key is compared against. With only an
// address, ids 0 and 1 are searched; with the full public key, ids 0..3.
type Expected struct {
	address    Address
	publicKey  []byte
	candidates int
}

func ExpectAddress(a Address) Expected {
	return Expected{address: a, candidates: 2}
}

// ExpectPublicKey accepts a compressed or uncompressed secp256k1 point.
func ExpectPublicKey(pub []byte) (Expected, error) {
	key, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return Expected{}, fmt.Errorf("%w: %v", domain.ErrInvalidPublicKey, err)
	}
	return Expected{publicKey: key.SerializeUncompressed(), candidates: 4}, nil
}

func (e Expected) matches(pub *secp256k1.PublicKey) bool {
	if e.publicKey != nil {
		return subtle.ConstantTimeCompare(pub.SerializeUncompressed(), e.publicKey) == 1
	}
	got := AddressFromPublicKey(pub)
	return subtle.ConstantTimeCompare(got[:], e.address[:]) == 1
}

// ResolveRecoveryID tries each candidate id in ascending order and returns the
// first one whose recovered key matches expected.
func ResolveRecoveryID(digest []byte, sig CanonicalSignature, expected Expected) (RecoveryID, error) {
	if len(digest) != 32 {
		return 0, fmt.Errorf("%w: expected 32 bytes, got %d", domain.ErrInvalidDigest, len(digest))
	}
	if expected.candidates == 0 {
		return 0, fmt.Errorf("%w: no expected signer", domain.ErrRecoveryImpossible)
	}
	for id := 0; id < expected.candidates; id++ {
		pub, err := recoverCompact(digest, sig, RecoveryID(id))
		if err != nil {
			continue
		}
		if expected.matches(pub) {
			return RecoveryID(id), nil
		}
	}
	return 0, domain.ErrRecoveryImpossible
}

// RecoverPublicKey recovers the signer key for one specific id.
func RecoverPublicKey(digest []byte, sig CanonicalSignature, id RecoveryID) (*secp256k1.PublicKey, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("%w: expected 32 bytes, got %d", domain.ErrInvalidDigest, len(digest))
	}
	if id > 3 {
		return nil, fmt.Errorf("%w: recovery id %d", domain.ErrMalformedSignature, id)
	}
	pub, err := recoverCompact(digest, sig, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRecoveryImpossible, err)
	}
	return pub, nil
}

func recoverCompact(digest []byte, sig CanonicalSignature, id RecoveryID) (*secp256k1.PublicKey, error) {
	var compact [65]byte
	compact[0] = compactMagic + byte(id)
	r := sig.R.Bytes()
	s := sig.S.Bytes()
	copy(compact[1:33], r[:])
	copy(compact[33:], s[:])
	pub, _, err := ecdsa.RecoverCompact(compact[:], digest)
	return pub, err
}
