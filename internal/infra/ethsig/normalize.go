package ethsig

import (
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// CanonicalSignature is an (r, s) pair with s <= N/2.
type CanonicalSignature struct {
	R secp256k1.ModNScalar
	S secp256k1.ModNScalar
}

// Normalize folds s into the lower half of the group order. (r, s) and
// (r, N-s) verify for the same key, and flipping s also flips the y parity of
// the recovered point, so recovery must run on the normalized pair.
func Normalize(r, s secp256k1.ModNScalar) CanonicalSignature {
	if s.IsOverHalfOrder() {
		s.Negate()
	}
	return CanonicalSignature{R: r, S: s}
}

func (c CanonicalSignature) RBytes() [32]byte {
	return c.R.Bytes()
}

func (c CanonicalSignature) SBytes() [32]byte {
	return c.S.Bytes()
}

func (c CanonicalSignature) RHex() string {
	b := c.R.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}

func (c CanonicalSignature) SHex() string {
	b := c.S.Bytes()
	return "0x" + hex.EncodeToString(b[:])
}
