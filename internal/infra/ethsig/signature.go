package ethsig

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// FromDER runs decode, normalize, resolve and encode in one step.
func FromDER(der, digest []byte, expected Expected, enc Encoder, chainID *big.Int) (domain.Signature, error) {
	r, s, err := DecodeDER(der)
	if err != nil {
		return domain.Signature{}, err
	}
	canonical := Normalize(r, s)
	id, err := ResolveRecoveryID(digest, canonical, expected)
	if err != nil {
		return domain.Signature{}, err
	}
	v, err := enc.Encode(id, chainID)
	if err != nil {
		return domain.Signature{}, err
	}
	out := domain.Signature{R: canonical.RHex(), S: canonical.SHex(), V: v}
	out.Sig = Concat(canonical, v)
	return out, nil
}

// Concat renders 0x || r || s || v. v takes as many bytes as it needs, one
// for the legacy and raw conventions.
func Concat(sig CanonicalSignature, v uint64) string {
	r := sig.R.Bytes()
	s := sig.S.Bytes()
	vb := new(big.Int).SetUint64(v).Bytes()
	if len(vb) == 0 {
		vb = []byte{0}
	}
	return "0x" + hex.EncodeToString(r[:]) + hex.EncodeToString(s[:]) + hex.EncodeToString(vb)
}

// SplitConcat parses the Concat form back into r, s and v.
func SplitConcat(sig string) (r, s [32]byte, v uint64, err error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil || len(raw) < 65 || len(raw) > 72 {
		return r, s, 0, fmt.Errorf("%w: bad concatenated signature", domain.ErrMalformedSignature)
	}
	copy(r[:], raw[:32])
	copy(s[:], raw[32:64])
	v = new(big.Int).SetBytes(raw[64:]).Uint64()
	return r, s, v, nil
}

// ParseHex32 reads a 0x-prefixed or bare 32-byte hex value.
func ParseHex32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != 32 {
		return out, fmt.Errorf("expected 32 hex bytes")
	}
	copy(out[:], raw)
	return out, nil
}

// Recover returns the address that produced (r, s, v) over digest. High-s
// signatures are refused.
func Recover(digest []byte, r, s [32]byte, v uint64, chainID *big.Int) (Address, error) {
	id, err := RecoveryIDFromV(v, chainID)
	if err != nil {
		return Address{}, err
	}
	var rs, ss secp256k1.ModNScalar
	if overflow := rs.SetBytes(&r); overflow != 0 || rs.IsZero() {
		return Address{}, fmt.Errorf("%w: r out of range", domain.ErrMalformedSignature)
	}
	if overflow := ss.SetBytes(&s); overflow != 0 || ss.IsZero() {
		return Address{}, fmt.Errorf("%w: s out of range", domain.ErrMalformedSignature)
	}
	if ss.IsOverHalfOrder() {
		return Address{}, fmt.Errorf("%w: s is not canonical", domain.ErrMalformedSignature)
	}
	pub, err := RecoverPublicKey(digest, CanonicalSignature{R: rs, S: ss}, id)
	if err != nil {
		return Address{}, err
	}
	return AddressFromPublicKey(pub), nil
}
