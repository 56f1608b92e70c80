package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"

	"github.com/ethereum/go-ethereum/accounts"
)

type DigestMode string

const (
	DigestEthPersonal DigestMode = "eth-personal"
	DigestSHA256      DigestMode = "sha256"
)

var errUnknownDigestMode = errors.New("unknown digest mode")

func ParseDigestMode(s string) (DigestMode, error) {
	switch DigestMode(s) {
	case "", DigestEthPersonal:
		return DigestEthPersonal, nil
	case DigestSHA256:
		return DigestSHA256, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownDigestMode, s)
	}
}

// Service turns claims into the 32-byte digest handed to the signer.
type Service struct {
	Mode DigestMode
}

// ClaimDigest returns the digest that gets signed for claim.
func (s *Service) ClaimDigest(claim domain.AuthProofClaim) ([32]byte, error) {
	var out [32]byte
	switch s.mode() {
	case DigestSHA256:
		encoded, err := EncodeClaim(claim)
		if err != nil {
			return out, err
		}
		return sha256.Sum256(encoded), nil
	case DigestEthPersonal:
		message, err := ClaimMessage(claim)
		if err != nil {
			return out, err
		}
		return PersonalMessageDigest(message[:]), nil
	default:
		return out, errUnknownDigestMode
	}
}

func (s *Service) mode() DigestMode {
	if s == nil || s.Mode == "" {
		return DigestEthPersonal
	}
	return s.Mode
}

// PersonalMessageDigest hashes message under the Ethereum signed message
// prefix, the digest personal_sign and ecrecover-based verifiers expect.
func PersonalMessageDigest(message []byte) [32]byte {
	var out [32]byte
	copy(out[:], accounts.TextHash(message))
	return out
}

func Digest32(b []byte) ([32]byte, error) {
	var out [32]byte
	if len(b) != 32 {
		return out, fmt.Errorf("%w: expected 32 bytes, got %d", domain.ErrInvalidDigest, len(b))
	}
	copy(out[:], b)
	return out, nil
}
