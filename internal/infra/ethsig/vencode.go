package ethsig

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
)

// Convention selects how a recovery id is exposed as v.
type Convention int

const (
	// ConventionLegacy emits id + 27.
	ConventionLegacy Convention = iota
	// ConventionChainID emits id + 2*chainID + 35 when a chain id is given
	// and falls back to legacy otherwise.
	ConventionChainID
	// ConventionRaw emits the bare id for consumers that add the offset.
	ConventionRaw
)

// MaxSafeChainID is the largest chain id that survives a round trip through
// an IEEE-754 double, which is how most JSON consumers read v.
const MaxSafeChainID = 1<<53 - 1

var maxSafeChainID = big.NewInt(MaxSafeChainID)

var errUnknownConvention = errors.New("unknown v convention")

func ParseConvention(s string) (Convention, error) {
	switch s {
	case "", "legacy":
		return ConventionLegacy, nil
	case "chain-id", "eip155":
		return ConventionChainID, nil
	case "raw":
		return ConventionRaw, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnknownConvention, s)
	}
}

func (c Convention) String() string {
	switch c {
	case ConventionLegacy:
		return "legacy"
	case ConventionChainID:
		return "chain-id"
	case ConventionRaw:
		return "raw"
	default:
		return "unknown"
	}
}

type Encoder struct {
	Convention Convention
}

// Encode maps id to v. chainID may be nil.
func (e Encoder) Encode(id RecoveryID, chainID *big.Int) (uint64, error) {
	if id > 3 {
		return 0, fmt.Errorf("%w: recovery id %d", domain.ErrMalformedSignature, id)
	}
	if err := CheckChainID(chainID); err != nil {
		return 0, err
	}
	switch e.Convention {
	case ConventionRaw:
		return uint64(id), nil
	case ConventionChainID:
		if chainID != nil {
			return uint64(id) + 2*chainID.Uint64() + 35, nil
		}
		return uint64(id) + 27, nil
	case ConventionLegacy:
		return uint64(id) + 27, nil
	default:
		return 0, errUnknownConvention
	}
}

// CheckChainID rejects chain ids outside [0, 2^53-1]. A nil chain id is valid.
func CheckChainID(chainID *big.Int) error {
	if chainID == nil {
		return nil
	}
	if chainID.Sign() < 0 || chainID.Cmp(maxSafeChainID) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedChainID, chainID.String())
	}
	return nil
}

// ParseChainID reads a chain id written in decimal or as 0x-prefixed hex.
// It does not range check; see CheckChainID.
func ParseChainID(text string) (*big.Int, bool) {
	base := 10
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		text, base = text[2:], 16
		if text == "" || text[0] == '+' || text[0] == '-' {
			return nil, false
		}
	}
	return new(big.Int).SetString(text, base)
}

// RecoveryIDFromV inverts Encode for verification. Values 0..3 are read as
// raw ids, 27..30 as legacy, and anything from 35 up as chain-aware. When
// chainID is given a chain-aware v must carry that chain.
func RecoveryIDFromV(v uint64, chainID *big.Int) (RecoveryID, error) {
	if err := CheckChainID(chainID); err != nil {
		return 0, err
	}
	switch {
	case v <= 3:
		return RecoveryID(v), nil
	case v >= 27 && v <= 30:
		return RecoveryID(v - 27), nil
	case v >= 35:
		id := (v - 35) % 2
		derived := (v - 35 - id) / 2
		if chainID != nil && derived != chainID.Uint64() {
			return 0, fmt.Errorf("%w: v %d does not match chain %s", domain.ErrUnsupportedChainID, v, chainID.String())
		}
		return RecoveryID(id), nil
	default:
		return 0, fmt.Errorf("%w: v %d", domain.ErrMalformedSignature, v)
	}
}
