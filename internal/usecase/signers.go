package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
)

// Signers maps key types to their oracle. It is built once at startup and
// read-only afterwards.
type Signers struct {
	defaultType string
	oracles     map[string]*SigningOracle
}

func NewSigners(defaultType string, oracles map[string]*SigningOracle) (*Signers, error) {
	if defaultType == "" {
		return nil, errors.New("default key type is required")
	}
	if _, ok := oracles[defaultType]; !ok {
		return nil, fmt.Errorf("default key type %q has no signer", defaultType)
	}
	copied := make(map[string]*SigningOracle, len(oracles))
	for k, v := range oracles {
		if v == nil {
			return nil, fmt.Errorf("key type %q has nil signer", k)
		}
		copied[k] = v
	}
	return &Signers{defaultType: defaultType, oracles: copied}, nil
}

// Get resolves keyType, falling back to the default when empty.
func (s *Signers) Get(keyType string) (*SigningOracle, error) {
	if s == nil {
		return nil, domain.ErrUnknownKeyType
	}
	keyType = strings.TrimSpace(keyType)
	if keyType == "" {
		keyType = s.defaultType
	}
	oracle, ok := s.oracles[keyType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKeyType, keyType)
	}
	return oracle, nil
}

func (s *Signers) KeyTypes() []string {
	out := make([]string, 0, len(s.oracles))
	for k := range s.oracles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CheckPublished compares every configured published address with the one
// derived from KMS, so a misconfigured key fails at startup instead of on
// the first signature.
func (s *Signers) CheckPublished(ctx context.Context) error {
	for _, keyType := range s.KeyTypes() {
		oracle := s.oracles[keyType]
		if oracle.published == nil {
			continue
		}
		derived, err := oracle.derivedAddress(ctx)
		if err != nil {
			return fmt.Errorf("key type %q: %w", keyType, err)
		}
		if derived != *oracle.published {
			return fmt.Errorf("key type %q: %w: published %s, kms %s", keyType, domain.ErrRecoveryImpossible, oracle.published.Hex(), derived.Hex())
		}
	}
	return nil
}
