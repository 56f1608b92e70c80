package soft

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/crypto"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/ethsig"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const algorithm = "EC_SIGN_SECP256K1_SHA256"

// Manager is an in-process stand-in for Cloud KMS. It returns the same
// integrity fields so the signing path is exercised unchanged.
type Manager struct {
	mu   sync.RWMutex
	keys map[string]*secp256k1.PrivateKey
}

func NewManager(keys map[string]*secp256k1.PrivateKey) *Manager {
	copied := make(map[string]*secp256k1.PrivateKey, len(keys))
	for name, key := range keys {
		copied[name] = key
	}
	return &Manager{keys: copied}
}

// ParsePrivateKeyHex reads a 32-byte hex scalar, with or without 0x.
func ParsePrivateKeyHex(s string) (*secp256k1.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil || len(raw) != 32 {
		return nil, errors.New("SOFT_SIGNING_KEY_HEX must be 32 hex bytes")
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow || scalar.IsZero() {
		return nil, errors.New("SOFT_SIGNING_KEY_HEX out of range")
	}
	return secp256k1.NewPrivateKey(&scalar), nil
}

// Put registers key under the resource name. Keys are never removed, matching
// the immutability of KMS key versions.
func (m *Manager) Put(name string, key *secp256k1.PrivateKey) error {
	if m == nil {
		return errors.New("soft key manager is required")
	}
	if name == "" || key == nil {
		return errors.New("key name and private key are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]*secp256k1.PrivateKey)
	}
	m.keys[name] = key
	return nil
}

func (m *Manager) key(name string) (*secp256k1.PrivateKey, error) {
	if m == nil {
		return nil, errors.New("soft key manager is required")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return key, nil
}

func (m *Manager) GetPublicKey(_ context.Context, name string) (domain.PublicKeyMaterial, error) {
	key, err := m.key(name)
	if err != nil {
		return domain.PublicKeyMaterial{}, err
	}
	pemText, err := ethsig.MarshalPublicKeyPEM(key.PubKey())
	if err != nil {
		return domain.PublicKeyMaterial{}, err
	}
	crc := crypto.CRC32C([]byte(pemText))
	return domain.PublicKeyMaterial{
		Name:      name,
		PEM:       pemText,
		PEMCRC32C: &crc,
		Algorithm: algorithm,
	}, nil
}

// AsymmetricSign refuses a digest whose checksum does not match, as Cloud KMS
// does, and reports the check in VerifiedDigestCRC32C.
func (m *Manager) AsymmetricSign(_ context.Context, req domain.SignRequest) (domain.RawSignature, error) {
	key, err := m.key(req.Name)
	if err != nil {
		return domain.RawSignature{}, err
	}
	if len(req.Digest) != 32 {
		return domain.RawSignature{}, domain.ErrInvalidDigest
	}
	if crypto.CRC32C(req.Digest) != req.DigestCRC32C {
		return domain.RawSignature{}, fmt.Errorf("%w: digest checksum mismatch", domain.ErrIntegrityViolation)
	}
	der := ecdsa.Sign(key, req.Digest).Serialize()
	crc := crypto.CRC32C(der)
	return domain.RawSignature{
		Name:                 req.Name,
		DER:                  der,
		SignatureCRC32C:      &crc,
		VerifiedDigestCRC32C: true,
	}, nil
}
