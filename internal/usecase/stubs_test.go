package usecase

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/keys/soft"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const testSignerAddress = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"

var testRef = domain.KeyReference{
	ProjectID:  "hexlink",
	LocationID: "global",
	KeyRingID:  "signers",
	KeyID:      "identity",
	VersionID:  "1",
}

// kmsStub wraps the in-process KMS and lets tests tamper with responses.
type kmsStub struct {
	inner *soft.Manager

	mu          sync.Mutex
	pubCalls    int
	signCalls   int
	mutatePub   func(*domain.PublicKeyMaterial)
	mutateSign  func(*domain.RawSignature)
	highS       bool
	lastRequest domain.SignRequest
}

func newKMSStub(t *testing.T) *kmsStub {
	t.Helper()
	key, err := soft.ParsePrivateKeyHex("0000000000000000000000000000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	return &kmsStub{inner: soft.NewManager(map[string]*secp256k1.PrivateKey{testRef.Name(): key})}
}

func (k *kmsStub) GetPublicKey(ctx context.Context, name string) (domain.PublicKeyMaterial, error) {
	k.mu.Lock()
	k.pubCalls++
	mutate := k.mutatePub
	k.mu.Unlock()
	out, err := k.inner.GetPublicKey(ctx, name)
	if err == nil && mutate != nil {
		mutate(&out)
	}
	return out, err
}

func (k *kmsStub) AsymmetricSign(ctx context.Context, req domain.SignRequest) (domain.RawSignature, error) {
	k.mu.Lock()
	k.signCalls++
	k.lastRequest = req
	mutate := k.mutateSign
	highS := k.highS
	k.mu.Unlock()
	out, err := k.inner.AsymmetricSign(ctx, req)
	if err != nil {
		return out, err
	}
	if highS {
		out.DER = flipS(out.DER)
		crc := crc32c(out.DER)
		out.SignatureCRC32C = &crc
	}
	if mutate != nil {
		mutate(&out)
	}
	return out, nil
}

func (k *kmsStub) calls() (int, int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.pubCalls, k.signCalls
}

type verifierStub struct {
	calls  int
	claims domain.AuthenticatedClaims
	err    error
}

func (v *verifierStub) VerifyToken(ctx context.Context, token string) (domain.AuthenticatedClaims, error) {
	v.calls++
	if v.err != nil {
		return domain.AuthenticatedClaims{}, v.err
	}
	if token != "valid-token" {
		return domain.AuthenticatedClaims{}, errors.New("token rejected")
	}
	return v.claims, nil
}

type socialStub struct {
	following   bool
	reposted    bool
	err         error
	followCalls int
	repostCalls int
}

func (s *socialStub) VerifyFollowing(ctx context.Context, source, target string) (bool, error) {
	s.followCalls++
	return s.following, s.err
}

func (s *socialStub) VerifyRepost(ctx context.Context, referencedID, postID string) (bool, error) {
	s.repostCalls++
	return s.reposted, s.err
}

type policyStub struct {
	allow bool
	input PolicyInput
}

func (p *policyStub) Allow(ctx context.Context, input PolicyInput) (bool, error) {
	p.input = input
	return p.allow, nil
}

type auditRepoStub struct {
	events []domain.AuditEvent
}

func (r *auditRepoStub) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	r.events = append(r.events, event)
	return event, nil
}

func (r *auditRepoStub) ListByRequest(ctx context.Context, requestID string) ([]domain.AuditEvent, error) {
	out := make([]domain.AuditEvent, 0)
	for _, event := range r.events {
		if event.RequestID == requestID {
			out = append(out, event)
		}
	}
	return out, nil
}

type memCache struct {
	entries map[string]domain.PublicKeyMaterial
}

func (c *memCache) Get(ctx context.Context, name string) (*domain.PublicKeyMaterial, bool, error) {
	v, ok := c.entries[name]
	if !ok {
		return nil, false, nil
	}
	return &v, true, nil
}

func (c *memCache) Put(ctx context.Context, name string, material domain.PublicKeyMaterial, ttl time.Duration) error {
	if c.entries == nil {
		c.entries = make(map[string]domain.PublicKeyMaterial)
	}
	c.entries[name] = material
	return nil
}

func fixedClock() time.Time {
	return time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
}

func newOracle(t *testing.T, kms domain.KeyManagement, opts SigningOracleOptions) *SigningOracle {
	t.Helper()
	o, err := NewSigningOracle(kms, testRef, opts)
	if err != nil {
		t.Fatalf("new oracle: %v", err)
	}
	return o
}

func bigInt(v int64) *big.Int {
	return big.NewInt(v)
}
