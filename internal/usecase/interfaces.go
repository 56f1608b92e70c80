package usecase

import (
	"context"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
)

type Clock func() time.Time

type AuditEventRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	ListByRequest(ctx context.Context, requestID string) ([]domain.AuditEvent, error)
}

// PublicKeyCache holds provider public key material keyed by resource name.
// A zero ttl means no expiry.
type PublicKeyCache interface {
	Get(ctx context.Context, name string) (*domain.PublicKeyMaterial, bool, error)
	Put(ctx context.Context, name string, material domain.PublicKeyMaterial, ttl time.Duration) error
}

// Validator is one gate of the proof pipeline. Returning a *domain.Rejection
// stops the pipeline with that code and message. Any other error is internal.
type Validator interface {
	Name() string
	Validate(ctx context.Context, vc *domain.ValidationContext) (domain.VerifiedIdentity, error)
}

// PolicyInput is what the policy gate decides over.
type PolicyInput struct {
	Subject      string                    `json:"subject"`
	AuthType     string                    `json:"authType"`
	IdentityType string                    `json:"identityType"`
	KeyType      string                    `json:"keyType"`
	Verified     []domain.VerifiedIdentity `json:"verified"`
}

type PolicyEvaluator interface {
	Allow(ctx context.Context, input PolicyInput) (bool, error)
}
