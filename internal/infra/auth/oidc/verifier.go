package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/config"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
)

const defaultHTTPTimeout = 5 * time.Second

// Verifier checks ID tokens against one issuer and audience. It serves both
// as the caller Authenticator and as the IdentityVerifier behind the oauth
// validator.
type Verifier struct {
	issuer   string
	verifier *gooidc.IDTokenVerifier
}

type options struct {
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*options)

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// NewVerifier discovers the issuer's signing keys. Firebase projects use the
// securetoken issuer, which publishes a discovery document.
func NewVerifier(ctx context.Context, issuer, audience string, opts ...Option) (*Verifier, error) {
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("OIDC_ISSUER_URL or FIREBASE_PROJECT_ID is required")
	}
	if audience == "" {
		return nil, errors.New("OIDC_CLIENT_ID or FIREBASE_PROJECT_ID is required")
	}
	o := options{httpClient: &http.Client{Timeout: defaultHTTPTimeout}}
	for _, opt := range opts {
		opt(&o)
	}
	provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, o.httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	return &Verifier{
		issuer:   issuer,
		verifier: provider.Verifier(&gooidc.Config{ClientID: audience, Now: o.now}),
	}, nil
}

func NewVerifierFromConfig(ctx context.Context, cfg config.Config, opts ...Option) (*Verifier, error) {
	return NewVerifier(ctx, cfg.OIDCIssuer(), cfg.OIDCAudience(), opts...)
}

// NewVerifierWithKeySet skips discovery, for fixed keys.
func NewVerifierWithKeySet(issuer, audience string, keys gooidc.KeySet, opts ...Option) *Verifier {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Verifier{
		issuer:   issuer,
		verifier: gooidc.NewVerifier(issuer, keys, &gooidc.Config{ClientID: audience, Now: o.now}),
	}
}

type tokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

func (v *Verifier) verify(ctx context.Context, raw string) (*gooidc.IDToken, error) {
	if v == nil || v.verifier == nil {
		return nil, domain.ErrVerifierUnavailable
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, domain.ErrUnauthorized
	}
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if token.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return token, nil
}

func (v *Verifier) VerifyToken(ctx context.Context, raw string) (domain.AuthenticatedClaims, error) {
	token, err := v.verify(ctx, raw)
	if err != nil {
		return domain.AuthenticatedClaims{}, err
	}
	var extra tokenClaims
	if err := token.Claims(&extra); err != nil {
		return domain.AuthenticatedClaims{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return domain.AuthenticatedClaims{
		Subject:       token.Subject,
		Issuer:        token.Issuer,
		Email:         extra.Email,
		EmailVerified: extra.EmailVerified,
		IssuedAt:      token.IssuedAt.Unix(),
		ExpiresAt:     token.Expiry.Unix(),
	}, nil
}

func (v *Verifier) Authenticate(ctx context.Context, bearerToken string) (domain.Principal, error) {
	token, err := v.verify(ctx, bearerToken)
	if err != nil {
		return domain.Principal{}, err
	}
	raw := map[string]any{}
	if err := token.Claims(&raw); err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	return domain.Principal{Subject: token.Subject, RawClaims: raw}, nil
}

var (
	_ domain.Authenticator    = (*Verifier)(nil)
	_ domain.IdentityVerifier = (*Verifier)(nil)
)
