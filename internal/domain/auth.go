package domain

import "context"

// Principal is the caller identity established by the transport before the
// validation pipeline runs.
type Principal struct {
	Subject   string
	RawClaims map[string]any
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Principal, error)
}

type AuthenticatedClaims struct {
	Subject       string
	Issuer        string
	Email         string
	EmailVerified bool
	IssuedAt      int64
	ExpiresAt     int64
}

// IdentityVerifier checks an identity-provider ID token.
type IdentityVerifier interface {
	VerifyToken(ctx context.Context, token string) (AuthenticatedClaims, error)
}

// SocialVerifier answers relationship questions against a social platform.
type SocialVerifier interface {
	VerifyFollowing(ctx context.Context, source, target string) (bool, error)
	VerifyRepost(ctx context.Context, referencedID, postID string) (bool, error)
}
