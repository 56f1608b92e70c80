package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
)

// IDTokenValidator checks params.idToken with the identity provider.
type IDTokenValidator struct {
	Verifier domain.IdentityVerifier
}

func (v *IDTokenValidator) Name() string { return "id_token" }

func (v *IDTokenValidator) Validate(ctx context.Context, vc *domain.ValidationContext) (domain.VerifiedIdentity, error) {
	token := vc.StringParam("idToken")
	if token == "" {
		return domain.VerifiedIdentity{}, domain.Reject(http.StatusBadRequest, domain.MsgInvalidOAuthInput)
	}
	if v.Verifier == nil {
		return domain.VerifiedIdentity{}, errors.New("identity verifier not configured")
	}
	claims, err := v.Verifier.VerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrVerifierUnavailable) {
			return domain.VerifiedIdentity{}, err
		}
		return domain.VerifiedIdentity{}, domain.Reject(http.StatusUnauthorized, domain.MsgInvalidToken)
	}
	details := map[string]any{"issuer": claims.Issuer}
	if claims.Email != "" {
		details["emailVerified"] = claims.EmailVerified
	}
	return domain.VerifiedIdentity{Kind: v.Name(), Subject: claims.Subject, Details: details}, nil
}

// FollowValidator requires params.source to follow params.target.
type FollowValidator struct {
	Social domain.SocialVerifier
}

func (v *FollowValidator) Name() string { return "follow" }

func (v *FollowValidator) Validate(ctx context.Context, vc *domain.ValidationContext) (domain.VerifiedIdentity, error) {
	source := vc.StringParam("source")
	target := vc.StringParam("target")
	if source == "" || target == "" {
		return domain.VerifiedIdentity{}, domain.Reject(http.StatusBadRequest, domain.MsgInvalidFollowInput)
	}
	if v.Social == nil {
		return domain.VerifiedIdentity{}, errors.New("social verifier not configured")
	}
	ok, err := v.Social.VerifyFollowing(ctx, source, target)
	if err != nil {
		return domain.VerifiedIdentity{}, fmt.Errorf("verify following: %w", err)
	}
	if !ok {
		return domain.VerifiedIdentity{}, domain.Reject(http.StatusUnauthorized, domain.MsgNotFollower)
	}
	return domain.VerifiedIdentity{
		Kind:    v.Name(),
		Subject: source,
		Details: map[string]any{"target": target},
	}, nil
}

// RepostValidator runs only when params.verifyRepost is set and requires
// params.postId to reference params.referencedId.
type RepostValidator struct {
	Social domain.SocialVerifier
}

func (v *RepostValidator) Name() string { return "repost" }

// Skipped reports whether the request opted out of the repost check.
func (v *RepostValidator) Skipped(vc *domain.ValidationContext) bool {
	return !vc.BoolParam("verifyRepost")
}

func (v *RepostValidator) Validate(ctx context.Context, vc *domain.ValidationContext) (domain.VerifiedIdentity, error) {
	referencedID := vc.StringParam("referencedId")
	postID := vc.StringParam("postId")
	if referencedID == "" || postID == "" {
		return domain.VerifiedIdentity{}, domain.Reject(http.StatusBadRequest, domain.MsgInvalidRepostInput)
	}
	if v.Social == nil {
		return domain.VerifiedIdentity{}, errors.New("social verifier not configured")
	}
	ok, err := v.Social.VerifyRepost(ctx, referencedID, postID)
	if err != nil {
		return domain.VerifiedIdentity{}, fmt.Errorf("verify repost: %w", err)
	}
	if !ok {
		return domain.VerifiedIdentity{}, domain.Reject(http.StatusUnauthorized, domain.MsgNotReposted)
	}
	return domain.VerifiedIdentity{
		Kind:    v.Name(),
		Details: map[string]any{"referencedId": referencedID, "postId": postID},
	}, nil
}

// PolicyValidator asks the policy engine whether the request, with what the
// earlier validators established, may receive a proof.
type PolicyValidator struct {
	Policy PolicyEvaluator
}

func (v *PolicyValidator) Name() string { return "policy" }

func (v *PolicyValidator) Validate(ctx context.Context, vc *domain.ValidationContext) (domain.VerifiedIdentity, error) {
	if v.Policy == nil {
		return domain.VerifiedIdentity{}, errors.New("policy evaluator not configured")
	}
	allowed, err := v.Policy.Allow(ctx, PolicyInput{
		Subject:      vc.Subject,
		AuthType:     string(vc.Request.AuthType),
		IdentityType: vc.Request.IdentityType,
		KeyType:      vc.Request.KeyType,
		Verified:     vc.Verified,
	})
	if err != nil {
		return domain.VerifiedIdentity{}, fmt.Errorf("policy: %w", err)
	}
	if !allowed {
		return domain.VerifiedIdentity{}, domain.Reject(http.StatusUnauthorized, domain.MsgDeniedByPolicy)
	}
	return domain.VerifiedIdentity{Kind: v.Name()}, nil
}

// skippable validators can opt out per request.
type skippable interface {
	Skipped(vc *domain.ValidationContext) bool
}

// socialValidator marks validators whose success moves the pipeline to
// SocialChecked rather than IdentityChecked.
func socialValidator(v Validator) bool {
	switch v.(type) {
	case *FollowValidator, *RepostValidator:
		return true
	default:
		return false
	}
}
