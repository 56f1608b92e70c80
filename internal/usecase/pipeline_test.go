package usecase

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"testing"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/crypto"
)

type pipelineFixture struct {
	kms      *kmsStub
	verifier *verifierStub
	social   *socialStub
	policy   *policyStub
	audit    *auditRepoStub
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		kms:      newKMSStub(t),
		verifier: &verifierStub{claims: domain.AuthenticatedClaims{Subject: "uid-1", Issuer: "https://securetoken.google.com/hexlink"}},
		social:   &socialStub{following: true, reposted: true},
		audit:    &auditRepoStub{},
	}
	oracle := newOracle(t, f.kms, SigningOracleOptions{SignerAddress: testSignerAddress})
	signers, err := NewSigners("identity", map[string]*SigningOracle{"identity": oracle})
	if err != nil {
		t.Fatalf("signers: %v", err)
	}
	registry := NewRegistry()
	if err := registry.Register(domain.AuthTypeOAuth, &IDTokenValidator{Verifier: f.verifier}); err != nil {
		t.Fatalf("register oauth: %v", err)
	}
	if err := registry.Register(domain.AuthTypeTwitter, &FollowValidator{Social: f.social}, &RepostValidator{Social: f.social}); err != nil {
		t.Fatalf("register twitter: %v", err)
	}
	f.pipeline = &Pipeline{
		Registry: registry,
		Signers:  signers,
		Audit:    NewAuditEmitter(f.audit, fixedClock),
		Clock:    fixedClock,
	}
	return f
}

func oauthRequest(token string) domain.ProofRequest {
	params := map[string]any{}
	if token != "" {
		params["idToken"] = token
	}
	return domain.ProofRequest{
		AuthType:     domain.AuthTypeOAuth,
		IdentityType: "email",
		RequestID:    "abc",
		Params:       params,
	}
}

func expectRejection(t *testing.T, res domain.Result, code int, message string) {
	t.Helper()
	if res.Code != code || res.Message != message || res.AuthProof != nil {
		t.Fatalf("expected {%d %q}, got %+v", code, message, res)
	}
}

func TestPipeline_OAuthSuccessRecoversSigner(t *testing.T) {
	f := newPipelineFixture(t)
	res := f.pipeline.Issue(context.Background(), "uid-1", oauthRequest("valid-token"))
	if res.Code != http.StatusOK || res.AuthProof == nil {
		t.Fatalf("expected success, got %+v", res)
	}
	proof := res.AuthProof
	if proof.RequestID != "abc" || proof.AuthType != domain.AuthTypeOAuth || proof.IdentityType != "email" {
		t.Fatalf("claim fields not echoed: %+v", proof.AuthProofClaim)
	}
	if proof.IssuedAt != uint64(fixedClock().Unix()) {
		t.Fatalf("issuedAt = %d", proof.IssuedAt)
	}
	digest, err := (&crypto.Service{}).ClaimDigest(proof.AuthProofClaim)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if got := recoverSigner(t, digest, proof.Signature, nil); got != testSignerAddress {
		t.Fatalf("recovered %s, want %s", got, testSignerAddress)
	}
	if !strings.HasPrefix(proof.Sig, proof.R) {
		t.Fatalf("concatenated signature does not start with r")
	}
	if len(f.audit.events) != 1 || f.audit.events[0].EventType != domain.AuditEventProofIssued {
		t.Fatalf("unexpected audit events: %+v", f.audit.events)
	}
	if f.audit.events[0].SubjectHash == "uid-1" || f.audit.events[0].State != domain.StateDone {
		t.Fatalf("audit event leaked subject or wrong state: %+v", f.audit.events[0])
	}
}

func TestPipeline_BadTokenNeverSigns(t *testing.T) {
	f := newPipelineFixture(t)
	res := f.pipeline.Issue(context.Background(), "uid-1", oauthRequest("bad-token"))
	expectRejection(t, res, http.StatusUnauthorized, "Invalid Token.")
	if _, sign := f.kms.calls(); sign != 0 {
		t.Fatalf("kms sign called %d times", sign)
	}
}

func TestPipeline_MissingTokenShortCircuits(t *testing.T) {
	f := newPipelineFixture(t)
	res := f.pipeline.Issue(context.Background(), "uid-1", oauthRequest(""))
	expectRejection(t, res, http.StatusBadRequest, "Invalid input for OAuth validation.")
	pub, sign := f.kms.calls()
	if pub != 0 || sign != 0 {
		t.Fatalf("kms called: pub=%d sign=%d", pub, sign)
	}
	if f.verifier.calls != 0 {
		t.Fatalf("verifier called")
	}
	if f.audit.events[0].EventType != domain.AuditEventProofRejected || f.audit.events[0].Code != 400 {
		t.Fatalf("unexpected audit: %+v", f.audit.events[0])
	}
}

func TestPipeline_Gates(t *testing.T) {
	cases := []struct {
		name    string
		subject string
		mutate  func(*domain.ProofRequest)
		code    int
		message string
	}{
		{"no-subject", "", nil, 401, "Unauthorized Call"},
		{"unknown-auth-type", "uid", func(r *domain.ProofRequest) { r.AuthType = "github" }, 400, "Invalid auth type"},
		{"missing-request-id", "uid", func(r *domain.ProofRequest) { r.RequestID = "" }, 400, domain.MsgInvalidProofInput},
		{"long-request-id", "uid", func(r *domain.ProofRequest) { r.RequestID = strings.Repeat("r", 40) }, 400, domain.MsgInvalidProofInput},
		{"unknown-key-type", "uid", func(r *domain.ProofRequest) { r.KeyType = "operator" }, 400, domain.MsgInvalidKeyType},
		{"bad-chain", "uid", func(r *domain.ProofRequest) { r.ChainID = new(big.Int).Lsh(big.NewInt(1), 64) }, 400, domain.MsgInvalidChainID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPipelineFixture(t)
			req := oauthRequest("valid-token")
			if tc.mutate != nil {
				tc.mutate(&req)
			}
			expectRejection(t, f.pipeline.Issue(context.Background(), tc.subject, req), tc.code, tc.message)
			if f.verifier.calls != 0 {
				t.Fatalf("validator ran after gate rejection")
			}
		})
	}
}

func twitterRequest(params map[string]any) domain.ProofRequest {
	return domain.ProofRequest{
		AuthType:     domain.AuthTypeTwitter,
		IdentityType: "twitter.com",
		RequestID:    "req-2",
		Params:       params,
	}
}

func TestPipeline_Twitter(t *testing.T) {
	full := map[string]any{"source": "alice", "target": "hexlink", "verifyRepost": true, "referencedId": "1", "postId": "2"}
	cases := []struct {
		name      string
		params    map[string]any
		following bool
		reposted  bool
		code      int
		message   string
		reposts   int
	}{
		{"follow-only", map[string]any{"source": "alice", "target": "hexlink"}, true, false, 200, "", 0},
		{"missing-target", map[string]any{"source": "alice"}, true, true, 400, "Invalid input for follow validation.", 0},
		{"not-follower", full, false, true, 401, "not a follower", 0},
		{"repost-ok", full, true, true, 200, "", 1},
		{"repost-missing", map[string]any{"source": "alice", "target": "hexlink", "verifyRepost": "true"}, true, true, 400, "Invalid input for repost validation.", 0},
		{"not-reposted", full, true, false, 401, "hasn't reposted", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPipelineFixture(t)
			f.social.following = tc.following
			f.social.reposted = tc.reposted
			res := f.pipeline.Issue(context.Background(), "uid", twitterRequest(tc.params))
			if tc.code == 200 {
				if res.Code != 200 || res.AuthProof == nil {
					t.Fatalf("expected success, got %+v", res)
				}
			} else {
				expectRejection(t, res, tc.code, tc.message)
			}
			if f.social.repostCalls != tc.reposts {
				t.Fatalf("repost calls = %d, want %d", f.social.repostCalls, tc.reposts)
			}
		})
	}
}

func TestPipeline_PolicyGate(t *testing.T) {
	f := newPipelineFixture(t)
	f.policy = &policyStub{allow: false}
	f.pipeline.Policy = &PolicyValidator{Policy: f.policy}
	res := f.pipeline.Issue(context.Background(), "uid-1", oauthRequest("valid-token"))
	expectRejection(t, res, http.StatusUnauthorized, "Denied by policy.")
	if len(f.policy.input.Verified) != 1 || f.policy.input.Verified[0].Kind != "id_token" {
		t.Fatalf("policy did not see verified identity: %+v", f.policy.input)
	}
	f.policy.allow = true
	if res := f.pipeline.Issue(context.Background(), "uid-1", oauthRequest("valid-token")); res.Code != 200 {
		t.Fatalf("expected success, got %+v", res)
	}
}

func TestPipeline_InternalErrorsAreOpaque(t *testing.T) {
	f := newPipelineFixture(t)
	f.kms.mutateSign = func(r *domain.RawSignature) { r.Name = "projects/evil" }
	res := f.pipeline.Issue(context.Background(), "uid-1", oauthRequest("valid-token"))
	expectRejection(t, res, http.StatusInternalServerError, "Internal error.")
	if f.audit.events[0].EventType != domain.AuditEventProofFailed {
		t.Fatalf("expected failed audit event, got %+v", f.audit.events[0])
	}

	f = newPipelineFixture(t)
	f.social.err = errors.New("twitter 503: upstream body")
	res = f.pipeline.Issue(context.Background(), "uid", twitterRequest(map[string]any{"source": "a", "target": "b"}))
	expectRejection(t, res, http.StatusInternalServerError, "Internal error.")

	f = newPipelineFixture(t)
	f.verifier.err = domain.ErrVerifierUnavailable
	res = f.pipeline.Issue(context.Background(), "uid", oauthRequest("valid-token"))
	expectRejection(t, res, http.StatusInternalServerError, "Internal error.")
}

func TestPipeline_IssuedAtMillis(t *testing.T) {
	f := newPipelineFixture(t)
	f.pipeline.IssuedAtMillis = true
	res := f.pipeline.Issue(context.Background(), "uid-1", oauthRequest("valid-token"))
	if res.AuthProof == nil || res.AuthProof.IssuedAt != uint64(fixedClock().UnixMilli()) {
		t.Fatalf("unexpected issuedAt: %+v", res)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(domain.AuthTypeOAuth, &IDTokenValidator{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(domain.AuthTypeOAuth, &IDTokenValidator{}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := r.Register("", &IDTokenValidator{}); err == nil {
		t.Fatalf("expected empty auth type error")
	}
}

func TestAuditEmitter_SkipsRejectionsWhenDisabled(t *testing.T) {
	repo := &auditRepoStub{}
	emitter := NewAuditEmitter(repo, fixedClock)
	emitter.RecordRejections = false
	vc := domain.NewValidationContext("uid", oauthRequest(""))
	if err := emitter.EmitDecision(context.Background(), vc, domain.Result{Code: 400, Message: "x"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(repo.events) != 0 {
		t.Fatalf("rejection recorded")
	}
	if err := emitter.EmitDecision(context.Background(), vc, domain.Result{Code: 500}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(repo.events) != 1 || !repo.events[0].CreatedAt.Equal(fixedClock()) {
		t.Fatalf("failure not recorded: %+v", repo.events)
	}
	if len(repo.events[0].SubjectHash) != 64 {
		t.Fatalf("subject hash = %q", repo.events[0].SubjectHash)
	}
}
