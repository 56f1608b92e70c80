package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/config"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/auth/header"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/crypto"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/ethsig"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/keys/soft"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/usecase"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/gin-gonic/gin"
)

const signerAddress = "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf"

var keyRef = domain.KeyReference{
	ProjectID:  "hexlink",
	LocationID: "global",
	KeyRingID:  "signers",
	KeyID:      "identity",
	VersionID:  "1",
}

type tokenVerifier struct{}

func (tokenVerifier) VerifyToken(_ context.Context, token string) (domain.AuthenticatedClaims, error) {
	if token != "valid-token" {
		return domain.AuthenticatedClaims{}, domain.ErrUnauthorized
	}
	return domain.AuthenticatedClaims{Subject: "uid-1"}, nil
}

// bearerAuth accepts one fixed bearer token.
type bearerAuth struct{}

func (bearerAuth) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	if token != "caller-token" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	return domain.Principal{Subject: "uid-1"}, nil
}

func newTestServer(t *testing.T, auth domain.Authenticator, health map[string]HealthCheck) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	key, err := soft.ParsePrivateKeyHex("0000000000000000000000000000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	kms := soft.NewManager(map[string]*secp256k1.PrivateKey{keyRef.Name(): key})
	oracle, err := usecase.NewSigningOracle(kms, keyRef, usecase.SigningOracleOptions{})
	if err != nil {
		t.Fatalf("oracle: %v", err)
	}
	signers, err := usecase.NewSigners("identity", map[string]*usecase.SigningOracle{"identity": oracle})
	if err != nil {
		t.Fatalf("signers: %v", err)
	}
	registry := usecase.NewRegistry()
	if err := registry.Register(domain.AuthTypeOAuth, &usecase.IDTokenValidator{Verifier: tokenVerifier{}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	pipeline := &usecase.Pipeline{
		Registry: registry,
		Signers:  signers,
		Clock:    func() time.Time { return time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC) },
	}
	return NewServerWithDeps(config.Config{}, ServerDeps{
		Pipeline:      pipeline,
		Signers:       signers,
		Authenticator: auth,
		Health:        health,
	})
}

func do(t *testing.T, s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeResult(t *testing.T, w *httptest.ResponseRecorder) domain.Result {
	t.Helper()
	var out domain.Result
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v: %s", err, w.Body.String())
	}
	return out
}

func TestIssueProof_Success(t *testing.T) {
	s := newTestServer(t, header.NewAuthenticator(""), nil)
	body := `{"authType":"oauth","identityType":"email","requestId":"req-1","name":"alice@example.com","chainId":"137","idToken":"valid-token"}`
	w := do(t, s, http.MethodPost, "/v1/auth-proofs", body, map[string]string{header.DefaultHeader: "uid-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	res := decodeResult(t, w)
	if res.AuthProof == nil {
		t.Fatal("expected auth proof")
	}
	proof := res.AuthProof
	if proof.IssuedAt != uint64(time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC).Unix()) {
		t.Fatalf("unexpected issuedAt %d", proof.IssuedAt)
	}

	digest, err := (&crypto.Service{}).ClaimDigest(proof.AuthProofClaim)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	r, sv, v, err := ethsig.SplitConcat(proof.Sig)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if v != proof.V {
		t.Fatalf("concatenated v %d differs from v %d", v, proof.V)
	}
	addr, err := ethsig.Recover(digest[:], r, sv, v, nil)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if addr.Hex() != signerAddress {
		t.Fatalf("recovered %s, want %s", addr.Hex(), signerAddress)
	}
}

func TestIssueProof_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		headers map[string]string
		code    int
		message string
	}{
		{
			name:    "no-caller",
			body:    `{"authType":"oauth","identityType":"email","requestId":"req-1","params":{"idToken":"valid-token"}}`,
			code:    http.StatusUnauthorized,
			message: domain.MsgUnauthorizedCall,
		},
		{
			name:    "no-caller-malformed-body",
			body:    `{"authType":"oauth",`,
			code:    http.StatusUnauthorized,
			message: domain.MsgUnauthorizedCall,
		},
		{
			name:    "no-caller-bad-chain-id",
			body:    `{"authType":"oauth","chainId":"polygon"}`,
			code:    http.StatusUnauthorized,
			message: domain.MsgUnauthorizedCall,
		},
		{
			name:    "wrong-bearer",
			body:    `{"authType":"oauth","identityType":"email","requestId":"req-1","params":{"idToken":"valid-token"}}`,
			headers: map[string]string{"Authorization": "Bearer nope"},
			code:    http.StatusUnauthorized,
			message: domain.MsgUnauthorizedCall,
		},
		{
			name:    "bad-json",
			body:    `{`,
			headers: map[string]string{"Authorization": "Bearer caller-token"},
			code:    http.StatusBadRequest,
			message: domain.MsgInvalidProofInput,
		},
		{
			name:    "bad-chain-id",
			body:    `{"authType":"oauth","identityType":"email","requestId":"req-1","chainId":"polygon"}`,
			headers: map[string]string{"Authorization": "Bearer caller-token"},
			code:    http.StatusBadRequest,
			message: domain.MsgInvalidChainID,
		},
		{
			name:    "unknown-auth-type",
			body:    `{"authType":"github","identityType":"email","requestId":"req-1"}`,
			headers: map[string]string{"Authorization": "Bearer caller-token"},
			code:    http.StatusBadRequest,
			message: domain.MsgInvalidAuthType,
		},
		{
			name:    "invalid-token",
			body:    `{"authType":"oauth","identityType":"email","requestId":"req-1","params":{"idToken":"forged"}}`,
			headers: map[string]string{"Authorization": "Bearer caller-token"},
			code:    http.StatusUnauthorized,
			message: domain.MsgInvalidToken,
		},
		{
			name:    "unknown-key-type",
			body:    `{"authType":"oauth","identityType":"email","requestId":"req-1","keyType":"ops","params":{"idToken":"valid-token"}}`,
			headers: map[string]string{"Authorization": "Bearer caller-token"},
			code:    http.StatusBadRequest,
			message: domain.MsgInvalidKeyType,
		},
	}
	s := newTestServer(t, bearerAuth{}, nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/v1/auth-proofs", tc.body, tc.headers)
			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
			res := decodeResult(t, w)
			if res.Code != tc.code || res.Message != tc.message || res.AuthProof != nil {
				t.Fatalf("unexpected result: %+v", res)
			}
		})
	}
}

func TestKeyAddress(t *testing.T) {
	s := newTestServer(t, bearerAuth{}, nil)
	w := do(t, s, http.MethodGet, "/v1/keys/identity/address", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp addressResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Address != signerAddress {
		t.Fatalf("unexpected address %s", resp.Address)
	}

	w = do(t, s, http.MethodGet, "/v1/keys/ops/address", "", nil)
	if w.Code != http.StatusBadRequest || decodeResult(t, w).Message != domain.MsgInvalidKeyType {
		t.Fatalf("expected invalid key type, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSignMessage(t *testing.T) {
	s := newTestServer(t, bearerAuth{}, nil)
	auth := map[string]string{"Authorization": "Bearer caller-token"}
	message := "0x" + strings.Repeat("ab", 32)

	w := do(t, s, http.MethodPost, "/v1/keys/identity/signatures", `{"message":"`+message+`"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without caller, got %d", w.Code)
	}

	w = do(t, s, http.MethodPost, "/v1/keys/identity/signatures", `{"message":"`+message+`","chainId":5}`, auth)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp signMessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw, err := ethsig.ParseHex32(message)
	if err != nil {
		t.Fatalf("parse message: %v", err)
	}
	r, sv, v, err := ethsig.SplitConcat(resp.Signature.Sig)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	digest := crypto.PersonalMessageDigest(raw[:])
	addr, err := ethsig.Recover(digest[:], r, sv, v, nil)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if addr.Hex() != signerAddress {
		t.Fatalf("recovered %s", addr.Hex())
	}

	w = do(t, s, http.MethodPost, "/v1/keys/identity/signatures", `{"message":"0x1234"}`, auth)
	if w.Code != http.StatusBadRequest || decodeResult(t, w).Message != domain.MsgInvalidMessage {
		t.Fatalf("expected invalid message, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, bearerAuth{}, map[string]HealthCheck{
		"redis": func(context.Context) error { return nil },
	})
	w := do(t, s, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte(`"identity"`)) {
		t.Fatalf("unexpected health response %d: %s", w.Code, w.Body.String())
	}

	s = newTestServer(t, bearerAuth{}, map[string]HealthCheck{
		"postgres": func(context.Context) error { return errors.New("down") },
	})
	w = do(t, s, http.MethodGet, "/healthz", "", nil)
	if w.Code != http.StatusServiceUnavailable || bytes.Contains(w.Body.Bytes(), []byte("down")) {
		t.Fatalf("unexpected degraded response %d: %s", w.Code, w.Body.String())
	}
}

func TestParseChainID(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: ``, want: "<nil>"},
		{raw: `null`, want: "<nil>"},
		{raw: `137`, want: "137"},
		{raw: `"137"`, want: "137"},
		{raw: `"0x89"`, want: "137"},
		{raw: `"0X89"`, want: "137"},
		{raw: `"1.5"`, wantErr: true},
		{raw: `"1_000"`, wantErr: true},
		{raw: `"0b101"`, wantErr: true},
		{raw: `"0o17"`, wantErr: true},
		{raw: `"017"`, want: "17"},
		{raw: `"0x"`, wantErr: true},
		{raw: `"0x-5"`, wantErr: true},
		{raw: `1e3`, wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseChainID(json.RawMessage(tc.raw))
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tc.raw, err)
		}
		if got.String() != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.raw, got.String(), tc.want)
		}
	}
}

func TestExtractBearerToken(t *testing.T) {
	if got := extractBearerToken("Bearer abc "); got != "abc" {
		t.Fatalf("unexpected token %q", got)
	}
	if got := extractBearerToken("Basic abc"); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}
