package gcpclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/config"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultEndpoint = "https://cloudkms.googleapis.com"
	cloudKMSScope   = "https://www.googleapis.com/auth/cloudkms"
)

// Client talks to the Cloud KMS REST API. It implements domain.KeyManagement.
type Client struct {
	endpoint   string
	tokens     oauth2.TokenSource
	httpClient *http.Client
}

func New(endpoint string, tokens oauth2.TokenSource) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewFromConfig uses GCP_ACCESS_TOKEN when set and application default
// credentials otherwise.
func NewFromConfig(ctx context.Context, cfg config.Config) (*Client, error) {
	if cfg.KMSProjectID == "" {
		return nil, errors.New("KMS_PROJECT_ID is required")
	}
	if cfg.GCPAccessToken != "" {
		return New(cfg.KMSEndpoint, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GCPAccessToken})), nil
	}
	ts, err := google.DefaultTokenSource(ctx, cloudKMSScope)
	if err != nil {
		return nil, fmt.Errorf("gcp default credentials: %w", err)
	}
	return New(cfg.KMSEndpoint, ts), nil
}

type publicKeyResponse struct {
	Pem       string `json:"pem"`
	PemCrc32c string `json:"pemCrc32c"`
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
}

func (c *Client) GetPublicKey(ctx context.Context, name string) (domain.PublicKeyMaterial, error) {
	if name == "" {
		return domain.PublicKeyMaterial{}, domain.ErrInvalidKeyReference
	}
	body, err := c.do(ctx, http.MethodGet, "/v1/"+name+"/publicKey", nil)
	if err != nil {
		return domain.PublicKeyMaterial{}, err
	}
	var resp publicKeyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PublicKeyMaterial{}, fmt.Errorf("decode public key response: %w", err)
	}
	crc, err := parseCRC(resp.PemCrc32c)
	if err != nil {
		return domain.PublicKeyMaterial{}, fmt.Errorf("%w: pemCrc32c: %v", domain.ErrIntegrityViolation, err)
	}
	return domain.PublicKeyMaterial{
		Name:      resp.Name,
		PEM:       resp.Pem,
		PEMCRC32C: crc,
		Algorithm: resp.Algorithm,
	}, nil
}

type asymmetricSignRequest struct {
	Digest struct {
		SHA256 string `json:"sha256"`
	} `json:"digest"`
	DigestCrc32c string `json:"digestCrc32c"`
}

type asymmetricSignResponse struct {
	Signature            string `json:"signature"`
	SignatureCrc32c      string `json:"signatureCrc32c"`
	VerifiedDigestCrc32c bool   `json:"verifiedDigestCrc32c"`
	Name                 string `json:"name"`
}

// AsymmetricSign sends a precomputed digest. Cloud KMS only checks the digest
// length, so the field name is sha256 whatever produced the 32 bytes.
func (c *Client) AsymmetricSign(ctx context.Context, req domain.SignRequest) (domain.RawSignature, error) {
	if req.Name == "" {
		return domain.RawSignature{}, domain.ErrInvalidKeyReference
	}
	if len(req.Digest) != 32 {
		return domain.RawSignature{}, domain.ErrInvalidDigest
	}
	var payload asymmetricSignRequest
	payload.Digest.SHA256 = base64.StdEncoding.EncodeToString(req.Digest)
	payload.DigestCrc32c = strconv.FormatUint(uint64(req.DigestCRC32C), 10)
	body, err := c.do(ctx, http.MethodPost, "/v1/"+req.Name+":asymmetricSign", payload)
	if err != nil {
		return domain.RawSignature{}, err
	}
	var resp asymmetricSignResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RawSignature{}, fmt.Errorf("decode sign response: %w", err)
	}
	der, err := base64.StdEncoding.DecodeString(resp.Signature)
	if err != nil {
		return domain.RawSignature{}, fmt.Errorf("%w: signature encoding: %v", domain.ErrMalformedSignature, err)
	}
	crc, err := parseCRC(resp.SignatureCrc32c)
	if err != nil {
		return domain.RawSignature{}, fmt.Errorf("%w: signatureCrc32c: %v", domain.ErrIntegrityViolation, err)
	}
	return domain.RawSignature{
		Name:                 resp.Name,
		DER:                  der,
		SignatureCRC32C:      crc,
		VerifiedDigestCRC32C: resp.VerifiedDigestCrc32c,
	}, nil
}

// parseCRC reads the int64-as-string checksum fields. Empty means absent.
func parseCRC(v string) (*uint32, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return nil, err
	}
	crc := uint32(n)
	return &crc, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil {
		return nil, errors.New("gcp client is nil")
	}
	if c.endpoint == "" || c.tokens == nil {
		return nil, errors.New("gcp client missing configuration")
	}
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = encoded
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("gcp token: %w", err)
	}
	token.SetAuthHeader(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gcp kms failed: status %d", resp.StatusCode)
	}
	return respBody, nil
}
