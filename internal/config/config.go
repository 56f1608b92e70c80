package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	LogLevel    string
	LogFormat   string

	AuthMode          string
	AuthHeader        string
	OIDCIssuerURL     string
	OIDCClientID      string
	FirebaseProjectID string

	KMSMode        string
	KMSEndpoint    string
	GCPAccessToken string
	KMSProjectID   string
	KMSLocationID  string
	KMSKeyRingID   string
	KMSKeyID       string
	KMSKeyVersion  string
	SignerAddress  string
	DefaultKeyType string
	KeysFile       string

	SoftSigningKeyHex string

	DigestMode     string
	SignatureVMode string
	IssuedAtUnit   string

	TwitterBearerToken  string
	TwitterClientID     string
	TwitterClientSecret string
	TwitterAPIURL       string
	TwitterTokenURL     string

	PolicyEnabled        bool
	PolicyPath           string
	AuditRecordRejection bool

	RedisAddr                string
	RedisPassword            string
	RedisDB                  int
	PublicKeyCacheTTLSeconds int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                 addr,
		PostgresDSN:              os.Getenv("POSTGRES_DSN"),
		LogLevel:                 envDefault("LOG_LEVEL", "info"),
		LogFormat:                envDefault("LOG_FORMAT", "json"),
		AuthMode:                 envDefault("AUTH_MODE", "oidc"),
		AuthHeader:               envDefault("AUTH_HEADER", "X-Principal-Subject"),
		OIDCIssuerURL:            os.Getenv("OIDC_ISSUER_URL"),
		OIDCClientID:             os.Getenv("OIDC_CLIENT_ID"),
		FirebaseProjectID:        os.Getenv("FIREBASE_PROJECT_ID"),
		KMSMode:                  envDefault("KMS_MODE", "gcp"),
		KMSEndpoint:              envDefault("KMS_ENDPOINT", "https://cloudkms.googleapis.com"),
		GCPAccessToken:           os.Getenv("GCP_ACCESS_TOKEN"),
		KMSProjectID:             os.Getenv("KMS_PROJECT_ID"),
		KMSLocationID:            envDefault("KMS_LOCATION_ID", "global"),
		KMSKeyRingID:             os.Getenv("KMS_KEY_RING_ID"),
		KMSKeyID:                 os.Getenv("KMS_KEY_ID"),
		KMSKeyVersion:            envDefault("KMS_KEY_VERSION", "1"),
		SignerAddress:            os.Getenv("SIGNER_ADDRESS"),
		DefaultKeyType:           envDefault("DEFAULT_KEY_TYPE", "identity"),
		KeysFile:                 os.Getenv("KEYS_FILE"),
		SoftSigningKeyHex:        os.Getenv("SOFT_SIGNING_KEY_HEX"),
		DigestMode:               envDefault("DIGEST_MODE", "eth-personal"),
		SignatureVMode:           envDefault("SIGNATURE_V_MODE", "legacy"),
		IssuedAtUnit:             envDefault("ISSUED_AT_UNIT", "seconds"),
		TwitterBearerToken:       os.Getenv("TWITTER_BEARER_TOKEN"),
		TwitterClientID:          os.Getenv("TWITTER_CLIENT_ID"),
		TwitterClientSecret:      os.Getenv("TWITTER_CLIENT_SECRET"),
		TwitterAPIURL:            envDefault("TWITTER_API_URL", "https://api.twitter.com"),
		TwitterTokenURL:          envDefault("TWITTER_TOKEN_URL", "https://api.twitter.com/oauth2/token"),
		PolicyEnabled:            envBoolDefault("POLICY_ENABLED", false),
		PolicyPath:               os.Getenv("POLICY_PATH"),
		AuditRecordRejection:     envBoolDefault("AUDIT_RECORD_REJECTIONS", true),
		RedisAddr:                os.Getenv("REDIS_ADDR"),
		RedisPassword:            os.Getenv("REDIS_PASSWORD"),
		RedisDB:                  envIntDefault("REDIS_DB", 0),
		PublicKeyCacheTTLSeconds: envIntDefault("PUBLIC_KEY_CACHE_TTL_SECONDS", 0),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

// OIDCIssuer resolves the ID token issuer. A Firebase project id maps to the
// securetoken issuer when no explicit issuer is set.
func (c Config) OIDCIssuer() string {
	if issuer := strings.TrimSpace(c.OIDCIssuerURL); issuer != "" {
		return issuer
	}
	if c.FirebaseProjectID != "" {
		return "https://securetoken.google.com/" + c.FirebaseProjectID
	}
	return ""
}

// OIDCAudience defaults to the Firebase project id, which is what Firebase ID
// tokens carry in aud.
func (c Config) OIDCAudience() string {
	if c.OIDCClientID != "" {
		return c.OIDCClientID
	}
	return c.FirebaseProjectID
}

// PublicKeyCacheTTL is zero when cached keys never expire. Key versions are
// immutable, so that is the default.
func (c Config) PublicKeyCacheTTL() time.Duration {
	if c.PublicKeyCacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.PublicKeyCacheTTLSeconds) * time.Second
}

func (c Config) IssuedAtMillis() bool {
	return strings.EqualFold(c.IssuedAtUnit, "milliseconds") || strings.EqualFold(c.IssuedAtUnit, "ms")
}

// PolicyGate is on when explicitly enabled or when a policy path is given.
func (c Config) PolicyGate() bool {
	return c.PolicyEnabled || strings.TrimSpace(c.PolicyPath) != ""
}
