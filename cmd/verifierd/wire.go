package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/config"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/auditlog"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/auth/header"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/auth/oidc"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/cachemem"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/cacheredis"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/crypto"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/db"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/ethsig"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/gcpclient"
	httpinfra "github.com/HexlinkOfficial/hexlink-verifier/internal/infra/http"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/keys/gcpkms"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/keys/soft"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/policyopa"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/social/twitter"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/usecase"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"go.uber.org/zap"
)

type app struct {
	server  *httpinfra.Server
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// build wires every dependency from cfg. Misconfiguration fails here rather
// than on the first request.
func build(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	a := &app{}
	health := make(map[string]httpinfra.HealthCheck)

	kms, err := buildKMS(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	cache, err := buildCache(cfg, a, health)
	if err != nil {
		return nil, err
	}
	signers, err := buildSigners(ctx, cfg, kms, cache, log)
	if err != nil {
		return nil, err
	}

	verifier, err := oidc.NewVerifierFromConfig(ctx, cfg)
	if err != nil && cfg.AuthMode == "oidc" {
		return nil, fmt.Errorf("oidc verifier: %w", err)
	}
	if err != nil {
		log.Warn("oidc verifier unavailable; oauth proofs will fail", zap.Error(err))
	}

	var authenticator domain.Authenticator
	switch cfg.AuthMode {
	case "oidc":
		authenticator = verifier
	case "header":
		authenticator = header.NewAuthenticator(cfg.AuthHeader)
	default:
		return nil, fmt.Errorf("unsupported AUTH_MODE %q", cfg.AuthMode)
	}

	registry := usecase.NewRegistry()
	var idVerifier domain.IdentityVerifier
	if verifier != nil {
		idVerifier = verifier
	}
	if err := registry.Register(domain.AuthTypeOAuth, &usecase.IDTokenValidator{Verifier: idVerifier}); err != nil {
		return nil, err
	}
	if social, err := twitter.NewFromConfig(ctx, cfg); err == nil {
		if err := registry.Register(domain.AuthTypeTwitter,
			&usecase.FollowValidator{Social: social},
			&usecase.RepostValidator{Social: social},
		); err != nil {
			return nil, err
		}
	} else {
		log.Info("twitter validation disabled", zap.Error(err))
	}

	var policy *usecase.PolicyValidator
	if cfg.PolicyGate() {
		engine, err := policyopa.NewEngine(ctx, cfg.PolicyPath)
		if err != nil {
			return nil, err
		}
		policy = &usecase.PolicyValidator{Policy: engine}
	}

	store, err := db.NewStore(cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	var auditRepo usecase.AuditEventRepository = auditlog.New(log, 0)
	if store.Enabled() {
		auditRepo = db.NewAuditEventRepository(store.DB)
		health["postgres"] = func(ctx context.Context) error {
			sqlDB, err := store.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	audit := usecase.NewAuditEmitter(auditRepo, nil)
	audit.RecordRejections = cfg.AuditRecordRejection

	pipeline := &usecase.Pipeline{
		Registry:       registry,
		Signers:        signers,
		Policy:         policy,
		Audit:          audit,
		IssuedAtMillis: cfg.IssuedAtMillis(),
		Logger:         log,
	}
	a.server = httpinfra.NewServerWithDeps(cfg, httpinfra.ServerDeps{
		Pipeline:      pipeline,
		Signers:       signers,
		Authenticator: authenticator,
		Health:        health,
		Logger:        log,
	})
	return a, nil
}

func buildKMS(ctx context.Context, cfg config.Config, log *zap.Logger) (domain.KeyManagement, error) {
	switch cfg.KMSMode {
	case "gcp":
		return gcpclient.NewFromConfig(ctx, cfg)
	case "soft":
		key, err := softSigningKey(cfg, log)
		if err != nil {
			return nil, err
		}
		keyTypes, err := gcpkms.LoadKeyTypes(cfg)
		if err != nil {
			return nil, err
		}
		keys := make(map[string]*secp256k1.PrivateKey, len(keyTypes))
		for _, kt := range keyTypes {
			keys[kt.Reference.Name()] = key
		}
		return soft.NewManager(keys), nil
	default:
		return nil, fmt.Errorf("unsupported KMS_MODE %q", cfg.KMSMode)
	}
}

func softSigningKey(cfg config.Config, log *zap.Logger) (*secp256k1.PrivateKey, error) {
	if cfg.SoftSigningKeyHex != "" {
		return soft.ParsePrivateKeyHex(cfg.SoftSigningKeyHex)
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	log.Warn("SOFT_SIGNING_KEY_HEX not set; using an ephemeral signing key")
	return soft.ParsePrivateKeyHex(hex.EncodeToString(raw))
}

func buildCache(cfg config.Config, a *app, health map[string]httpinfra.HealthCheck) (usecase.PublicKeyCache, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return cachemem.New(), nil
	}
	cache, err := cacheredis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	a.closers = append(a.closers, cache.Close)
	health["redis"] = cache.Ping
	return cache, nil
}

func buildSigners(ctx context.Context, cfg config.Config, kms domain.KeyManagement, cache usecase.PublicKeyCache, log *zap.Logger) (*usecase.Signers, error) {
	digestMode, err := crypto.ParseDigestMode(cfg.DigestMode)
	if err != nil {
		return nil, err
	}
	convention, err := ethsig.ParseConvention(cfg.SignatureVMode)
	if err != nil {
		return nil, err
	}
	keyTypes, err := gcpkms.LoadKeyTypes(cfg)
	if err != nil {
		return nil, err
	}
	oracles := make(map[string]*usecase.SigningOracle, len(keyTypes))
	for _, kt := range keyTypes {
		oracle, err := usecase.NewSigningOracle(kms, kt.Reference, usecase.SigningOracleOptions{
			Digests:       &crypto.Service{Mode: digestMode},
			Encoder:       ethsig.Encoder{Convention: convention},
			Cache:         cache,
			CacheTTL:      cfg.PublicKeyCacheTTL(),
			SignerAddress: kt.SignerAddress,
			Logger:        log.With(zap.String("key_type", kt.Name)),
		})
		if err != nil {
			return nil, fmt.Errorf("key type %q: %w", kt.Name, err)
		}
		oracles[kt.Name] = oracle
	}
	signers, err := usecase.NewSigners(cfg.DefaultKeyType, oracles)
	if err != nil {
		return nil, err
	}
	if err := signers.CheckPublished(ctx); err != nil {
		if errors.Is(err, domain.ErrRecoveryImpossible) {
			return nil, err
		}
		log.Warn("could not check published signer addresses", zap.Error(err))
	}
	return signers, nil
}
