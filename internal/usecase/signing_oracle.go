package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/crypto"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/ethsig"

	"go.uber.org/zap"
)

// SigningOracle signs digests with one KMS key version and returns
// Ethereum-recoverable signatures.
type SigningOracle struct {
	KMS     domain.KeyManagement
	Ref     domain.KeyReference
	Digests *crypto.Service
	Encoder ethsig.Encoder
	Cache   PublicKeyCache
	// CacheTTL of zero keeps keys until restart. Key versions never change.
	CacheTTL time.Duration
	Logger   *zap.Logger

	// published is the address operators distribute for this key. When set,
	// recovery is checked against it instead of the derived one.
	published *ethsig.Address
}

type SigningOracleOptions struct {
	Digests       *crypto.Service
	Encoder       ethsig.Encoder
	Cache         PublicKeyCache
	CacheTTL      time.Duration
	SignerAddress string
	Logger        *zap.Logger
}

func NewSigningOracle(kms domain.KeyManagement, ref domain.KeyReference, opts SigningOracleOptions) (*SigningOracle, error) {
	if kms == nil {
		return nil, errors.New("key management is required")
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	o := &SigningOracle{
		KMS:      kms,
		Ref:      ref,
		Digests:  opts.Digests,
		Encoder:  opts.Encoder,
		Cache:    opts.Cache,
		CacheTTL: opts.CacheTTL,
		Logger:   opts.Logger,
	}
	if o.Digests == nil {
		o.Digests = &crypto.Service{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if opts.SignerAddress != "" {
		addr, err := ethsig.ParseAddress(opts.SignerAddress)
		if err != nil {
			return nil, fmt.Errorf("signer address: %w", err)
		}
		o.published = &addr
	}
	return o, nil
}

// GetAddress returns the checksum address of the key.
func (o *SigningOracle) GetAddress(ctx context.Context) (string, error) {
	addr, err := o.derivedAddress(ctx)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

func (o *SigningOracle) derivedAddress(ctx context.Context) (ethsig.Address, error) {
	material, err := o.publicKey(ctx)
	if err != nil {
		return ethsig.Address{}, err
	}
	der, err := ethsig.ParsePublicKeyPEM(material.PEM)
	if err != nil {
		return ethsig.Address{}, err
	}
	return ethsig.DeriveAddress(der)
}

func (o *SigningOracle) publicKey(ctx context.Context) (domain.PublicKeyMaterial, error) {
	name := o.Ref.Name()
	if o.Cache != nil {
		cached, ok, err := o.Cache.Get(ctx, name)
		if err != nil {
			o.Logger.Warn("public key cache read failed", zap.String("key", name), zap.Error(err))
		} else if ok {
			verr := verifyPublicKey(name, *cached)
			if verr == nil {
				return *cached, nil
			}
			o.Logger.Warn("ignoring cached public key", zap.String("key", name), zap.Error(verr))
		}
	}
	material, err := o.KMS.GetPublicKey(ctx, name)
	if err != nil {
		return domain.PublicKeyMaterial{}, fmt.Errorf("get public key: %w", err)
	}
	if err := verifyPublicKey(name, material); err != nil {
		o.Logger.Error("public key integrity check failed", zap.String("key", name), zap.Error(err))
		return domain.PublicKeyMaterial{}, err
	}
	if o.Cache != nil {
		if err := o.Cache.Put(ctx, name, material, o.CacheTTL); err != nil {
			o.Logger.Warn("public key cache write failed", zap.String("key", name), zap.Error(err))
		}
	}
	return material, nil
}

func verifyPublicKey(name string, material domain.PublicKeyMaterial) error {
	if material.Name != name {
		return fmt.Errorf("%w: public key name echo mismatch", domain.ErrIntegrityViolation)
	}
	if material.PEMCRC32C == nil || *material.PEMCRC32C != crypto.CRC32C([]byte(material.PEM)) {
		return fmt.Errorf("%w: public key checksum mismatch", domain.ErrIntegrityViolation)
	}
	return nil
}

// expectedAddress is the published address when configured, otherwise the
// one derived from the KMS public key.
func (o *SigningOracle) expectedAddress(ctx context.Context) (ethsig.Address, error) {
	if o.published != nil {
		return *o.published, nil
	}
	return o.derivedAddress(ctx)
}

// SignClaim encodes and hashes claim, then signs the digest.
func (o *SigningOracle) SignClaim(ctx context.Context, claim domain.AuthProofClaim, chainID *big.Int) (domain.SignedAuthProof, error) {
	digest, err := o.Digests.ClaimDigest(claim)
	if err != nil {
		return domain.SignedAuthProof{}, err
	}
	sig, err := o.SignDigest(ctx, digest, chainID)
	if err != nil {
		return domain.SignedAuthProof{}, err
	}
	return domain.SignedAuthProof{AuthProofClaim: claim, Signature: sig}, nil
}

// SignDigest signs a 32-byte digest. Integrity and recovery failures are
// returned as is and never retried.
func (o *SigningOracle) SignDigest(ctx context.Context, digest [32]byte, chainID *big.Int) (domain.Signature, error) {
	if err := ethsig.CheckChainID(chainID); err != nil {
		return domain.Signature{}, err
	}
	expected, err := o.expectedAddress(ctx)
	if err != nil {
		return domain.Signature{}, err
	}
	name := o.Ref.Name()
	raw, err := o.KMS.AsymmetricSign(ctx, domain.SignRequest{
		Name:         name,
		Digest:       digest[:],
		DigestCRC32C: crypto.CRC32C(digest[:]),
	})
	if err != nil {
		return domain.Signature{}, fmt.Errorf("asymmetric sign: %w", err)
	}
	if err := verifySignResponse(name, raw); err != nil {
		o.Logger.Error("sign response integrity check failed", zap.String("key", name), zap.Error(err))
		return domain.Signature{}, err
	}
	sig, err := ethsig.FromDER(raw.DER, digest[:], ethsig.ExpectAddress(expected), o.Encoder, chainID)
	if err != nil {
		o.Logger.Error("signature conversion failed", zap.String("key", name), zap.String("expected", expected.Hex()), zap.Error(err))
		return domain.Signature{}, err
	}
	return sig, nil
}

func verifySignResponse(name string, raw domain.RawSignature) error {
	if subtle.ConstantTimeCompare([]byte(raw.Name), []byte(name)) != 1 {
		return fmt.Errorf("%w: signature name echo mismatch", domain.ErrIntegrityViolation)
	}
	if !raw.VerifiedDigestCRC32C {
		return fmt.Errorf("%w: digest checksum not verified", domain.ErrIntegrityViolation)
	}
	if raw.SignatureCRC32C == nil || *raw.SignatureCRC32C != crypto.CRC32C(raw.DER) {
		return fmt.Errorf("%w: signature checksum mismatch", domain.ErrIntegrityViolation)
	}
	return nil
}

// SignMessage signs a 32-byte hex message under the Ethereum personal
// message prefix and returns the concatenated signature.
func (o *SigningOracle) SignMessage(ctx context.Context, messageHex string, chainID *big.Int) (domain.Signature, error) {
	message, err := ethsig.ParseHex32(messageHex)
	if err != nil {
		return domain.Signature{}, fmt.Errorf("%w: %v", domain.ErrInvalidDigest, err)
	}
	return o.SignDigest(ctx, crypto.PersonalMessageDigest(message[:]), chainID)
}
