package domain

import (
	"context"
	"fmt"
)

const keyVersionPathFormat = "projects/%s/locations/%s/keyRings/%s/cryptoKeys/%s/cryptoKeyVersions/%s"

// KeyReference identifies one immutable Cloud KMS key version.
type KeyReference struct {
	ProjectID  string
	LocationID string
	KeyRingID  string
	KeyID      string
	VersionID  string
}

// Name renders the canonical resource name echoed back by the KMS.
func (r KeyReference) Name() string {
	return fmt.Sprintf(keyVersionPathFormat, r.ProjectID, r.LocationID, r.KeyRingID, r.KeyID, r.VersionID)
}

func (r KeyReference) Validate() error {
	if r.ProjectID == "" || r.LocationID == "" || r.KeyRingID == "" || r.KeyID == "" || r.VersionID == "" {
		return ErrInvalidKeyReference
	}
	return nil
}

// PublicKeyMaterial is the provider response for a public key fetch.
// PEMCRC32C is nil when the provider omitted the checksum.
type PublicKeyMaterial struct {
	Name      string
	PEM       string
	PEMCRC32C *uint32
	Algorithm string
}

type SignRequest struct {
	Name         string
	Digest       []byte
	DigestCRC32C uint32
}

// RawSignature is the DER signature returned by AsymmetricSign together with
// the integrity fields of the response.
type RawSignature struct {
	Name                 string
	DER                  []byte
	SignatureCRC32C      *uint32
	VerifiedDigestCRC32C bool
}

// KeyManagement is the remote signing backend. The private key never leaves it.
type KeyManagement interface {
	GetPublicKey(ctx context.Context, name string) (PublicKeyMaterial, error)
	AsymmetricSign(ctx context.Context, req SignRequest) (RawSignature, error)
}
