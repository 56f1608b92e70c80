package gcpkms

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/config"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
)

// Cloud KMS resource ids: letters, digits, underscore and hyphen, 1-63 chars.
var resourceID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,63}$`)

// ParseKeyName splits a full cryptoKeyVersions resource name.
func ParseKeyName(name string) (domain.KeyReference, error) {
	parts := strings.Split(strings.TrimPrefix(strings.TrimSpace(name), "/"), "/")
	if len(parts) != 10 ||
		parts[0] != "projects" || parts[2] != "locations" || parts[4] != "keyRings" ||
		parts[6] != "cryptoKeys" || parts[8] != "cryptoKeyVersions" {
		return domain.KeyReference{}, fmt.Errorf("%w: %q", domain.ErrInvalidKeyReference, name)
	}
	ref := domain.KeyReference{
		ProjectID:  parts[1],
		LocationID: parts[3],
		KeyRingID:  parts[5],
		KeyID:      parts[7],
		VersionID:  parts[9],
	}
	return ref, ValidateReference(ref)
}

func ValidateReference(ref domain.KeyReference) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	for field, v := range map[string]string{
		"project":  ref.ProjectID,
		"location": ref.LocationID,
		"keyRing":  ref.KeyRingID,
		"key":      ref.KeyID,
		"version":  ref.VersionID,
	} {
		if !resourceID.MatchString(v) {
			return fmt.Errorf("%w: bad %s id %q", domain.ErrInvalidKeyReference, field, v)
		}
	}
	return nil
}

// ReferenceFromConfig builds the default key reference from the KMS_* env.
func ReferenceFromConfig(cfg config.Config) (domain.KeyReference, error) {
	ref := domain.KeyReference{
		ProjectID:  cfg.KMSProjectID,
		LocationID: cfg.KMSLocationID,
		KeyRingID:  cfg.KMSKeyRingID,
		KeyID:      cfg.KMSKeyID,
		VersionID:  cfg.KMSKeyVersion,
	}
	if err := ValidateReference(ref); err != nil {
		return domain.KeyReference{}, err
	}
	return ref, nil
}
