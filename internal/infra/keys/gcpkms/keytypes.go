package gcpkms

import (
	"errors"
	"fmt"
	"os"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/config"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"

	"sigs.k8s.io/yaml"
)

// KeyType binds a key type name used by callers to one KMS key version and,
// optionally, the address published for it.
type KeyType struct {
	Name          string
	Reference     domain.KeyReference
	SignerAddress string
}

type keysFile struct {
	Keys []keyEntry `json:"keys"`
}

type keyEntry struct {
	KeyType    string `json:"keyType"`
	KeyName    string `json:"keyName,omitempty"`
	ProjectID  string `json:"projectId,omitempty"`
	LocationID string `json:"locationId,omitempty"`
	KeyRingID  string `json:"keyRingId,omitempty"`
	KeyID      string `json:"keyId,omitempty"`
	Version    string `json:"version,omitempty"`
	Address    string `json:"address,omitempty"`
}

// LoadKeyTypes returns the default key type from the KMS_* env followed by
// any entries in KEYS_FILE. Entries may give a full keyName or the parts;
// missing project and location fall back to the env values.
func LoadKeyTypes(cfg config.Config) ([]KeyType, error) {
	def, err := ReferenceFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("default key type %q: %w", cfg.DefaultKeyType, err)
	}
	out := []KeyType{{Name: cfg.DefaultKeyType, Reference: def, SignerAddress: cfg.SignerAddress}}
	if cfg.KeysFile == "" {
		return out, nil
	}
	raw, err := os.ReadFile(cfg.KeysFile)
	if err != nil {
		return nil, fmt.Errorf("read KEYS_FILE: %w", err)
	}
	extra, err := ParseKeyTypes(raw, cfg)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{cfg.DefaultKeyType: true}
	for _, kt := range extra {
		if seen[kt.Name] {
			return nil, fmt.Errorf("duplicate key type %q", kt.Name)
		}
		seen[kt.Name] = true
		out = append(out, kt)
	}
	return out, nil
}

func ParseKeyTypes(raw []byte, cfg config.Config) ([]KeyType, error) {
	var file keysFile
	if err := yaml.UnmarshalStrict(raw, &file); err != nil {
		return nil, fmt.Errorf("parse KEYS_FILE: %w", err)
	}
	out := make([]KeyType, 0, len(file.Keys))
	for i, entry := range file.Keys {
		if entry.KeyType == "" {
			return nil, fmt.Errorf("keys[%d]: %w", i, errors.New("keyType is required"))
		}
		ref, err := entry.reference(cfg)
		if err != nil {
			return nil, fmt.Errorf("keys[%d] %q: %w", i, entry.KeyType, err)
		}
		out = append(out, KeyType{Name: entry.KeyType, Reference: ref, SignerAddress: entry.Address})
	}
	return out, nil
}

func (e keyEntry) reference(cfg config.Config) (domain.KeyReference, error) {
	if e.KeyName != "" {
		return ParseKeyName(e.KeyName)
	}
	ref := domain.KeyReference{
		ProjectID:  firstNonEmpty(e.ProjectID, cfg.KMSProjectID),
		LocationID: firstNonEmpty(e.LocationID, cfg.KMSLocationID),
		KeyRingID:  firstNonEmpty(e.KeyRingID, cfg.KMSKeyRingID),
		KeyID:      e.KeyID,
		VersionID:  firstNonEmpty(e.Version, "1"),
	}
	return ref, ValidateReference(ref)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
