package ethsig

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	oidPublicKeyECDSA      = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidNamedCurveSecp256k1 = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

type subjectPublicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

// ParsePublicKeyPEM decodes a PEM "PUBLIC KEY" block and returns its DER
// SubjectPublicKeyInfo after checking it holds a secp256k1 point.
func ParsePublicKeyPEM(pemText string) ([]byte, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("%w: no PUBLIC KEY block", domain.ErrInvalidPublicKey)
	}
	if _, err := parseSPKI(block.Bytes); err != nil {
		return nil, err
	}
	return block.Bytes, nil
}

func PublicKeyFromPEM(pemText string) (*secp256k1.PublicKey, error) {
	der, err := ParsePublicKeyPEM(pemText)
	if err != nil {
		return nil, err
	}
	return parseSPKI(der)
}

// MarshalPublicKeyPEM encodes pub as an uncompressed SubjectPublicKeyInfo PEM,
// the same shape Cloud KMS returns for EC_SIGN_SECP256K1_SHA256 keys.
func MarshalPublicKeyPEM(pub *secp256k1.PublicKey) (string, error) {
	params, err := asn1.Marshal(oidNamedCurveSecp256k1)
	if err != nil {
		return "", err
	}
	point := pub.SerializeUncompressed()
	der, err := asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: pkix.AlgorithmIdentifier{
			Algorithm:  oidPublicKeyECDSA,
			Parameters: asn1.RawValue{FullBytes: params},
		},
		PublicKey: asn1.BitString{Bytes: point, BitLength: len(point) * 8},
	})
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func parseSPKI(der []byte) (*secp256k1.PublicKey, error) {
	var spki subjectPublicKeyInfo
	rest, err := asn1.Unmarshal(der, &spki)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPublicKey, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing data", domain.ErrInvalidPublicKey)
	}
	if !spki.Algorithm.Algorithm.Equal(oidPublicKeyECDSA) {
		return nil, fmt.Errorf("%w: not an EC key", domain.ErrInvalidPublicKey)
	}
	var curve asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(spki.Algorithm.Parameters.FullBytes, &curve); err != nil || !curve.Equal(oidNamedCurveSecp256k1) {
		return nil, fmt.Errorf("%w: curve is not secp256k1", domain.ErrInvalidPublicKey)
	}
	pub, err := secp256k1.ParsePubKey(spki.PublicKey.RightAlign())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPublicKey, err)
	}
	return pub, nil
}
