package usecase

import (
	"encoding/asn1"
	"math/big"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/crypto"
)

var curveOrder, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)

// flipS re-encodes a DER signature with s replaced by N-s, which is what a
// KMS that does not normalize may return.
func flipS(der []byte) []byte {
	var sig struct{ R, S *big.Int }
	if _, err := asn1.Unmarshal(der, &sig); err != nil {
		return der
	}
	sig.S = new(big.Int).Sub(curveOrder, sig.S)
	out, err := asn1.Marshal(sig)
	if err != nil {
		return der
	}
	return out
}

func crc32c(b []byte) uint32 {
	return crypto.CRC32C(b)
}
