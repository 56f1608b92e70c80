package ethsig

import (
	"fmt"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// DecodeDER parses a DER encoded ECDSA signature (SEQUENCE of two INTEGERs)
// into its r and s scalars. Both must be in [1, N-1].
func DecodeDER(der []byte) (r, s secp256k1.ModNScalar, err error) {
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return r, s, fmt.Errorf("%w: %v", domain.ErrMalformedSignature, err)
	}
	return sig.R(), sig.S(), nil
}
