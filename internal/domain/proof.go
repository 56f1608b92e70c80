package domain

import "math/big"

type AuthType string

const (
	AuthTypeOAuth   AuthType = "oauth"
	AuthTypeTwitter AuthType = "twitter"
)

// AuthProofClaim is the unsigned statement covered by the signature.
type AuthProofClaim struct {
	Name         string   `json:"name"`
	RequestID    string   `json:"requestId"`
	AuthType     AuthType `json:"authType"`
	IdentityType string   `json:"identityType"`
	IssuedAt     uint64   `json:"issuedAt"`
}

// Signature is the Ethereum-recoverable form of a KMS signature. R and S are
// 0x-prefixed 32-byte hex strings; Sig is the concatenated presentation.
type Signature struct {
	R   string `json:"r"`
	S   string `json:"s"`
	V   uint64 `json:"v"`
	Sig string `json:"sig"`
}

type SignedAuthProof struct {
	AuthProofClaim
	Signature
}

// ProofRequest is the inbound call after transport decoding.
type ProofRequest struct {
	AuthType     AuthType       `json:"authType"`
	IdentityType string         `json:"identityType"`
	RequestID    string         `json:"requestId"`
	Name         string         `json:"name,omitempty"`
	KeyType      string         `json:"keyType,omitempty"`
	ChainID      *big.Int       `json:"chainId,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
}

// Result is what the pipeline hands back to the caller.
type Result struct {
	Code      int              `json:"code"`
	Message   string           `json:"message,omitempty"`
	AuthProof *SignedAuthProof `json:"authProof,omitempty"`
}
