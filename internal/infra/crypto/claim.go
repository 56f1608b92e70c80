package crypto

import (
	"fmt"
	"math/big"
	"unicode/utf8"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var claimArguments = mustClaimArguments()

func mustClaimArguments() abi.Arguments {
	bytes32, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic(err)
	}
	uint256, err := abi.NewType("uint256", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Name: "name", Type: bytes32},
		{Name: "requestId", Type: bytes32},
		{Name: "issuedAt", Type: uint256},
		{Name: "identityType", Type: bytes32},
		{Name: "authType", Type: bytes32},
	}
}

// EncodeClaim ABI-encodes the claim as
// (bytes32 name, bytes32 requestId, uint256 issuedAt, bytes32 identityType, bytes32 authType).
// Each string is packed left-aligned and zero padded, and must fit in 31
// bytes so the last byte stays a terminator.
func EncodeClaim(claim domain.AuthProofClaim) ([]byte, error) {
	name, err := Bytes32String(claim.Name)
	if err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	requestID, err := Bytes32String(claim.RequestID)
	if err != nil {
		return nil, fmt.Errorf("requestId: %w", err)
	}
	identityType, err := Bytes32String(claim.IdentityType)
	if err != nil {
		return nil, fmt.Errorf("identityType: %w", err)
	}
	authType, err := Bytes32String(string(claim.AuthType))
	if err != nil {
		return nil, fmt.Errorf("authType: %w", err)
	}
	return claimArguments.Pack(name, requestID, new(big.Int).SetUint64(claim.IssuedAt), identityType, authType)
}

// ClaimMessage is keccak256 of the claim encoding.
func ClaimMessage(claim domain.AuthProofClaim) ([32]byte, error) {
	var out [32]byte
	encoded, err := EncodeClaim(claim)
	if err != nil {
		return out, err
	}
	copy(out[:], gethcrypto.Keccak256(encoded))
	return out, nil
}

func Bytes32String(s string) ([32]byte, error) {
	var out [32]byte
	if !utf8.ValidString(s) {
		return out, fmt.Errorf("%w: invalid UTF-8", domain.ErrInvalidClaim)
	}
	if len(s) > 31 {
		return out, fmt.Errorf("%w: %d bytes exceeds 31", domain.ErrInvalidClaim, len(s))
	}
	copy(out[:], s)
	return out, nil
}
