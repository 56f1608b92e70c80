package ethsig

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/crypto"
)

const AddressLength = 20

// Address is a 20-byte account address.
type Address [AddressLength]byte

var errInvalidAddress = errors.New("invalid address")

// AddressFromXY hashes a raw 64-byte X||Y point and keeps the last 20 bytes.
func AddressFromXY(xy []byte) (Address, error) {
	var a Address
	if len(xy) != 64 {
		return a, fmt.Errorf("%w: expected 64-byte point, got %d", domain.ErrInvalidPublicKey, len(xy))
	}
	h := crypto.Keccak256(xy)
	copy(a[:], h[len(h)-AddressLength:])
	return a, nil
}

func AddressFromPublicKey(pub *secp256k1.PublicKey) Address {
	raw := pub.SerializeUncompressed()
	a, _ := AddressFromXY(raw[1:])
	return a
}

// DeriveAddress derives the account address from a DER SubjectPublicKeyInfo.
// For the uncompressed points KMS returns, X||Y is the trailing 64 bytes of
// the structure.
func DeriveAddress(spkiDER []byte) (Address, error) {
	pub, err := parseSPKI(spkiDER)
	if err != nil {
		return Address{}, err
	}
	return AddressFromPublicKey(pub), nil
}

// ParseAddress accepts a 0x-prefixed or bare 40 character hex address. Mixed
// case input must carry a valid checksum.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != 2*AddressLength {
		return a, errInvalidAddress
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return a, errInvalidAddress
	}
	copy(a[:], decoded)
	lower := strings.ToLower(raw)
	upper := strings.ToUpper(raw)
	if raw != lower && raw != upper && checksum(lower) != "0x"+raw {
		return Address{}, fmt.Errorf("%w: bad checksum", errInvalidAddress)
	}
	return a, nil
}

// Hex returns the mixed-case checksum encoding.
func (a Address) Hex() string {
	return checksum(hex.EncodeToString(a[:]))
}

func (a Address) Lower() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

func (a Address) IsZero() bool {
	return a == Address{}
}

// ChecksumHex re-encodes any hex address in checksum case.
func ChecksumHex(s string) (string, error) {
	a, err := ParseAddress(strings.ToLower(s))
	if err != nil {
		return "", err
	}
	return a.Hex(), nil
}

// checksum uppercases each hex letter whose nibble in keccak256(lowerHex) is
// greater than 7.
func checksum(lowerHex string) string {
	hash := crypto.Keccak256([]byte(lowerHex))
	out := []byte(lowerHex)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble > 7 {
			out[i] = c - ('a' - 'A')
		}
	}
	return "0x" + string(out)
}
