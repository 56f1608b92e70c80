package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/domain"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/crypto"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/ethsig"
)

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var pemPath string
	fs.StringVar(&pemPath, "pem", "", "PEM encoded secp256k1 public key")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if pemPath == "" {
		fmt.Fprintln(stderr, "address requires --pem")
		return 1
	}
	raw, err := os.ReadFile(pemPath)
	if err != nil {
		fmt.Fprintf(stderr, "read pem: %v\n", err)
		return 1
	}
	spki, err := ethsig.ParsePublicKeyPEM(string(raw))
	if err != nil {
		fmt.Fprintf(stderr, "parse pem: %v\n", err)
		return 1
	}
	addr, err := ethsig.DeriveAddress(spki)
	if err != nil {
		fmt.Fprintf(stderr, "derive address: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, addr.Hex())
	return 0
}

func runChecksum(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "checksum requires <0x address>")
		return 1
	}
	out, err := ethsig.ChecksumHex(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "checksum: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, out)
	return 0
}

func runRecover(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("recover", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var digestHex, sigHex, rHex, sHex, chainIDText string
	var v uint64
	fs.StringVar(&digestHex, "digest", "", "32-byte digest hex")
	fs.StringVar(&sigHex, "sig", "", "concatenated signature hex")
	fs.StringVar(&rHex, "r", "", "r hex")
	fs.StringVar(&sHex, "s", "", "s hex")
	fs.Uint64Var(&v, "v", 0, "v")
	fs.StringVar(&chainIDText, "chain-id", "", "chain id for chain-aware v")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	digest, err := ethsig.ParseHex32(digestHex)
	if err != nil {
		fmt.Fprintf(stderr, "digest: %v\n", err)
		return 1
	}
	chainID, err := parseChainIDFlag(chainIDText)
	if err != nil {
		fmt.Fprintf(stderr, "chain id: %v\n", err)
		return 1
	}
	var r, s [32]byte
	if sigHex != "" {
		r, s, v, err = ethsig.SplitConcat(sigHex)
	} else {
		r, s, err = parseRS(rHex, sHex)
	}
	if err != nil {
		fmt.Fprintf(stderr, "signature: %v\n", err)
		return 1
	}
	addr, err := ethsig.Recover(digest[:], r, s, v, chainID)
	if err != nil {
		fmt.Fprintf(stderr, "recover: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, addr.Hex())
	return 0
}

func runVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var inPath, addressText, digestModeText, chainIDText string
	fs.StringVar(&inPath, "in", "", "auth proof JSON (the proof or the full response)")
	fs.StringVar(&addressText, "address", "", "published signer address")
	fs.StringVar(&digestModeText, "digest-mode", string(crypto.DigestEthPersonal), "digest mode used by the signer")
	fs.StringVar(&chainIDText, "chain-id", "", "chain id for chain-aware v")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if inPath == "" || addressText == "" {
		fmt.Fprintln(stderr, "verify requires --in and --address")
		return 1
	}

	expected, err := ethsig.ParseAddress(addressText)
	if err != nil {
		fmt.Fprintf(stderr, "address: %v\n", err)
		return 1
	}
	mode, err := crypto.ParseDigestMode(digestModeText)
	if err != nil {
		fmt.Fprintf(stderr, "digest mode: %v\n", err)
		return 1
	}
	chainID, err := parseChainIDFlag(chainIDText)
	if err != nil {
		fmt.Fprintf(stderr, "chain id: %v\n", err)
		return 1
	}
	payload, err := os.ReadFile(inPath)
	if err != nil {
		fmt.Fprintf(stderr, "read proof: %v\n", err)
		return 1
	}
	proof, err := decodeProof(payload)
	if err != nil {
		fmt.Fprintf(stderr, "decode proof: %v\n", err)
		return 1
	}

	digest, err := (&crypto.Service{Mode: mode}).ClaimDigest(proof.AuthProofClaim)
	if err != nil {
		fmt.Fprintf(stderr, "claim digest: %v\n", err)
		return 1
	}
	r, s, v, err := proofSignature(proof)
	if err != nil {
		fmt.Fprintf(stderr, "signature: %v\n", err)
		return 1
	}
	recovered, err := ethsig.Recover(digest[:], r, s, v, chainID)
	if err != nil {
		fmt.Fprintf(stdout, "status=fail reason=%v\n", err)
		return 1
	}
	if recovered != expected {
		fmt.Fprintf(stdout, "status=fail recovered=%s expected=%s\n", recovered.Hex(), expected.Hex())
		return 1
	}
	fmt.Fprintf(stdout, "status=pass signer=%s request_id=%s issued_at=%d\n", recovered.Hex(), proof.RequestID, proof.IssuedAt)
	return 0
}

// decodeProof accepts either the bare proof or the {code, authProof} response.
func decodeProof(payload []byte) (domain.SignedAuthProof, error) {
	var wrapped domain.Result
	if err := json.Unmarshal(payload, &wrapped); err == nil && wrapped.AuthProof != nil {
		return *wrapped.AuthProof, nil
	}
	var proof domain.SignedAuthProof
	if err := json.Unmarshal(payload, &proof); err != nil {
		return domain.SignedAuthProof{}, err
	}
	if proof.Sig == "" && proof.R == "" {
		return domain.SignedAuthProof{}, errors.New("no signature in document")
	}
	return proof, nil
}

// proofSignature prefers the separate r, s, v fields and falls back to sig.
func proofSignature(proof domain.SignedAuthProof) (r, s [32]byte, v uint64, err error) {
	if proof.R != "" && proof.S != "" {
		r, s, err = parseRS(proof.R, proof.S)
		return r, s, proof.V, err
	}
	return ethsig.SplitConcat(proof.Sig)
}

func parseRS(rHex, sHex string) (r, s [32]byte, err error) {
	if r, err = ethsig.ParseHex32(rHex); err != nil {
		return r, s, fmt.Errorf("r: %w", err)
	}
	if s, err = ethsig.ParseHex32(sHex); err != nil {
		return r, s, fmt.Errorf("s: %w", err)
	}
	return r, s, nil
}

func parseChainIDFlag(text string) (*big.Int, error) {
	if text == "" {
		return nil, nil
	}
	id, ok := ethsig.ParseChainID(text)
	if !ok {
		return nil, fmt.Errorf("invalid chain id %q", text)
	}
	return id, ethsig.CheckChainID(id)
}
