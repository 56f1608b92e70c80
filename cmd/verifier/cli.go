package main

import (
	"fmt"
	"io"
	"path/filepath"
)

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(args, stderr)
		return 1
	}

	switch args[1] {
	case "address":
		return runAddress(args[2:], stdout, stderr)
	case "checksum":
		return runChecksum(args[2:], stdout, stderr)
	case "recover":
		return runRecover(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	}

	usage(args, stderr)
	return 1
}

func usage(args []string, w io.Writer) {
	name := "verifier"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(w, "usage:\n")
	fmt.Fprintf(w, "  %s address --pem <public_key.pem>\n", name)
	fmt.Fprintf(w, "  %s checksum <0x address>\n", name)
	fmt.Fprintf(w, "  %s recover --digest <hex32> (--sig <0x r||s||v> | --r <hex32> --s <hex32> --v <n>) [--chain-id <n>]\n", name)
	fmt.Fprintf(w, "  %s verify --in <auth_proof.json> --address <0x address> [--digest-mode eth-personal|sha256] [--chain-id <n>]\n", name)
}
