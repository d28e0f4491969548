// Command cachegate-keygen generates an Ed25519 keypair for cachegate's
// presigned-URL scheme and prints both halves base64url-encoded, ready to
// paste into auth.public_key / auth.private_key.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"flag"
	"fmt"
	"os"

	"github.com/cachegate/cachegate/internal/presign"
)

func main() {
	out := flag.String("out", "", "write PUBLIC_KEY/PRIVATE_KEY lines to this file instead of stdout")
	flag.Parse()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cachegate-keygen: %v\n", err)
		os.Exit(1)
	}

	lines := fmt.Sprintf(
		"CACHEGATE_AUTH_PUBLIC_KEY=%s\nCACHEGATE_AUTH_PRIVATE_KEY=%s\n",
		presign.EncodeKey(pub),
		presign.EncodeKey(priv.Seed()),
	)

	if *out == "" {
		fmt.Print(lines)
		return
	}

	if err := os.WriteFile(*out, []byte(lines), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "cachegate-keygen: write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("cachegate-keygen: wrote keypair to %s\n", *out)
}
