//go:build ignore

// derive_key.go prints the pubkey and addresses for a hex-encoded private
// key file and can write a genesis that makes that key admin and treasury.
// Usage: go run scripts/derive_key.go <keyfile> [genesis-out.json]
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingvault/config"
	"github.com/Klingon-tech/klingvault/pkg/crypto"
	"github.com/Klingon-tech/klingvault/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <keyfile> [genesis-out.json]")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fail(err)
	}
	key, err := crypto.PrivateKeyFromHex(strings.TrimSpace(string(data)))
	if err != nil {
		fail(err)
	}
	defer key.Zero()

	addr := key.Address()
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(key.PublicKey()))
	types.SetAddressHRP(types.MainnetHRP)
	fmt.Printf("address=%s\n", addr)
	types.SetAddressHRP(types.TestnetHRP)
	fmt.Printf("testnet_address=%s\n", addr)

	if len(os.Args) < 3 {
		return
	}
	g := config.TestnetGenesis()
	g.ChainID = "klingvault-1"
	g.Admin, g.Treasury = addr, addr
	if err := g.Validate(); err != nil {
		fail(err)
	}
	if err := g.Save(os.Args[2]); err != nil {
		fail(err)
	}
	h, _ := g.Hash()
	fmt.Printf("genesis=%s hash=%s\n", os.Args[2], h)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
