// klingvault-cli is a command-line client for a klingvaultd node.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Klingon-tech/klingvault/config"
	"github.com/Klingon-tech/klingvault/internal/rpcclient"
	"github.com/Klingon-tech/klingvault/pkg/types"
	"golang.org/x/term"
)

// keystoreDir returns the keystore path matching klingvaultd's layout:
// <datadir>/<network>/keystore
func keystoreDir(dataDir, network string) string {
	return filepath.Join(dataDir, network, "keystore")
}

// env carries the global flags to subcommands.
type env struct {
	client *rpcclient.Client
	ksDir  string
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	rpcURL := ""
	chainID := ""
	dataDir := config.DefaultDataDir()
	network := string(config.Mainnet)

	args := os.Args[1:]
scan:
	for len(args) > 0 {
		switch {
		case args[0] == "--rpc" && len(args) > 1:
			rpcURL = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--rpc="):
			rpcURL = args[0][len("--rpc="):]
			args = args[1:]
		case args[0] == "--chain-id" && len(args) > 1:
			chainID = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--chain-id="):
			chainID = args[0][len("--chain-id="):]
			args = args[1:]
		case args[0] == "--datadir" && len(args) > 1:
			dataDir = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--datadir="):
			dataDir = args[0][len("--datadir="):]
			args = args[1:]
		case args[0] == "--network" && len(args) > 1:
			network = args[1]
			args = args[2:]
		case strings.HasPrefix(args[0], "--network="):
			network = args[0][len("--network="):]
			args = args[1:]
		case args[0] == "--testnet":
			network = string(config.Testnet)
			args = args[1:]
		default:
			break scan
		}
	}

	if network == string(config.Testnet) {
		types.SetAddressHRP(types.TestnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}
	if rpcURL == "" {
		cfg := config.Default(config.NetworkType(network))
		rpcURL = "http://" + cfg.RPCEndpoint()
	}

	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	e := &env{
		client: rpcclient.New(rpcURL),
		ksDir:  keystoreDir(dataDir, network),
	}
	if chainID != "" {
		e.client.SetChainID(chainID)
	}
	cmd, cmdArgs := args[0], args[1:]

	switch cmd {
	case "wallet":
		cmdWallet(e, cmdArgs)
	case "vault":
		cmdVault(e, cmdArgs)
	case "admin":
		cmdAdmin(e, cmdArgs)
	case "token":
		cmdToken(e, cmdArgs)
	case "nonce":
		cmdNonce(e, cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: klingvault-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: node default for the network)
  --chain-id <id>     Refuse to sign calls for a node on another chain
  --datadir <path>    Data directory (default: ~/.klingvault)
  --network <net>     mainnet (default) or testnet
  --testnet           Shorthand for --network testnet

Wallet:
  wallet create --name <n>        Create a new wallet
  wallet import --name <n> --mnemonic "..."
                                  Import wallet from mnemonic
  wallet list                     List wallets
  wallet address --wallet <w>     List wallet accounts
  wallet new-address --wallet <w> [--label <l>]
                                  Derive the next account

Vault (signed commands take --wallet <w> [--account <i>]):
  vault stats                     Show vault state
  vault position <address>        Show a participant's position
  vault pending <address>         Show claimable reward
  vault events [--from <seq>] [--limit <n>]
                                  List vault events
  vault audit                     Check ledger and custody consistency
  vault deposit --amount <amt> [--approve]
  vault withdraw --amount <amt>
  vault claim
  vault exit
  vault emergency-withdraw

Admin (signed):
  admin fund --amount <amt> --duration <secs>
  admin set-rate --rate <amt/sec> --duration <secs>
  admin set-lock --seconds <secs>
  admin set-limits --min <amt> --max <amt>
  admin set-fee --bps <n>
  admin pause | unpause
  admin grant --role <r> --account <addr>
  admin revoke --role <r> --account <addr>
  admin roles <role>              List role members
  admin collect-fees --to <addr>

Token:
  token info <symbol>
  token balance <symbol> <address>
  token allowance <symbol> <owner> <spender>
  token approve --token <s> --spender <addr|vault> --amount <amt>   (signed)
  token transfer --token <s> --to <addr> --amount <amt>             (signed)
  token mint --token <s> --to <addr> --amount <amt>                 (signed)

  nonce <address>                 Show the next call nonce
`)
}

func cmdNonce(e *env, args []string) {
	if len(args) != 1 {
		fatal("Usage: klingvault-cli nonce <address>")
	}
	res, err := e.client.Nonce(mustAddress(args[0]))
	if err != nil {
		fatal("account_getNonce: %v", err)
	}
	fmt.Printf("Address:    %s\n", res.Address)
	fmt.Printf("Last nonce: %d\n", res.Nonce)
	fmt.Printf("Next nonce: %d\n", res.Next)
}

// ── Helpers ─────────────────────────────────────────────────────────────

func mustAddress(s string) types.Address {
	addr, err := types.ParseAddress(s)
	if err != nil {
		fatal("invalid address %q: %v", s, err)
	}
	return addr
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encode: %v", err)
	}
	fmt.Println(string(data))
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return password, nil
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
