package main

import (
	"flag"
	"fmt"

	"github.com/Klingon-tech/klingvault/internal/wallet"
	"github.com/Klingon-tech/klingvault/pkg/crypto"
)

func cmdWallet(e *env, args []string) {
	const use = "Usage: klingvault-cli wallet <create|import|list|address|new-address> [flags]"
	if len(args) < 1 {
		fatal(use)
	}
	switch args[0] {
	case "create":
		cmdWalletCreate(e, args[1:])
	case "import":
		cmdWalletImport(e, args[1:])
	case "list":
		cmdWalletList(e)
	case "address":
		cmdWalletAddress(e, args[1:])
	case "new-address":
		cmdWalletNewAddress(e, args[1:])
	default:
		fatal("Unknown wallet command: %s\n%s", args[0], use)
	}
}

func cmdWalletCreate(e *env, args []string) {
	fs := flag.NewFlagSet("wallet create", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: klingvault-cli wallet create --name <name>")
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}
	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	storeWallet(e, *name, mnemonic)
	fmt.Printf("\nWallet created: %s\n", *name)
}

func cmdWalletImport(e *env, args []string) {
	fs := flag.NewFlagSet("wallet import", flag.ExitOnError)
	name := fs.String("name", "", "Wallet name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic")
	fs.Parse(args)

	if *name == "" || *mnemonic == "" {
		fatal("Usage: klingvault-cli wallet import --name <name> --mnemonic \"word1 word2 ...\"")
	}
	if !wallet.ValidateMnemonic(*mnemonic) {
		fatal("invalid mnemonic")
	}

	storeWallet(e, *name, *mnemonic)
	fmt.Printf("Wallet imported: %s\n", *name)
}

// storeWallet encrypts the mnemonic's seed under a new password and
// records account 0.
func storeWallet(e *env, name, mnemonic string) {
	password := newPassword()

	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}
	ks, err := wallet.NewKeystore(e.ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	err = ks.Create(name, seed, password, wallet.DefaultParams())
	for i := range seed {
		seed[i] = 0
	}
	if err != nil {
		fatal("create wallet: %v", err)
	}

	acct, err := ks.NewAccount(name, password, "default")
	if err != nil {
		fatal("derive account: %v", err)
	}
	fmt.Printf("Address: %s\n", acct.Address)
}

func newPassword() []byte {
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passwords do not match")
	}
	return password
}

func cmdWalletList(e *env) {
	ks, err := wallet.NewKeystore(e.ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	names, err := ks.List()
	if err != nil {
		fatal("list wallets: %v", err)
	}
	if len(names) == 0 {
		fmt.Println("No wallets found.")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func cmdWalletAddress(e *env, args []string) {
	fs := flag.NewFlagSet("wallet address", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	fs.Parse(args)

	if *walletName == "" {
		fatal("Usage: klingvault-cli wallet address --wallet <name>")
	}
	ks, err := wallet.NewKeystore(e.ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	accounts, err := ks.ListAccounts(*walletName)
	if err != nil {
		fatal("list accounts: %v", err)
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts found.")
		return
	}
	for _, acct := range accounts {
		fmt.Printf("  [%d] %s  %s\n", acct.Index, acct.Address, acct.Name)
	}
}

func cmdWalletNewAddress(e *env, args []string) {
	fs := flag.NewFlagSet("wallet new-address", flag.ExitOnError)
	walletName := fs.String("wallet", "", "Wallet name")
	label := fs.String("label", "", "Account label")
	fs.Parse(args)

	if *walletName == "" {
		fatal("Usage: klingvault-cli wallet new-address --wallet <name> [--label <label>]")
	}
	ks, err := wallet.NewKeystore(e.ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	acct, err := ks.NewAccount(*walletName, password, *label)
	if err != nil {
		fatal("derive account: %v", err)
	}
	fmt.Printf("[%d] %s\n", acct.Index, acct.Address)
}

// signerFlags registers --wallet and --account on fs.
type signerFlags struct {
	wallet  *string
	account *uint
}

func addSignerFlags(fs *flag.FlagSet) signerFlags {
	return signerFlags{
		wallet:  fs.String("wallet", "", "Wallet name"),
		account: fs.Uint("account", 0, "Account index"),
	}
}

// key prompts for the wallet password and returns the account's signing
// key.
func (sf signerFlags) key(e *env) *crypto.PrivateKey {
	if *sf.wallet == "" {
		fatal("--wallet is required")
	}
	ks, err := wallet.NewKeystore(e.ksDir)
	if err != nil {
		fatal("open keystore: %v", err)
	}
	password, err := readPassword("Enter password: ")
	if err != nil {
		fatal("read password: %v", err)
	}
	key, err := ks.Signer(*sf.wallet, password, uint32(*sf.account))
	if err != nil {
		fatal("unlock wallet: %v", err)
	}
	return key
}
