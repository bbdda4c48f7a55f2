package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Klingon-tech/klingvault/pkg/crypto"
)

const keystoreVersion = 1

// ErrWalletNotFound is returned for a wallet name with no file.
var ErrWalletNotFound = errors.New("wallet not found")

// keystoreFile is the on-disk JSON format for an encrypted wallet.
type keystoreFile struct {
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	EncryptedSeed []byte         `json:"encrypted_seed"`
	Accounts      []AccountEntry `json:"accounts"`
	NextIndex     uint32         `json:"next_index"`
}

// AccountEntry stores metadata for a derived signing account.
type AccountEntry struct {
	Index   uint32 `json:"index"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Keystore manages encrypted wallets in one directory.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid wallet name %q", name)
	}
	return nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Create stores seed encrypted under password as a new wallet.
func (ks *Keystore) Create(name string, seed, password []byte, params EncryptionParams) error {
	if err := validName(name); err != nil {
		return err
	}
	path := ks.walletPath(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("wallet %q already exists", name)
	}
	if len(seed) != SeedSize {
		return fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}

	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return fmt.Errorf("encrypt seed: %w", err)
	}
	return ks.writeFile(path, &keystoreFile{
		Version:       keystoreVersion,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
		Accounts:      []AccountEntry{},
	})
}

// Load decrypts a wallet and returns the seed bytes.
func (ks *Keystore) Load(name string, password []byte) ([]byte, error) {
	kf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt wallet: %w", err)
	}
	return seed, nil
}

// master decrypts the seed and returns the wallet's master key.
func (ks *Keystore) master(name string, password []byte) (*HDKey, error) {
	seed, err := ks.Load(name, password)
	if err != nil {
		return nil, err
	}
	defer wipe(seed)
	return NewMasterKey(seed)
}

// NewAccount derives the wallet's next account, records it and returns it.
func (ks *Keystore) NewAccount(walletName string, password []byte, label string) (AccountEntry, error) {
	kf, err := ks.read(walletName)
	if err != nil {
		return AccountEntry{}, err
	}
	master, err := ks.master(walletName, password)
	if err != nil {
		return AccountEntry{}, err
	}
	key, err := master.DeriveAccount(kf.NextIndex)
	if err != nil {
		return AccountEntry{}, err
	}
	if label == "" {
		label = fmt.Sprintf("account-%d", kf.NextIndex)
	}
	acct := AccountEntry{Index: kf.NextIndex, Name: label, Address: key.Address().String()}
	if err := ks.AddAccount(walletName, acct); err != nil {
		return AccountEntry{}, err
	}
	return acct, nil
}

// AddAccount records a derived account in the wallet metadata. Re-adding
// the same index and address is a no-op.
func (ks *Keystore) AddAccount(walletName string, acct AccountEntry) error {
	kf, err := ks.read(walletName)
	if err != nil {
		return err
	}
	for _, existing := range kf.Accounts {
		if existing.Index == acct.Index {
			if existing.Address == acct.Address {
				return nil
			}
			return fmt.Errorf("account index %d already exists", acct.Index)
		}
	}
	kf.Accounts = append(kf.Accounts, acct)
	if acct.Index >= kf.NextIndex {
		kf.NextIndex = acct.Index + 1
	}
	return ks.writeFile(ks.walletPath(walletName), kf)
}

// Signer decrypts the wallet and returns the signing key for the account
// at index. The caller should Zero the key when done.
func (ks *Keystore) Signer(walletName string, password []byte, index uint32) (*crypto.PrivateKey, error) {
	master, err := ks.master(walletName, password)
	if err != nil {
		return nil, err
	}
	key, err := master.DeriveAccount(index)
	if err != nil {
		return nil, err
	}
	return key.Signer()
}

// ListAccounts returns the account entries for a wallet.
func (ks *Keystore) ListAccounts(walletName string) ([]AccountEntry, error) {
	kf, err := ks.read(walletName)
	if err != nil {
		return nil, err
	}
	return kf.Accounts, nil
}

// List returns the names of all wallet files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), ".wallet"); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	path := ks.walletPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	return os.Remove(path)
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) read(name string) (*keystoreFile, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(ks.walletPath(name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	return &kf, nil
}
