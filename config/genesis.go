package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/klingvault/internal/token"
	"github.com/Klingon-tech/klingvault/internal/vault"
	"github.com/Klingon-tech/klingvault/pkg/crypto"
	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

// Decimals is the precision of both built-in tokens.
const Decimals = 18

// Token ledger namespaces inside the state database.
const (
	StakeNamespace  = "tok/sUSD/"
	RewardNamespace = "tok/RWD/"
)

// Units returns n whole tokens in base units.
func Units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), vault.Precision)
}

// Genesis is the initial state written once into a fresh database.
type Genesis struct {
	ChainID string `json:"chain_id"`

	// Admin receives every vault role and the admin role on both ledgers.
	Admin types.Address `json:"admin"`

	// Treasury receives the initial supplies and the reward minter role.
	Treasury types.Address `json:"treasury"`

	Stake  TokenGenesis `json:"stake_token"`
	Reward TokenGenesis `json:"reward_token"`

	Vault VaultGenesis `json:"vault"`
}

// TokenGenesis describes one ledger and its initial supply.
type TokenGenesis struct {
	token.Metadata
	InitialSupply *uint256.Int `json:"initial_supply"`
}

// VaultGenesis holds the initial vault parameters.
type VaultGenesis struct {
	LockPeriod      uint64       `json:"lock_period"`
	MinStake        *uint256.Int `json:"min_stake"`
	MaxStake        *uint256.Int `json:"max_stake"`
	EmergencyFeeBps uint16       `json:"emergency_fee_bps"`
}

// Params converts the genesis block into vault parameters.
func (v VaultGenesis) Params() vault.Params {
	return vault.Params{
		LockPeriod:      v.LockPeriod,
		MinStake:        v.MinStake,
		MaxStake:        v.MaxStake,
		EmergencyFeeBps: v.EmergencyFeeBps,
	}
}

// =============================================================================
// Testnet Identity
//
// Derived from the well-known BIP-39 test mnemonic (DO NOT use on mainnet):
//
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon art
//
// Derivation path: m/44'/8888'/0'/0/0 (no passphrase)
// =============================================================================

const (
	// TestnetMnemonic is the well-known seed phrase for the testnet admin.
	TestnetMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

	// TestnetAdminPubKey is the compressed public key (hex) derived from TestnetMnemonic.
	TestnetAdminPubKey = "030bef68f8657df88098a0546da1712c88b459788bea1a6bbe964004166a25144f"

	// TestnetAdminPrivKey is the private key (hex) derived from TestnetMnemonic.
	TestnetAdminPrivKey = "1f0717e6e34acc6721021f4dfed54558ec8452452b6195545d06dd348b220091"
)

// TestnetAdmin returns the address of the testnet admin key.
func TestnetAdmin() types.Address {
	pub, _ := hex.DecodeString(TestnetAdminPubKey)
	return crypto.AddressFromPubKey(pub)
}

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// TestnetGenesis returns the built-in testnet genesis. The testnet admin
// is also the treasury.
func TestnetGenesis() *Genesis {
	admin := TestnetAdmin()
	return &Genesis{
		ChainID:  "klingvault-testnet-1",
		Admin:    admin,
		Treasury: admin,
		Stake: TokenGenesis{
			Metadata: token.Metadata{
				Name:     "StableUSD",
				Symbol:   "sUSD",
				Decimals: Decimals,
			},
			InitialSupply: Units(1_000_000),
		},
		Reward: TokenGenesis{
			Metadata: token.Metadata{
				Name:      "Reward Token",
				Symbol:    "RWD",
				Decimals:  Decimals,
				MaxSupply: Units(100_000_000),
			},
			InitialSupply: Units(10_000_000),
		},
		Vault: VaultGenesis{
			LockPeriod:      7 * 24 * 3600,
			MinStake:        Units(1),
			MaxStake:        Units(1_000_000),
			EmergencyFeeBps: 1000,
		},
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// GenesisFor returns the genesis for cfg: the configured file if any,
// otherwise the built-in testnet genesis.
func GenesisFor(cfg *Config) (*Genesis, error) {
	if cfg.GenesisFile != "" {
		return LoadGenesis(cfg.GenesisFile)
	}
	if cfg.Network == Testnet {
		return TestnetGenesis(), nil
	}
	return nil, fmt.Errorf("no genesis file configured for %s", cfg.Network)
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}
	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if g.Admin.IsZero() {
		return fmt.Errorf("admin is required")
	}
	if g.Treasury.IsZero() {
		return fmt.Errorf("treasury is required")
	}
	if err := g.Stake.validate("stake_token"); err != nil {
		return err
	}
	if err := g.Reward.validate("reward_token"); err != nil {
		return err
	}
	if g.Stake.Symbol == g.Reward.Symbol {
		return fmt.Errorf("stake and reward tokens must differ")
	}
	if err := g.Vault.Params().Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	return nil
}

func (t *TokenGenesis) validate(field string) error {
	if err := t.Metadata.Validate(); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if t.MaxSupply != nil && !t.MaxSupply.IsZero() && t.InitialSupply != nil && t.InitialSupply.Gt(t.MaxSupply) {
		return fmt.Errorf("%s: initial_supply %s exceeds max_supply %s", field, t.InitialSupply.Dec(), t.MaxSupply.Dec())
	}
	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration. The node stores
// it on first start and refuses to open a database built from another
// genesis.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
