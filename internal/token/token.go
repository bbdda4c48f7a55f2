// Package token implements the fungible token ledgers the vault stakes and
// pays rewards in.
//
// Each ledger lives in its own storage namespace and keeps balances,
// allowances, total supply, roles and a pause flag. Amounts are 256-bit
// unsigned integers in base units.
package token

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingvault/pkg/types"
	"github.com/holiman/uint256"
)

// Token errors.
var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrPaused                = errors.New("token transfers are paused")
	ErrUnauthorized          = errors.New("caller lacks required token role")
	ErrMaxSupply             = errors.New("mint exceeds max supply")
	ErrZeroAddress           = errors.New("zero address")
	ErrZeroAmount            = errors.New("amount must be positive")
	ErrNotInitialized        = errors.New("token ledger not initialized")
	ErrAlreadyInitialized    = errors.New("token ledger already initialized")
	ErrOverflow              = errors.New("token arithmetic overflow")
)

// Role is a permission held by an address on a single ledger.
type Role string

// Ledger roles.
const (
	AdminRole  Role = "admin"
	MinterRole Role = "minter"
	PauserRole Role = "pauser"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case AdminRole, MinterRole, PauserRole:
		return r, nil
	}
	return "", fmt.Errorf("unknown token role %q", s)
}

// Metadata describes a token.
type Metadata struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	// MaxSupply caps Mint. Nil or zero means uncapped.
	MaxSupply *uint256.Int `json:"max_supply,omitempty"`
}

// Validate checks metadata for obvious mistakes.
func (m *Metadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("token name is required")
	}
	if m.Symbol == "" || len(m.Symbol) > 11 {
		return fmt.Errorf("token symbol must be 1-11 characters")
	}
	if m.Decimals > 36 {
		return fmt.Errorf("token decimals must be <= 36")
	}
	return nil
}

// capped reports whether the token has a supply ceiling.
func (m *Metadata) capped() bool {
	return m.MaxSupply != nil && !m.MaxSupply.IsZero()
}

// Balance pairs an address with its balance, used for holder listings.
type Balance struct {
	Address types.Address `json:"address"`
	Amount  *uint256.Int  `json:"amount"`
}
