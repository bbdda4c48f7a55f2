package vault

import (
	"fmt"

	"github.com/Klingon-tech/klingvault/pkg/types"
)

// Role is a capability granted to an address.
type Role string

// Vault roles.
const (
	// AdminRole sets vault parameters and manages role membership.
	AdminRole Role = "admin"
	// PauserRole pauses and unpauses the vault.
	PauserRole Role = "pauser"
	// TreasurerRole funds rewards, sets the reward rate and collects fees.
	TreasurerRole Role = "treasurer"
)

// Roles lists every vault role.
var Roles = []Role{AdminRole, PauserRole, TreasurerRole}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// gate answers membership questions against the vault store.
type gate struct {
	st *store
}

func (g gate) has(r Role, who types.Address) (bool, error) {
	return g.st.hasRole(r, who)
}

func (g gate) require(r Role, who types.Address) error {
	ok, err := g.has(r, who)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s requires %s", ErrUnauthorized, who, r)
	}
	return nil
}

// requireActive rejects user operations while paused.
func requireActive(s *State) error {
	if s.Paused {
		return ErrPaused
	}
	return nil
}
