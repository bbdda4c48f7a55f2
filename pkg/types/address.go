package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressSize is the length of an address in bytes.
const AddressSize = 20

// Human-readable parts for bech32 addresses.
const (
	MainnetHRP = "kv"
	TestnetHRP = "tkv"
)

// activeHRP is used by String and MarshalJSON. Set once at startup.
var activeHRP = MainnetHRP

// SetAddressHRP sets the active address HRP.
func SetAddressHRP(hrp string) {
	activeHRP = hrp
}

// AddressHRP returns the active address HRP.
func AddressHRP() string {
	return activeHRP
}

// Address identifies a vault participant, a role holder or a token custody
// account. It is the first 20 bytes of BLAKE3(compressed pubkey) for keyed
// accounts.
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the bech32 form (e.g. "kv1...").
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err == nil {
		if s, err := bech32.Encode(activeHRP, conv); err == nil {
			return s
		}
	}
	return a.Hex()
}

// Hex returns the raw hex encoding, used for storage keys.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address bytes.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a bech32 string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts bech32 or raw hex.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a bech32 ("kv1...", "tkv1...") or 40-char hex address.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	if isHex40(s) {
		return HexToAddress(s)
	}
	if !strings.Contains(s, "1") {
		return Address{}, fmt.Errorf("invalid address %q", s)
	}

	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 address: %w", err)
	}
	if hrp != MainnetHRP && hrp != TestnetHRP {
		return Address{}, fmt.Errorf("unknown address prefix %q", hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 payload: %w", err)
	}
	if len(raw) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(raw))
	}
	var a Address
	copy(a[:], raw)
	return a, nil
}

// HexToAddress converts a 40-char hex string to an Address.
func HexToAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// ModuleAddress derives a keyless address for an internal account such as
// the vault's custody account. No private key exists for it.
func ModuleAddress(name string) Address {
	var a Address
	copy(a[:], "mod:"+name)
	return a
}

func isHex40(s string) bool {
	if len(s) != 2*AddressSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
