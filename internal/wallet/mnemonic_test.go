package wallet

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

const vectorMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestGenerateMnemonic(t *testing.T) {
	m1, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error: %v", err)
	}
	if n := len(strings.Fields(m1)); n != 24 {
		t.Errorf("word count = %d, want 24", n)
	}
	if !ValidateMnemonic(m1) {
		t.Error("generated mnemonic should validate")
	}
	m2, _ := GenerateMnemonic()
	if m1 == m2 {
		t.Error("two generated mnemonics should differ")
	}
}

func TestValidateMnemonic(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
		valid    bool
	}{
		{"valid 12-word", vectorMnemonic, true},
		{"upper case and newlines", strings.ToUpper(strings.Replace(vectorMnemonic, " ", "\n  ", 3)), true},
		{"empty", "", false},
		{"random words", "not a valid mnemonic phrase at all", false},
		{"wrong checksum", strings.Repeat("abandon ", 23) + "abandon", false},
		{"single word", "abandon", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateMnemonic(tt.mnemonic); got != tt.valid {
				t.Errorf("ValidateMnemonic() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestSeedFromMnemonic_KnownVector(t *testing.T) {
	seed, err := SeedFromMnemonic(vectorMnemonic, "TREZOR")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	want, _ := hex.DecodeString("c55257c360c07c72029aebc1b53c05ed0362ada38ead3e3e9efa3708e53495531f09a6987599d18264c1e1c92f2cf141630c7a3c4ab7c81b2f001698e7463b04")
	if !bytes.Equal(seed, want) {
		t.Errorf("seed = %x, want %x", seed, want)
	}

	padded, err := SeedFromMnemonic("  "+strings.ToUpper(vectorMnemonic)+"\n", "TREZOR")
	if err != nil || !bytes.Equal(padded, want) {
		t.Error("normalized mnemonic should produce the same seed")
	}
}

func TestSeedFromMnemonic_Passphrase(t *testing.T) {
	s1, _ := SeedFromMnemonic(vectorMnemonic, "")
	s2, _ := SeedFromMnemonic(vectorMnemonic, "my passphrase")
	if len(s1) != SeedSize || bytes.Equal(s1, s2) {
		t.Error("different passphrases should produce different 64-byte seeds")
	}
}

func TestSeedFromMnemonic_Invalid(t *testing.T) {
	for _, m := range []string{"", "not valid words here"} {
		if _, err := SeedFromMnemonic(m, ""); err == nil {
			t.Errorf("SeedFromMnemonic(%q) should fail", m)
		}
	}
}
