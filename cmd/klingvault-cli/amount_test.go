package main

import (
	"testing"

	"github.com/Klingon-tech/klingvault/config"
	"github.com/holiman/uint256"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want *uint256.Int
	}{
		{"1", config.Units(1)},
		{"1000000", config.Units(1_000_000)},
		{"0.5", uint256.NewInt(500_000_000_000_000_000)},
		{".25", uint256.NewInt(250_000_000_000_000_000)},
		{"2.000000000000000001", new(uint256.Int).AddUint64(config.Units(2), 1)},
		{"0", uint256.NewInt(0)},
	}
	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		if err != nil {
			t.Errorf("parseAmount(%q) error: %v", tt.in, err)
			continue
		}
		if !got.Eq(tt.want) {
			t.Errorf("parseAmount(%q) = %s, want %s", tt.in, got.Dec(), tt.want.Dec())
		}
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, in := range []string{"", "-1", "+1", "abc", "1.2.3", "1.0000000000000000001", "1e18"} {
		if _, err := parseAmount(in); err == nil {
			t.Errorf("parseAmount(%q) should fail", in)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   *uint256.Int
		want string
	}{
		{nil, "0"},
		{uint256.NewInt(0), "0"},
		{config.Units(42), "42"},
		{uint256.NewInt(500_000_000_000_000_000), "0.5"},
		{new(uint256.Int).AddUint64(config.Units(2), 1), "2.000000000000000001"},
	}
	for _, tt := range tests {
		if got := formatAmount(tt.in); got != tt.want {
			t.Errorf("formatAmount(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
