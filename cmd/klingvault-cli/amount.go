package main

import (
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingvault/config"
	"github.com/holiman/uint256"
)

// parseAmount converts a decimal token amount ("12.5") to base units.
func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		return nil, fmt.Errorf("amount must be unsigned")
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > config.Decimals {
		return nil, fmt.Errorf("too many decimal places (max %d)", config.Decimals)
	}
	w, err := uint256.FromDecimal(whole)
	if err != nil {
		return nil, fmt.Errorf("invalid whole part: %w", err)
	}
	out, over := new(uint256.Int).MulOverflow(w, scale(config.Decimals))
	if over {
		return nil, fmt.Errorf("amount too large")
	}
	if frac != "" {
		f, err := uint256.FromDecimal(frac)
		if err != nil {
			return nil, fmt.Errorf("invalid fractional part: %w", err)
		}
		f.Mul(f, scale(config.Decimals-len(frac)))
		if _, over := out.AddOverflow(out, f); over {
			return nil, fmt.Errorf("amount too large")
		}
	}
	return out, nil
}

// formatAmount renders base units as a decimal with trailing zeros
// trimmed.
func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	unit := scale(config.Decimals)
	whole, frac := new(uint256.Int), new(uint256.Int)
	whole.DivMod(v, unit, frac)
	if frac.IsZero() {
		return whole.Dec()
	}
	fs := frac.Dec()
	fs = strings.Repeat("0", config.Decimals-len(fs)) + fs
	return whole.Dec() + "." + strings.TrimRight(fs, "0")
}

func scale(decimals int) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
}

func mustAmount(s string) *uint256.Int {
	v, err := parseAmount(s)
	if err != nil {
		fatal("invalid amount %q: %v", s, err)
	}
	return v
}
