package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func withHRP(t *testing.T, hrp string) {
	t.Helper()
	old := activeHRP
	SetAddressHRP(hrp)
	t.Cleanup(func() { activeHRP = old })
}

func TestAddress_StringPrefix(t *testing.T) {
	tests := []struct {
		hrp    string
		prefix string
	}{
		{MainnetHRP, "kv1"},
		{TestnetHRP, "tkv1"},
	}
	for _, tt := range tests {
		t.Run(tt.hrp, func(t *testing.T) {
			withHRP(t, tt.hrp)
			a := Address{0xab, 19: 0xcd}
			if s := a.String(); !strings.HasPrefix(s, tt.prefix) {
				t.Errorf("String() = %s, want prefix %s", s, tt.prefix)
			}
		})
	}
}

func TestParseAddress_Forms(t *testing.T) {
	withHRP(t, TestnetHRP)
	a := Address{0x8f, 0x3a, 0x44, 0xb8, 0x05, 0x6c, 0xaf, 0xec, 0x36, 0x8d,
		0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0x00}

	for _, s := range []string{a.String(), a.Hex(), strings.ToUpper(a.Hex())} {
		got, err := ParseAddress(s)
		if err != nil {
			t.Fatalf("ParseAddress(%q) error: %v", s, err)
		}
		if got != a {
			t.Errorf("ParseAddress(%q) = %x, want %x", s, got, a)
		}
	}
}

func TestParseAddress_Invalid(t *testing.T) {
	bad := []string{
		"",
		"nothex",
		"abcd",
		"kv1qqqqqq",
		"btc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",
	}
	for _, s := range bad {
		if _, err := ParseAddress(s); err == nil {
			t.Errorf("ParseAddress(%q) should fail", s)
		}
	}
}

func TestAddress_JSON(t *testing.T) {
	withHRP(t, MainnetHRP)
	type wrapper struct {
		Who Address `json:"who"`
	}
	in := wrapper{Who: Address{1, 2, 3}}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"kv1`) {
		t.Errorf("json = %s, want bech32", data)
	}
	var out wrapper
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Who != in.Who {
		t.Errorf("decoded %x, want %x", out.Who, in.Who)
	}

	if err := json.Unmarshal([]byte(`{"who":""}`), &out); err != nil || !out.Who.IsZero() {
		t.Errorf("empty string should decode to zero address, got %x %v", out.Who, err)
	}
}

func TestModuleAddress(t *testing.T) {
	a := ModuleAddress("vault")
	b := ModuleAddress("vault")
	c := ModuleAddress("fees")
	if a != b {
		t.Error("ModuleAddress not deterministic")
	}
	if a == c || a.IsZero() {
		t.Error("module addresses should be distinct and non-zero")
	}
}
