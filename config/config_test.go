package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile_ParsesValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "klingvault.conf")
	content := `# comment
network = testnet
rpc.port = 9000
rpc.allowed = 127.0.0.1, 10.0.0.0/8
log.level = "debug"
metrics.enabled = no
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	cfg := DefaultMainnet()
	if err := ApplyFileConfig(cfg, values); err != nil {
		t.Fatal(err)
	}
	if cfg.Network != Testnet || cfg.RPC.Port != 9000 || cfg.Log.Level != "debug" || cfg.Metrics.Enabled {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.RPC.AllowedIPs) != 2 || cfg.RPC.AllowedIPs[1] != "10.0.0.0/8" {
		t.Errorf("allowed = %v", cfg.RPC.AllowedIPs)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	values, err := LoadFile(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil || len(values) != 0 {
		t.Errorf("LoadFile(missing) = %v, %v", values, err)
	}
}

func TestLoadFile_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.conf")
	os.WriteFile(path, []byte("rpc.port 9000\n"), 0644)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for line without '='")
	}
}

func TestParseFlags_Overrides(t *testing.T) {
	f, err := ParseFlags([]string{"--testnet", "--rpc-port=9100", "--metrics=false", "--log-json"})
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultTestnet()
	ApplyFlags(cfg, f)
	if cfg.Network != Testnet || cfg.RPC.Port != 9100 || cfg.Metrics.Enabled || !cfg.Log.JSON {
		t.Errorf("cfg = %+v", cfg)
	}
	if !cfg.RPC.Enabled {
		t.Error("rpc should stay enabled when --rpc is not given")
	}
}

func TestParseFlags_StrayPositional(t *testing.T) {
	if _, err := ParseFlags([]string{"--log-json", "extra", "--rpc-port=1"}); err == nil {
		t.Error("expected error for flag after positional argument")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"testnet default", func(c *Config) {}, true},
		{"bad network", func(c *Config) { c.Network = "devnet" }, false},
		{"bad port", func(c *Config) { c.RPC.Port = 70000 }, false},
		{"bad allowed ip", func(c *Config) { c.RPC.AllowedIPs = []string{"localhost"} }, false},
		{"cidr allowed", func(c *Config) { c.RPC.AllowedIPs = []string{"192.168.0.0/16"} }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, false},
		{"mainnet without genesis", func(c *Config) { c.Network = Mainnet }, false},
		{"mainnet with genesis", func(c *Config) { c.Network = Mainnet; c.GenesisFile = "g.json" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultTestnet()
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestLoad_CreatesDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg, _, err := Load([]string{"--testnet", "--datadir=" + dir})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if _, err := os.Stat(cfg.ConfigFile()); err != nil {
		t.Errorf("default config not written: %v", err)
	}
	if _, err := os.Stat(cfg.StateDir()); err != nil {
		t.Errorf("state dir not created: %v", err)
	}
	if cfg.RPCEndpoint() != "127.0.0.1:8845" {
		t.Errorf("endpoint = %s", cfg.RPCEndpoint())
	}
}
