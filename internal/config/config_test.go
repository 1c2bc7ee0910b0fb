package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing RPC URL",
			mutate:  func(c *Config) { c.RPCURL = "" },
			wantErr: true,
		},
		{
			name:    "invalid chain ID",
			mutate:  func(c *Config) { c.ChainID = 0 },
			wantErr: true,
		},
		{
			name:    "missing router",
			mutate:  func(c *Config) { c.Router = common.Address{} },
			wantErr: true,
		},
		{
			name:    "missing WETH",
			mutate:  func(c *Config) { c.WETH = common.Address{} },
			wantErr: true,
		},
		{
			name:    "staking without stake token",
			mutate:  func(c *Config) { c.Staking = common.HexToAddress("0x01") },
			wantErr: true,
		},
		{
			name: "staking with stake token",
			mutate: func(c *Config) {
				c.Staking = common.HexToAddress("0x01")
				c.StakeToken = common.HexToAddress("0x02")
			},
			wantErr: false,
		},
		{
			name:    "slippage below range",
			mutate:  func(c *Config) { c.DefaultSlippage = 0.05 },
			wantErr: true,
		},
		{
			name:    "slippage above range",
			mutate:  func(c *Config) { c.DefaultSlippage = 95 },
			wantErr: true,
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.HistoryPollInterval = 0 },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RPC_URL":               "https://rpc.example",
		"CHAIN_ID":              "8453",
		"ROUTER_ADDRESS":        "0x2626664c2603336E57B271c5C0b26F421741e481",
		"DEFAULT_SLIPPAGE":      "1.5",
		"HISTORY_POLL_INTERVAL": "5s",
		"PRICE_RATE":            "-3",
	}
	cfg := Default()
	if err := cfg.applyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatalf("applyEnv() error = %v", err)
	}

	if cfg.RPCURL != "https://rpc.example" || cfg.ChainID != 8453 {
		t.Errorf("RPCURL = %s ChainID = %d", cfg.RPCURL, cfg.ChainID)
	}
	if cfg.Router != common.HexToAddress("0x2626664c2603336E57B271c5C0b26F421741e481") {
		t.Errorf("Router = %s", cfg.Router.Hex())
	}
	if cfg.DefaultSlippage != 1.5 || cfg.HistoryPollInterval != 5*time.Second {
		t.Errorf("slippage = %v interval = %v", cfg.DefaultSlippage, cfg.HistoryPollInterval)
	}
	if cfg.PriceRate != DefaultPriceRate {
		t.Errorf("PriceRate = %v, want default for invalid value", cfg.PriceRate)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"CHAIN_ID", "mainnet"},
		{"QUOTER_ADDRESS", "0x1234"},
		{"DEFAULT_SLIPPAGE", "half"},
		{"HISTORY_POLL_INTERVAL", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(k string) string {
				if k == tt.key {
					return tt.value
				}
				return ""
			})
			if err == nil {
				t.Errorf("applyEnv(%s=%s) should fail", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_EnvFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "SWAPCORE_TEST_UNUSED=1\nCURRENCY=eur\nLISTEN_ADDR=:4000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	// Values already in the environment win over the file.
	t.Setenv("LISTEN_ADDR", ":5000")
	t.Setenv("CURRENCY", "")
	os.Unsetenv("CURRENCY")
	t.Cleanup(func() {
		os.Unsetenv("SWAPCORE_TEST_UNUSED")
	})

	cfg, err := Load([]string{"-env-file", path, "-chainid", "10", "-slippage", "2", "swap", "-amount", "1"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Currency != "eur" {
		t.Errorf("Currency = %s, want eur from env file", cfg.Currency)
	}
	if cfg.ListenAddr != ":5000" {
		t.Errorf("ListenAddr = %s, want environment value", cfg.ListenAddr)
	}
	if cfg.ChainID != 10 || cfg.DefaultSlippage != 2 {
		t.Errorf("ChainID = %d slippage = %v, want flag values", cfg.ChainID, cfg.DefaultSlippage)
	}
	if len(cfg.Args) != 3 || cfg.Args[0] != "swap" {
		t.Errorf("Args = %v, want subcommand and its flags", cfg.Args)
	}
}

func TestLoad_MissingEnvFile(t *testing.T) {
	if _, err := Load([]string{"-env-file=" + filepath.Join(t.TempDir(), "absent.env")}); err != nil {
		t.Errorf("Load() error = %v, want missing file ignored", err)
	}
}

func TestLoad_InvalidFlag(t *testing.T) {
	if _, err := Load([]string{"-env-file=/nonexistent/.env", "-log-level", "loud"}); err == nil {
		t.Error("Load() should reject invalid log level")
	}
}

func TestEnvFileFrom(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{nil, DefaultEnvFile},
		{[]string{"-env-file", "a.env"}, "a.env"},
		{[]string{"--env-file=b.env"}, "b.env"},
		{[]string{"-rpc", "x", "-env-file=c.env"}, "c.env"},
	}
	for _, tt := range tests {
		if got := envFileFrom(tt.args); got != tt.want {
			t.Errorf("envFileFrom(%v) = %s, want %s", tt.args, got, tt.want)
		}
	}
}
