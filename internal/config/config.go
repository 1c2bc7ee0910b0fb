// Package config handles configuration loading and validation.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/gateway-fm/swapcore/internal/gas"
)

// Config holds swap core configuration.
type Config struct {
	RPCURL     string
	ChainID    int64
	PrivateKey string // optional; without it only read endpoints are served

	// Contract addresses
	Factory         common.Address
	Quoter          common.Address
	Router          common.Address
	PositionManager common.Address
	WETH            common.Address
	Staking         common.Address // zero disables staking
	LaunchList      common.Address // zero disables launch-list checks
	StakeToken      common.Address

	GasAPIURL   string
	PriceAPIURL string
	PoolAPIURL  string
	Currency    string
	PriceRate   float64 // price API requests per second

	ListenAddr         string
	DatabasePath       string // Path to SQLite database file
	CORSAllowedOrigins string // Comma-separated list of allowed origins, or "*" for all (default: "*")

	DefaultSlippage     float64
	HistoryPollInterval time.Duration
	LogLevel            string

	// Args are the arguments left after flag parsing (a subcommand and its flags).
	Args []string
}

// Defaults
const (
	DefaultRPCURL              = "http://localhost:8545"
	DefaultChainID             = 1
	DefaultPriceAPIURL         = "https://api.coingecko.com/api/v3"
	DefaultPoolAPIURL          = "https://api.geckoterminal.com/api/v2"
	DefaultCurrency            = "usd"
	DefaultPriceRate           = 2.0
	DefaultListenAddr          = ":3001"
	DefaultDatabasePath        = "./data/swapcore.db"
	DefaultCORSAllowedOrigins  = "*" // Allow all origins by default for dev
	DefaultHistoryPollInterval = 10 * time.Second
	DefaultLogLevel            = "info"
	DefaultEnvFile             = ".env"
)

// Ethereum mainnet Uniswap V3 deployment.
var (
	DefaultFactory         = common.HexToAddress("0x1F98431c8aD98523631AE4a59f267346ea31F984")
	DefaultQuoter          = common.HexToAddress("0xb27308f9F90D607463bb33eA1BeBb41C27CE5AB6")
	DefaultRouter          = common.HexToAddress("0xE592427A0AEce92De3Edee1F18E0157C05861564")
	DefaultPositionManager = common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	DefaultWETH            = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
)

// Default returns a config populated with defaults only.
func Default() *Config {
	return &Config{
		RPCURL:              DefaultRPCURL,
		ChainID:             DefaultChainID,
		Factory:             DefaultFactory,
		Quoter:              DefaultQuoter,
		Router:              DefaultRouter,
		PositionManager:     DefaultPositionManager,
		WETH:                DefaultWETH,
		PriceAPIURL:         DefaultPriceAPIURL,
		PoolAPIURL:          DefaultPoolAPIURL,
		Currency:            DefaultCurrency,
		PriceRate:           DefaultPriceRate,
		ListenAddr:          DefaultListenAddr,
		DatabasePath:        DefaultDatabasePath,
		CORSAllowedOrigins:  DefaultCORSAllowedOrigins,
		DefaultSlippage:     gas.DefaultSlippage,
		HistoryPollInterval: DefaultHistoryPollInterval,
		LogLevel:            DefaultLogLevel,
	}
}

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// A missing file is not an error. Variables already set are not overridden.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from the .env file, environment variables and
// command-line flags. Command-line flags take precedence over environment variables.
func Load(args []string) (*Config, error) {
	if err := LoadEnvFile(envFileFrom(args)); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	flags := flag.NewFlagSet("swapcore", flag.ContinueOnError)
	var (
		rpcURL       = flags.String("rpc", cfg.RPCURL, "Ethereum JSON-RPC URL")
		chainID      = flags.Int64("chainid", cfg.ChainID, "Chain ID")
		listenAddr   = flags.String("listen", cfg.ListenAddr, "HTTP listen address")
		dbPath       = flags.String("db", cfg.DatabasePath, "SQLite database path")
		slippage     = flags.Float64("slippage", cfg.DefaultSlippage, "Default slippage tolerance in percent")
		pollInterval = flags.Duration("history-poll", cfg.HistoryPollInterval, "Transaction history poll interval")
		logLevel     = flags.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
		_            = flags.String("env-file", DefaultEnvFile, "Path to .env file")
	)
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg.RPCURL = *rpcURL
	cfg.ChainID = *chainID
	cfg.ListenAddr = *listenAddr
	cfg.DatabasePath = *dbPath
	cfg.DefaultSlippage = *slippage
	cfg.HistoryPollInterval = *pollInterval
	cfg.LogLevel = *logLevel
	cfg.Args = flags.Args()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envFileFrom finds -env-file before flags are parsed, since the file
// feeds the flag defaults.
func envFileFrom(args []string) string {
	for i, a := range args {
		a = strings.TrimLeft(a, "-")
		if v, ok := strings.CutPrefix(a, "env-file="); ok {
			return v
		}
		if a == "env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return DefaultEnvFile
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"RPC_URL":              &c.RPCURL,
		"PRIVATE_KEY":          &c.PrivateKey,
		"GAS_API_URL":          &c.GasAPIURL,
		"PRICE_API_URL":        &c.PriceAPIURL,
		"POOL_API_URL":         &c.PoolAPIURL,
		"CURRENCY":             &c.Currency,
		"LISTEN_ADDR":          &c.ListenAddr,
		"DATABASE_PATH":        &c.DatabasePath,
		"CORS_ALLOWED_ORIGINS": &c.CORSAllowedOrigins,
		"LOG_LEVEL":            &c.LogLevel,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	addrs := map[string]*common.Address{
		"FACTORY_ADDRESS":          &c.Factory,
		"QUOTER_ADDRESS":           &c.Quoter,
		"ROUTER_ADDRESS":           &c.Router,
		"POSITION_MANAGER_ADDRESS": &c.PositionManager,
		"WETH_ADDRESS":             &c.WETH,
		"STAKING_ADDRESS":          &c.Staking,
		"LAUNCH_LIST_ADDRESS":      &c.LaunchList,
		"STAKE_TOKEN_ADDRESS":      &c.StakeToken,
	}
	for key, dst := range addrs {
		v := getenv(key)
		if v == "" {
			continue
		}
		if !common.IsHexAddress(v) {
			return fmt.Errorf("%s: invalid address %q", key, v)
		}
		*dst = common.HexToAddress(v)
	}

	if v := getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHAIN_ID: %w", err)
		}
		c.ChainID = id
	}
	if v := getenv("DEFAULT_SLIPPAGE"); v != "" {
		s, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DEFAULT_SLIPPAGE: %w", err)
		}
		c.DefaultSlippage = s
	}
	if v := getenv("PRICE_RATE"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r > 0 {
			c.PriceRate = r
		}
	}
	if v := getenv("HISTORY_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HISTORY_POLL_INTERVAL: %w", err)
		}
		c.HistoryPollInterval = d
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC URL is required")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("chain ID must be positive")
	}
	required := map[string]common.Address{
		"factory":          c.Factory,
		"quoter":           c.Quoter,
		"router":           c.Router,
		"position manager": c.PositionManager,
		"WETH":             c.WETH,
	}
	for name, addr := range required {
		if addr == (common.Address{}) {
			return fmt.Errorf("%s address is required", name)
		}
	}
	if c.Staking != (common.Address{}) && c.StakeToken == (common.Address{}) {
		return fmt.Errorf("stake token address is required when staking is enabled")
	}
	if c.DefaultSlippage < gas.MinSlippage || c.DefaultSlippage > gas.MaxSlippage {
		return fmt.Errorf("default slippage must be between %v and %v", gas.MinSlippage, gas.MaxSlippage)
	}
	if c.HistoryPollInterval <= 0 {
		return fmt.Errorf("history poll interval must be positive")
	}
	if c.PriceRate <= 0 {
		return fmt.Errorf("price rate must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	return nil
}

// CanSign reports whether a signing key is configured.
func (c *Config) CanSign() bool {
	return c.PrivateKey != ""
}
