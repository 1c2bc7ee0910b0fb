// Command swapcore serves the swap quoting API and, given a signing key,
// executes swaps, liquidity mints and staking calls from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gateway-fm/swapcore/internal/approval"
	"github.com/gateway-fm/swapcore/internal/chain"
	"github.com/gateway-fm/swapcore/internal/config"
	"github.com/gateway-fm/swapcore/internal/gas"
	"github.com/gateway-fm/swapcore/internal/liquidity"
	"github.com/gateway-fm/swapcore/internal/metrics"
	"github.com/gateway-fm/swapcore/internal/pricefeed"
	"github.com/gateway-fm/swapcore/internal/quote"
	"github.com/gateway-fm/swapcore/internal/rpc"
	"github.com/gateway-fm/swapcore/internal/storage"
	"github.com/gateway-fm/swapcore/internal/swap"
	"github.com/gateway-fm/swapcore/internal/transport"
	"github.com/gateway-fm/swapcore/internal/txstatus"
	"github.com/gateway-fm/swapcore/internal/wallet"
)

// app holds the wired components of one process.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.PrometheusMetrics

	rpc     *rpc.HTTPClient
	reader  *chain.RPCReader
	feed    *pricefeed.HTTPFeed
	quotes  *quote.Engine
	store   *storage.SQLiteStorage
	tracker *txstatus.Tracker

	// Set only when a signing key is configured.
	wallet    *wallet.LocalWallet
	approvals *approval.Manager
	swaps     *swap.Executor
	minter    *liquidity.Minter
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	// Setup logger
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// CLI mode - a subcommand runs once against the configured chain
	if len(cfg.Args) > 0 {
		if err := a.runCommand(ctx, cfg.Args); err != nil {
			logger.Error("command failed", "command", cfg.Args[0], "error", err)
			os.Exit(1)
		}
		return
	}

	if err := a.serve(ctx); err != nil {
		logger.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewPrometheusMetrics(nil),
	}

	rpcCfg := rpc.DefaultClientConfig(cfg.RPCURL)
	rpcCfg.Logger = logger
	rpcCfg.Observer = a.metrics.RecordRPCLatency
	a.rpc = rpc.NewHTTPClient(rpcCfg)

	a.reader = chain.NewReader(chain.Config{
		Client:  a.rpc,
		Factory: cfg.Factory,
		Logger:  logger,
	})

	feedCfg := pricefeed.DefaultConfig()
	feedCfg.GasURL = cfg.GasAPIURL
	feedCfg.PriceURL = cfg.PriceAPIURL
	feedCfg.PoolURL = cfg.PoolAPIURL
	feedCfg.ChainID = cfg.ChainID
	feedCfg.RatePerSec = cfg.PriceRate
	feedCfg.Logger = logger
	a.feed = pricefeed.New(feedCfg)

	quotes, err := quote.NewEngine(quote.Config{
		Reader:   a.reader,
		Quoter:   cfg.Quoter,
		WETH:     cfg.WETH,
		Prices:   a.feed,
		Currency: cfg.Currency,
		Metrics:  a.metrics,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	a.quotes = quotes

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.store = store
	logger.Info("initialized storage", "path", cfg.DatabasePath)

	a.tracker = txstatus.New(txstatus.Config{
		Receipts: a.rpc,
		Store:    store,
		History: txstatus.Policy{
			Interval:    cfg.HistoryPollInterval,
			MaxInterval: cfg.HistoryPollInterval,
		},
		Metrics: a.metrics,
		Logger:  logger,
	})

	if !cfg.CanSign() {
		return a, nil
	}

	w, err := wallet.NewLocalWallet(wallet.LocalConfig{
		PrivateKey: cfg.PrivateKey,
		Clients:    map[int64]rpc.Client{cfg.ChainID: a.rpc},
		ChainID:    cfg.ChainID,
		Logger:     logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.wallet = w
	a.approvals = approval.NewManager(approval.Config{
		Reader:  a.reader,
		Wallet:  w,
		ChainID: cfg.ChainID,
		Metrics: a.metrics,
		Logger:  logger,
	})
	a.swaps = swap.NewExecutor(swap.Config{
		Pools:   quotes,
		Wallet:  w,
		Router:  cfg.Router,
		WETH:    cfg.WETH,
		ChainID: cfg.ChainID,
		Fees:    a.feed,
		Metrics: a.metrics,
		Logger:  logger,
	})
	a.minter = liquidity.NewMinter(liquidity.Config{
		Approvals:       a.approvals,
		Wallet:          w,
		PositionManager: cfg.PositionManager,
		WETH:            cfg.WETH,
		ChainID:         cfg.ChainID,
		Confirmations:   a.tracker,
		History:         store,
		Metrics:         a.metrics,
		Logger:          logger,
	})
	logger.Info("signer configured", "address", w.Address().Hex())
	return a, nil
}

// Close stops polling and releases the database.
func (a *app) Close() {
	if a.tracker != nil {
		a.tracker.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// gasSettings returns the stored gas preference, or defaults with the
// configured slippage.
func (a *app) gasSettings(ctx context.Context) gas.Settings {
	s := gas.DefaultSettings()
	s.Slippage = a.cfg.DefaultSlippage
	var stored gas.Settings
	ok, err := storage.GetPreferenceJSON(ctx, a.store, storage.PrefGasSettings, &stored)
	if err != nil {
		a.logger.Warn("ignoring stored gas settings", "error", err)
		return s
	}
	if ok && stored.Validate() == nil {
		return stored
	}
	return s
}

func (a *app) serve(ctx context.Context) error {
	n, err := a.tracker.Resume(ctx)
	if err != nil {
		a.logger.Warn("failed to resume pending transactions", "error", err)
	} else if n > 0 {
		a.logger.Info("resumed pending transactions", "count", n)
	}

	server := transport.NewServer(transport.Config{
		Quotes:             a.quotes,
		Store:              a.store,
		Events:             a.tracker,
		Health:             rpcHealth{client: a.rpc, chainID: a.cfg.ChainID},
		Logger:             a.logger,
		CORSAllowedOrigins: a.cfg.CORSAllowedOrigins,
	})
	defer server.Close()

	httpServer := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server", "addr", a.cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// rpcHealth checks that the node answers and is on the configured chain.
type rpcHealth struct {
	client  rpc.Client
	chainID int64
}

func (h rpcHealth) CheckRPC(ctx context.Context) error {
	id, err := h.client.GetChainID(ctx)
	if err != nil {
		return err
	}
	if id.Int64() != h.chainID {
		return fmt.Errorf("node reports chain %d, want %d", id.Int64(), h.chainID)
	}
	return nil
}
