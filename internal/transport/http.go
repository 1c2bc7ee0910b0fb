// Package transport provides HTTP API handlers.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/swapcore/internal/gas"
	"github.com/gateway-fm/swapcore/internal/quote"
	"github.com/gateway-fm/swapcore/internal/storage"
	"github.com/gateway-fm/swapcore/internal/token"
	"github.com/gateway-fm/swapcore/internal/uniswapv3"
	"github.com/gateway-fm/swapcore/pkg/types"
)

// Input validation constants
const (
	maxDecimals     = 36
	maxAmount       = 1e30
	maxHistoryLimit = 100
	maxPrefValueLen = 4096
	requestTimeout  = 15 * time.Second
)

// validPreferenceKeys contains all storable preference keys
var validPreferenceKeys = map[string]bool{
	storage.PrefGasSettings: true,
	storage.PrefCurrency:    true,
	storage.PrefLanguage:    true,
	storage.PrefTheme:       true,
}

// tokenFrom converts an API token reference, validating the address.
func tokenFrom(ref types.TokenRef) (token.Token, error) {
	addr, err := token.ParseAddress(ref.Address)
	if err != nil {
		return token.Token{}, err
	}
	if ref.Decimals > maxDecimals {
		return token.Token{}, fmt.Errorf("decimals exceeds maximum of %d", maxDecimals)
	}
	return token.Token{
		ChainID:  ref.ChainID,
		Address:  addr,
		Decimals: ref.Decimals,
		Symbol:   ref.Symbol,
		PriceID:  ref.PriceID,
		Stable:   ref.Stable,
	}, nil
}

func validateAmount(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a finite number", name)
	}
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %v", name, v)
	}
	if v > maxAmount {
		return fmt.Errorf("%s exceeds maximum of %g", name, maxAmount)
	}
	return nil
}

// validateQuoteRequest validates the quote request parameters
func validateQuoteRequest(req *types.QuoteRequest) (token.Token, token.Token, error) {
	in, err := tokenFrom(req.TokenIn)
	if err != nil {
		return in, token.Token{}, fmt.Errorf("tokenIn: %w", err)
	}
	out, err := tokenFrom(req.TokenOut)
	if err != nil {
		return in, out, fmt.Errorf("tokenOut: %w", err)
	}
	if in.Address == out.Address {
		return in, out, fmt.Errorf("tokenIn and tokenOut must differ")
	}
	if err := validateAmount("amount", req.Amount); err != nil {
		return in, out, err
	}
	return in, out, nil
}

// validateTicksRequest validates the tick range request parameters
func validateTicksRequest(req *types.TicksRequest) error {
	if _, err := uniswapv3.TickSpacing(req.FeeTier); err != nil {
		return err
	}
	if req.Token0Decimals > maxDecimals || req.Token1Decimals > maxDecimals {
		return fmt.Errorf("decimals exceeds maximum of %d", maxDecimals)
	}
	if req.FullRange {
		return nil
	}
	if req.MinPrice == 0 && req.MaxPrice == 0 {
		return nil
	}
	if err := validateAmount("minPrice", req.MinPrice); err != nil {
		return err
	}
	if err := validateAmount("maxPrice", req.MaxPrice); err != nil {
		return err
	}
	if req.MinPrice >= req.MaxPrice {
		return fmt.Errorf("minPrice (%v) must be below maxPrice (%v)", req.MinPrice, req.MaxPrice)
	}
	return nil
}

// validatePreference validates a preference value against its key
func validatePreference(key, value string) error {
	if !validPreferenceKeys[key] {
		return fmt.Errorf("unknown preference key: %s", key)
	}
	if len(value) > maxPrefValueLen {
		return fmt.Errorf("value exceeds maximum length of %d", maxPrefValueLen)
	}
	switch key {
	case storage.PrefGasSettings:
		var s gas.Settings
		if err := json.Unmarshal([]byte(value), &s); err != nil {
			return fmt.Errorf("gasSettings must be JSON: %w", err)
		}
		return s.Validate()
	case storage.PrefCurrency:
		if value == "" || len(value) > 10 || strings.ToLower(value) != value {
			return fmt.Errorf("currency must be a short lowercase code, got %q", value)
		}
	}
	return nil
}

// QuoteAPI defines the pricing operations the handlers need.
type QuoteAPI interface {
	GetQuote(ctx context.Context, tokenIn, tokenOut token.Token, amountIn float64) (*quote.Quote, error)
	GetPriceImpact(ctx context.Context, tokenA, tokenB token.Token, amountIn float64) float64
	GetSpotPrice(ctx context.Context, tokenA, tokenB token.Token) float64
}

// HealthChecker defines the interface for health checking.
type HealthChecker interface {
	CheckRPC(ctx context.Context) error
}

// Config holds the server dependencies.
type Config struct {
	Quotes QuoteAPI
	Store  storage.Storage
	Events EventSource // optional; without it /ws streams nothing
	Health HealthChecker
	Logger *slog.Logger
	// CORSAllowedOrigins is a comma-separated list, or "*" for all.
	CORSAllowedOrigins string
}

// Server handles HTTP requests for the swap core.
type Server struct {
	quotes    QuoteAPI
	store     storage.Storage
	health    HealthChecker
	logger    *slog.Logger
	startTime time.Time
	wsServer  *WebSocketServer

	// CORS configuration
	corsAllowedOrigins []string // Parsed list of allowed origins
	corsAllowAll       bool     // True if "*" or empty (allow all origins)
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Create WebSocket server for transaction status streaming
	wsServer := NewWebSocketServer(cfg.Events, logger)
	wsServer.Start()

	s := &Server{
		quotes:    cfg.Quotes,
		store:     cfg.Store,
		health:    cfg.Health,
		logger:    logger,
		startTime: time.Now(),
		wsServer:  wsServer,
	}

	// Parse CORS allowed origins
	origins := strings.TrimSpace(cfg.CORSAllowedOrigins)
	if origins == "" || origins == "*" {
		s.corsAllowAll = true
	} else {
		s.corsAllowedOrigins = strings.Split(origins, ",")
		for i, o := range s.corsAllowedOrigins {
			s.corsAllowedOrigins[i] = strings.TrimSpace(o)
		}
	}

	return s
}

// Close stops the WebSocket server.
func (s *Server) Close() {
	s.wsServer.Stop()
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/quote", s.corsMiddleware(s.handleQuote))
	mux.HandleFunc("/api/price-impact", s.corsMiddleware(s.handlePriceImpact))
	mux.HandleFunc("/api/spot-price", s.corsMiddleware(s.handleSpotPrice))
	mux.HandleFunc("/api/ticks", s.corsMiddleware(s.handleTicks))
	mux.HandleFunc("/api/history/", s.corsMiddleware(s.handleHistory))
	mux.HandleFunc("/api/preferences/", s.corsMiddleware(s.handlePreference))
	mux.HandleFunc("/ws", s.wsServer.Handler())

	// Health endpoints (unversioned - standard Kubernetes probes)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	// Prometheus metrics (unversioned - standard path)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// corsMiddleware adds CORS headers based on the configured allowed origins.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.corsAllowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			// Check if the origin is in the allowed list
			allowed := false
			for _, o := range s.corsAllowedOrigins {
				if o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// writeJSON writes a JSON response with status 200.
func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Failed to write response", slog.String("error", err.Error()))
	}
}

// writeJSONError writes a JSON error response
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// handleQuote prices a trade in either direction.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	in, out, err := validateQuoteRequest(&req)
	if err != nil {
		s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var q *quote.Quote
	if req.Reverse {
		q, err = s.quotes.GetQuote(ctx, out, in, req.Amount)
		if err == nil {
			q = q.Reversed()
		}
	} else {
		q, err = s.quotes.GetQuote(ctx, in, out, req.Amount)
	}
	if err != nil {
		if errors.Is(err, quote.ErrQuoteUnavailable) {
			s.writeJSONError(w, err.Error(), http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to get quote", slog.String("error", err.Error()))
		s.writeJSONError(w, "Failed to get quote: "+err.Error(), http.StatusBadGateway)
		return
	}

	resp := types.QuoteResponse{
		AmountIn:  q.AmountIn,
		AmountOut: q.AmountOut,
		Fee:       q.Fee,
		Pool:      q.Pool.Hex(),
		Reverse:   q.Reverse,
	}
	resp.PriceImpact = s.quotes.GetPriceImpact(ctx, in, out, resp.AmountIn)

	s.writeJSON(w, resp)
}

// handlePriceImpact estimates the impact of a trade.
func (s *Server) handlePriceImpact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.PriceImpactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	a, err := tokenFrom(req.TokenA)
	if err != nil {
		s.writeJSONError(w, "Validation error: tokenA: "+err.Error(), http.StatusBadRequest)
		return
	}
	b, err := tokenFrom(req.TokenB)
	if err != nil {
		s.writeJSONError(w, "Validation error: tokenB: "+err.Error(), http.StatusBadRequest)
		return
	}
	if math.IsNaN(req.AmountIn) || req.AmountIn < 0 {
		s.writeJSONError(w, "Validation error: amountIn cannot be negative", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	s.writeJSON(w, types.PriceImpactResponse{PriceImpact: s.quotes.GetPriceImpact(ctx, a, b, req.AmountIn)})
}

// handleSpotPrice handles GET /api/spot-price?tokenA=&decimalsA=&tokenB=&decimalsB=.
func (s *Server) handleSpotPrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	parse := func(addrKey, decKey string) (token.Token, error) {
		dec, err := strconv.ParseUint(q.Get(decKey), 10, 8)
		if err != nil {
			return token.Token{}, fmt.Errorf("%s: %w", decKey, err)
		}
		return tokenFrom(types.TokenRef{Address: q.Get(addrKey), Decimals: uint8(dec)})
	}
	a, err := parse("tokenA", "decimalsA")
	if err != nil {
		s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}
	b, err := parse("tokenB", "decimalsB")
	if err != nil {
		s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	s.writeJSON(w, types.SpotPriceResponse{Price: s.quotes.GetSpotPrice(ctx, a, b)})
}

// handleTicks converts a price range to aligned ticks.
func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req types.TicksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateTicksRequest(&req); err != nil {
		s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	fullRange := req.FullRange || (req.MinPrice == 0 && req.MaxPrice == 0)
	var (
		rng uniswapv3.TickRange
		err error
	)
	if fullRange {
		rng, err = uniswapv3.FullRangeTicks(req.FeeTier)
	} else {
		rng, err = uniswapv3.ComputeTicks(req.MinPrice, req.MaxPrice, req.FeeTier, req.Token0Decimals, req.Token1Decimals, req.Swapped)
	}
	if err != nil {
		s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, types.TicksResponse{TickLower: rng.Lower, TickUpper: rng.Upper, FullRange: fullRange})
}

// handleHistory handles GET and DELETE /api/history/{address}.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	addr := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if addr == "" || strings.Contains(addr, "/") {
		s.writeJSONError(w, "Missing wallet address", http.StatusBadRequest)
		return
	}
	if !common.IsHexAddress(addr) {
		s.writeJSONError(w, "Invalid wallet address: "+addr, http.StatusBadRequest)
		return
	}
	owner := token.LowerHex(common.HexToAddress(addr))

	switch r.Method {
	case http.MethodDelete:
		n, err := s.store.ClearHistory(r.Context(), owner)
		if err != nil {
			s.writeJSONError(w, "Failed to clear history: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, types.ClearHistoryResponse{Deleted: n})
		return
	case http.MethodGet:
	default:
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 50 // default
	offset := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= maxHistoryLimit {
			limit = l
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	result, err := s.store.ListTransactions(r.Context(), owner, limit, offset)
	if err != nil {
		s.writeJSONError(w, "Failed to get history: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, result)
}

// handlePreference handles GET and PUT /api/preferences/{key}.
func (s *Server) handlePreference(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/preferences/")
	if !validPreferenceKeys[key] {
		s.writeJSONError(w, "Unknown preference key: "+key, http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		value, ok, err := s.store.GetPreference(r.Context(), key)
		if err != nil {
			s.writeJSONError(w, "Failed to get preference: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			s.writeJSONError(w, "Preference not set", http.StatusNotFound)
			return
		}
		s.writeJSON(w, types.Preference{Key: key, Value: value})

	case http.MethodPut:
		var pref types.Preference
		if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
			s.writeJSONError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := validatePreference(key, pref.Value); err != nil {
			s.writeJSONError(w, "Validation error: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.store.SetPreference(r.Context(), key, pref.Value); err != nil {
			s.writeJSONError(w, "Failed to save preference: "+err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, types.Preference{Key: key, Value: pref.Value})

	default:
		s.writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHealth handles liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":         "healthy",
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": time.Since(s.startTime).Seconds(),
	})
}

// ReadinessCheck represents a single readiness check result.
type ReadinessCheck struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // "ok", "failed"
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleReady handles readiness probes.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := []ReadinessCheck{}
	allHealthy := true

	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		start := time.Now()
		err := s.health.CheckRPC(ctx)
		check := ReadinessCheck{
			Name:      "rpc",
			LatencyMs: time.Since(start).Milliseconds(),
			Status:    "ok",
		}
		if err != nil {
			check.Status = "failed"
			check.Error = err.Error()
			allHealthy = false
		}
		checks = append(checks, check)
	}

	response := map[string]interface{}{
		"ready":  allHealthy,
		"checks": checks,
	}

	w.Header().Set("Content-Type", "application/json")
	if allHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}
