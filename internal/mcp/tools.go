package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers all swap core tools on the MCP server.
func RegisterTools(s *server.MCPServer, client *Client) {
	registerHealth(s, client)
	registerQuote(s, client)
	registerPriceImpact(s, client)
	registerSpotPrice(s, client)
	registerTicks(s, client)
	registerHistory(s, client)
	registerClearHistory(s, client)
	registerGetPreference(s, client)
	registerSetPreference(s, client)
}

func unreachable(err error) *gomcp.CallToolResult {
	return gomcp.NewToolResultError(fmt.Sprintf("Swap core unreachable: %v\n\nIs the server running? Try: make run", err))
}

func registerHealth(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swap_health",
		gomcp.WithDescription("Quick health check for the swap core. Checks RPC connectivity."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		raw, err := client.Get(ctx, "/ready")
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Swap core unhealthy: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatHealth(raw)), nil
	})
}

// tokenArgs adds address and decimals parameters for one side of a pair.
func tokenArgs(prefix, label string) []gomcp.ToolOption {
	return []gomcp.ToolOption{
		gomcp.WithString(prefix,
			gomcp.Required(),
			gomcp.Description(label+" token address (empty or 0xEeee...EEeE for the native asset)"),
		),
		gomcp.WithNumber(prefix+"_decimals",
			gomcp.Required(),
			gomcp.Description(label+" token decimals"),
		),
	}
}

func tokenRef(req gomcp.CallToolRequest, prefix string) map[string]any {
	return map[string]any{
		"address":  req.GetString(prefix, ""),
		"decimals": req.GetInt(prefix+"_decimals", 18),
	}
}

func registerQuote(s *server.MCPServer, client *Client) {
	opts := []gomcp.ToolOption{
		gomcp.WithDescription("Quote a Uniswap V3 swap. Returns the output amount, the fee tier used, the pool and the price impact. With reverse=true the amount is the desired output."),
	}
	opts = append(opts, tokenArgs("token_in", "Input")...)
	opts = append(opts, tokenArgs("token_out", "Output")...)
	opts = append(opts,
		gomcp.WithNumber("amount",
			gomcp.Required(),
			gomcp.Description("Amount in human units (input amount, or output amount when reverse)"),
		),
		gomcp.WithBoolean("reverse",
			gomcp.Description("Solve for the input amount that yields the given output"),
		),
	)
	tool := gomcp.NewTool("swap_quote", opts...)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		amount := req.GetFloat("amount", 0)
		if amount <= 0 {
			return gomcp.NewToolResultError("amount must be positive"), nil
		}
		body := map[string]any{
			"tokenIn":  tokenRef(req, "token_in"),
			"tokenOut": tokenRef(req, "token_out"),
			"amount":   amount,
			"reverse":  req.GetBool("reverse", false),
		}
		raw, err := client.Post(ctx, "/api/quote", body)
		if err != nil {
			if strings.Contains(err.Error(), "HTTP 404") {
				return gomcp.NewToolResultError("No pool with liquidity for this pair on any fee tier."), nil
			}
			return unreachable(err), nil
		}
		return gomcp.NewToolResultText(formatQuote(raw)), nil
	})
}

func registerPriceImpact(s *server.MCPServer, client *Client) {
	opts := []gomcp.ToolOption{
		gomcp.WithDescription("Estimate the price impact in percent of selling amount_in of token_a for token_b."),
	}
	opts = append(opts, tokenArgs("token_a", "Sold")...)
	opts = append(opts, tokenArgs("token_b", "Bought")...)
	opts = append(opts, gomcp.WithNumber("amount_in",
		gomcp.Required(),
		gomcp.Description("Amount of token_a in human units"),
	))
	tool := gomcp.NewTool("swap_price_impact", opts...)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		body := map[string]any{
			"tokenA":   tokenRef(req, "token_a"),
			"tokenB":   tokenRef(req, "token_b"),
			"amountIn": req.GetFloat("amount_in", 0),
		}
		raw, err := client.Post(ctx, "/api/price-impact", body)
		if err != nil {
			return unreachable(err), nil
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Error parsing price impact: %v", err)), nil
		}
		return gomcp.NewToolResultText(kv("Price Impact", formatPct(getNum(m, "priceImpact")))), nil
	})
}

func registerSpotPrice(s *server.MCPServer, client *Client) {
	opts := []gomcp.ToolOption{
		gomcp.WithDescription("Get the pool spot price of one token_a in token_b. Zero means no price is known."),
	}
	opts = append(opts, tokenArgs("token_a", "Base")...)
	opts = append(opts, tokenArgs("token_b", "Quote")...)
	tool := gomcp.NewTool("swap_spot_price", opts...)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		q := url.Values{}
		q.Set("tokenA", req.GetString("token_a", ""))
		q.Set("decimalsA", fmt.Sprint(req.GetInt("token_a_decimals", 18)))
		q.Set("tokenB", req.GetString("token_b", ""))
		q.Set("decimalsB", fmt.Sprint(req.GetInt("token_b_decimals", 18)))
		raw, err := client.Get(ctx, "/api/spot-price?"+q.Encode())
		if err != nil {
			return unreachable(err), nil
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Error parsing spot price: %v", err)), nil
		}
		price := getNum(m, "price")
		if price == 0 {
			return gomcp.NewToolResultText("No spot price available for this pair."), nil
		}
		return gomcp.NewToolResultText(kv("Spot Price", formatAmount(price))), nil
	})
}

func registerTicks(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swap_ticks",
		gomcp.WithDescription("Convert a liquidity price range (token1 per token0) into ticks aligned to the fee tier's spacing."),
		gomcp.WithNumber("min_price",
			gomcp.Description("Lower price bound"),
		),
		gomcp.WithNumber("max_price",
			gomcp.Description("Upper price bound"),
		),
		gomcp.WithNumber("fee_tier",
			gomcp.Required(),
			gomcp.Description("Fee tier: 100, 500, 3000 or 10000"),
		),
		gomcp.WithNumber("token0_decimals",
			gomcp.Description("token0 decimals (default 18)"),
		),
		gomcp.WithNumber("token1_decimals",
			gomcp.Description("token1 decimals (default 18)"),
		),
		gomcp.WithBoolean("full_range",
			gomcp.Description("Ignore prices and return the widest aligned range"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		body := map[string]any{
			"minPrice":       req.GetFloat("min_price", 0),
			"maxPrice":       req.GetFloat("max_price", 0),
			"feeTier":        req.GetInt("fee_tier", 3000),
			"token0Decimals": req.GetInt("token0_decimals", 18),
			"token1Decimals": req.GetInt("token1_decimals", 18),
			"fullRange":      req.GetBool("full_range", false),
		}
		raw, err := client.Post(ctx, "/api/ticks", body)
		if err != nil {
			if strings.Contains(err.Error(), "HTTP 400") {
				return gomcp.NewToolResultError(fmt.Sprintf("Invalid range: %v", err)), nil
			}
			return unreachable(err), nil
		}
		return gomcp.NewToolResultText(formatTicks(raw)), nil
	})
}

func registerHistory(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swap_history",
		gomcp.WithDescription("List a wallet's recorded transactions (swaps, approvals, mints, staking) with their status."),
		gomcp.WithString("address",
			gomcp.Required(),
			gomcp.Description("Wallet address"),
		),
		gomcp.WithNumber("limit",
			gomcp.Description("Max results (default 20)"),
		),
		gomcp.WithNumber("offset",
			gomcp.Description("Pagination offset"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		addr, err := req.RequireString("address")
		if err != nil {
			return gomcp.NewToolResultError("address is required"), nil
		}
		limit := req.GetInt("limit", 20)
		offset := req.GetInt("offset", 0)
		raw, err := client.Get(ctx, fmt.Sprintf("/api/history/%s?limit=%d&offset=%d", url.PathEscape(addr), limit, offset))
		if err != nil {
			return unreachable(err), nil
		}
		return gomcp.NewToolResultText(formatHistory(raw)), nil
	})
}

func registerClearHistory(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swap_clear_history",
		gomcp.WithDescription("Delete a wallet's transaction history. This is a MUTATING operation. Pending transactions are dropped from tracking on restart."),
		gomcp.WithString("address",
			gomcp.Required(),
			gomcp.Description("Wallet address"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		addr, err := req.RequireString("address")
		if err != nil {
			return gomcp.NewToolResultError("address is required"), nil
		}
		raw, err := client.Delete(ctx, "/api/history/"+url.PathEscape(addr))
		if err != nil {
			return unreachable(err), nil
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("Error parsing response: %v", err)), nil
		}
		return gomcp.NewToolResultText(fmt.Sprintf("Deleted %s transactions for %s.", formatNumber(getNum(m, "deleted")), addr)), nil
	})
}

func registerGetPreference(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swap_get_preference",
		gomcp.WithDescription("Read a stored preference: gasSettings, currency, language or theme."),
		gomcp.WithString("key",
			gomcp.Required(),
			gomcp.Description("Preference key"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return gomcp.NewToolResultError("key is required"), nil
		}
		raw, err := client.Get(ctx, "/api/preferences/"+url.PathEscape(key))
		if err != nil {
			if strings.Contains(err.Error(), "HTTP 404") {
				return gomcp.NewToolResultText(fmt.Sprintf("Preference %q is not set.", key)), nil
			}
			return unreachable(err), nil
		}
		return gomcp.NewToolResultText(formatPreference(raw)), nil
	})
}

func registerSetPreference(s *server.MCPServer, client *Client) {
	tool := gomcp.NewTool("swap_set_preference",
		gomcp.WithDescription("Store a preference. This is a MUTATING operation. gasSettings takes a JSON object with mode, speed and slippage."),
		gomcp.WithString("key",
			gomcp.Required(),
			gomcp.Description("Preference key"),
		),
		gomcp.WithString("value",
			gomcp.Required(),
			gomcp.Description("Preference value"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		key, err := req.RequireString("key")
		if err != nil {
			return gomcp.NewToolResultError("key is required"), nil
		}
		value, err := req.RequireString("value")
		if err != nil {
			return gomcp.NewToolResultError("value is required"), nil
		}
		raw, err := client.Put(ctx, "/api/preferences/"+url.PathEscape(key), map[string]string{"key": key, "value": value})
		if err != nil {
			if strings.Contains(err.Error(), "HTTP 400") {
				return gomcp.NewToolResultError(fmt.Sprintf("Rejected: %v", err)), nil
			}
			return unreachable(err), nil
		}
		return gomcp.NewToolResultText("Saved.\n" + formatPreference(raw)), nil
	})
}

// --- Formatters ---

func formatQuote(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing quote: %v", err)
	}

	title := "Swap Quote"
	if b, _ := m["reverse"].(bool); b {
		title += " (exact output)"
	}
	return joinLines(
		section(title),
		kv("Amount In", formatAmount(getNum(m, "amountIn"))),
		kv("Amount Out", formatAmount(getNum(m, "amountOut"))),
		kv("Fee Tier", fmt.Sprintf("%.2f%%", getNum(m, "fee")/10000)),
		kv("Pool", getStr(m, "pool")),
		kv("Price Impact", formatPct(getNum(m, "priceImpact"))),
	)
}

func formatTicks(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing ticks: %v", err)
	}
	title := "Tick Range"
	if b, _ := m["fullRange"].(bool); b {
		title += " (full range)"
	}
	return joinLines(
		section(title),
		kv("Tick Lower", formatNumber(getNum(m, "tickLower"))),
		kv("Tick Upper", formatNumber(getNum(m, "tickUpper"))),
	)
}

func formatHealth(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing health: %v", err)
	}

	ready, _ := m["ready"].(bool)
	state := "READY"
	if !ready {
		state = "NOT READY"
	}

	lines := section("Swap Core Health: " + state)

	if checks, ok := m["checks"].([]any); ok {
		for _, c := range checks {
			if check, ok := c.(map[string]any); ok {
				name := getStr(check, "name")
				status := getStr(check, "status")
				latencyMs := getNum(check, "latency_ms")
				errMsg := getStr(check, "error")
				line := fmt.Sprintf("  %-15s %s (%s)", name, status, formatMs(latencyMs))
				if errMsg != "" {
					line += " - " + errMsg
				}
				lines += "\n" + line
			}
		}
	}

	return lines
}

func formatHistory(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing history: %v", err)
	}

	total := getNum(m, "total")
	lines := joinLines(
		section("Transaction History"),
		kv("Total", formatNumber(total)),
	)

	txs, _ := m["transactions"].([]any)
	if len(txs) == 0 {
		return lines + "\n\nNo transactions recorded."
	}

	lines += "\n"
	for _, t := range txs {
		tx, ok := t.(map[string]any)
		if !ok {
			continue
		}
		line := fmt.Sprintf("  %-8s %-8s %s", getStr(tx, "kind"), getStr(tx, "status"), shortHash(getStr(tx, "hash")))
		if in := getNum(tx, "amountIn"); in > 0 {
			line += fmt.Sprintf("  %s -> %s", formatAmount(in), formatAmount(getNum(tx, "amountOut")))
		}
		if created := getStr(tx, "createdAt"); len(created) >= 19 {
			line += "  " + strings.Replace(created[:19], "T", " ", 1)
		}
		lines += "\n" + line
	}

	if shown := len(txs); float64(shown) < total {
		lines += fmt.Sprintf("\n\nShowing %d of %s. Use offset to page.", shown, formatNumber(total))
	}
	return lines
}

func formatPreference(raw json.RawMessage) string {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("Error parsing preference: %v", err)
	}
	return kv(getStr(m, "key"), getStr(m, "value"))
}

// --- Helpers ---

func getStr(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getNum(m map[string]any, key string) float64 {
	if v, ok := m[key]; ok {
		if n, ok := v.(float64); ok {
			return n
		}
	}
	return 0
}
