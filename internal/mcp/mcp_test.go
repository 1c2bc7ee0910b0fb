package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{float64(0), "0"},
		{float64(999), "999"},
		{float64(1000), "1,000"},
		{float64(-887220), "-887,220"},
		{int64(1234567), "1,234,567"},
		{2.5, "2.5"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatQuote(t *testing.T) {
	raw := json.RawMessage(`{"amountIn":10,"amountOut":3.512,"fee":3000,"pool":"0xabc","reverse":true,"priceImpact":0.42}`)
	out := formatQuote(raw)
	for _, want := range []string{"exact output", "3.512", "0.30%", "0xabc", "0.42%"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatQuote missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatHistory(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "empty",
			raw:  `{"transactions":[],"total":0,"limit":20,"offset":0}`,
			want: []string{"No transactions recorded."},
		},
		{
			name: "paged",
			raw: `{"transactions":[{"hash":"0x1111111111111111111111111111111111111111111111111111111111111111","kind":"swap","status":"success","amountIn":1.5,"amountOut":3,"createdAt":"2026-01-02T03:04:05Z"}],"total":2,"limit":1,"offset":0}`,
			want: []string{"swap", "success", "0x1111111111111111...", "1.5 -> 3", "2026-01-02 03:04:05", "Showing 1 of 2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := formatHistory(json.RawMessage(tt.raw))
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("missing %q in:\n%s", w, out)
				}
			}
		})
	}
}

func TestFormatHealth(t *testing.T) {
	out := formatHealth(json.RawMessage(`{"ready":false,"checks":[{"name":"rpc","status":"failed","latency_ms":12,"error":"dial tcp"}]}`))
	for _, w := range []string{"NOT READY", "rpc", "failed", "12ms", "dial tcp"} {
		if !strings.Contains(out, w) {
			t.Errorf("missing %q in:\n%s", w, out)
		}
	}
}

func TestClient(t *testing.T) {
	var gotMethod, gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		if r.URL.Path == "/missing" {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	raw, err := c.Put(ctx, "/api/preferences/theme", map[string]string{"key": "theme", "value": "dark"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if string(raw) != `{"ok":true}` {
		t.Errorf("body = %s", raw)
	}
	if gotMethod != http.MethodPut || gotType != "application/json" || !strings.Contains(gotBody, `"dark"`) {
		t.Errorf("request = %s %q %s", gotMethod, gotType, gotBody)
	}

	if _, err := c.Delete(ctx, "/api/history/0x1"); err != nil || gotMethod != http.MethodDelete {
		t.Errorf("Delete: method %s err %v", gotMethod, err)
	}

	_, err = c.Get(ctx, "/missing")
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Errorf("Get /missing err = %v, want HTTP 404", err)
	}
}
