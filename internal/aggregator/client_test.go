package aggregator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	clierr "github.com/gustavo/insight-cli/internal/errors"
	"github.com/gustavo/insight-cli/internal/httpx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(httpx.New(2*time.Second, 0), srv.URL)
}

func TestQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("tokenIn") != "0x2::sui::SUI" || q.Get("tokenOut") != "0x2::deep::DEEP" || q.Get("amountIn") != "1000000000" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte(`{"expectedAmountOut": "42000", "priceImpact": 0.31, "routes": [{"pool": "p1"}]}`))
	})

	quote, err := client.Quote(context.Background(), QuoteRequest{
		TokenIn:  "0x2::sui::SUI",
		TokenOut: "0x2::deep::DEEP",
		AmountIn: 1_000_000_000,
	})
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.ExpectedAmountOut != "42000" || quote.PriceImpactPct != 0.31 {
		t.Fatalf("quote = %+v", quote)
	}
	// Raw payload is preserved for the build step.
	var raw map[string]any
	if err := json.Unmarshal(quote.Raw, &raw); err != nil {
		t.Fatalf("raw payload: %v", err)
	}
	if _, ok := raw["routes"]; !ok {
		t.Fatalf("raw payload lost fields: %s", quote.Raw)
	}
}

func TestQuoteNullResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	})

	_, err := client.Quote(context.Background(), QuoteRequest{TokenIn: "a", TokenOut: "b", AmountIn: 1})
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeQuote {
		t.Fatalf("err = %v, want quote error", err)
	}
}

func TestQuoteMissingOutput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"priceImpact": 0.5}`))
	})

	_, err := client.Quote(context.Background(), QuoteRequest{TokenIn: "a", TokenOut: "b", AmountIn: 1})
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeQuote {
		t.Fatalf("err = %v, want quote error", err)
	}
}

func TestBuildTx(t *testing.T) {
	rawQuote := json.RawMessage(`{"expectedAmountOut": "42000", "routes": []}`)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tx/build" || r.Method != http.MethodPost {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var payload map[string]json.RawMessage
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if string(payload["quoteResponse"]) != string(rawQuote) {
			t.Errorf("quoteResponse = %s", payload["quoteResponse"])
		}
		if string(payload["slippage"]) != "0.01" {
			t.Errorf("slippage = %s", payload["slippage"])
		}
		var comm struct {
			Partner       string `json:"partner"`
			CommissionBps int64  `json:"commissionBps"`
		}
		if err := json.Unmarshal(payload["commission"], &comm); err != nil {
			t.Fatalf("decode commission: %v", err)
		}
		if comm.Partner != "0xabc" || comm.CommissionBps != 0 {
			t.Errorf("commission = %+v", comm)
		}
		_, _ = w.Write([]byte(`{"tx": {"kind": "ProgrammableTransaction"}}`))
	})

	tx, err := client.BuildTx(context.Background(), BuildRequest{
		Quote:          &Quote{ExpectedAmountOut: "42000", Raw: rawQuote},
		AccountAddress: "0xabc",
		Slippage:       0.01,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if string(tx) != `{"kind": "ProgrammableTransaction"}` {
		t.Fatalf("tx = %s", tx)
	}
}

func TestBuildTxMissingQuote(t *testing.T) {
	client := New(httpx.New(time.Second, 0), "http://localhost:0")
	_, err := client.BuildTx(context.Background(), BuildRequest{AccountAddress: "0xabc"})
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeBuild {
		t.Fatalf("err = %v, want build error", err)
	}
}

func TestBuildTxEmptyResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tx": null}`))
	})

	_, err := client.BuildTx(context.Background(), BuildRequest{
		Quote:          &Quote{Raw: json.RawMessage(`{}`)},
		AccountAddress: "0xabc",
	})
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeBuild {
		t.Fatalf("err = %v, want build error", err)
	}
}
