// Package aggregator talks to the swap-route aggregator that quotes and
// builds unsigned transactions for native-to-token swaps.
package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	clierr "github.com/gustavo/insight-cli/internal/errors"
	"github.com/gustavo/insight-cli/internal/httpx"
)

type Client struct {
	http    *httpx.Client
	baseURL string
}

func New(httpClient *httpx.Client, baseURL string) *Client {
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type QuoteRequest struct {
	TokenIn  string
	TokenOut string
	AmountIn uint64
}

// Quote carries the parsed summary fields plus the raw aggregator payload,
// which must be passed back verbatim when building the transaction.
type Quote struct {
	ExpectedAmountOut string
	PriceImpactPct    float64
	Raw               json.RawMessage
}

func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	vals := url.Values{}
	vals.Set("tokenIn", req.TokenIn)
	vals.Set("tokenOut", req.TokenOut)
	vals.Set("amountIn", strconv.FormatUint(req.AmountIn, 10))

	endpoint := fmt.Sprintf("%s/quote?%s", c.baseURL, vals.Encode())
	body, err := c.http.GetJSON(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return nil, clierr.New(clierr.CodeQuote, "aggregator returned no quote")
	}

	var resp struct {
		ExpectedAmountOut string   `json:"expectedAmountOut"`
		PriceImpact       *float64 `json:"priceImpact"`
	}
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, clierr.Wrap(clierr.CodeQuote, "decode aggregator quote", err)
	}
	if strings.TrimSpace(resp.ExpectedAmountOut) == "" {
		return nil, clierr.New(clierr.CodeQuote, "aggregator quote missing expected output")
	}

	quote := &Quote{
		ExpectedAmountOut: resp.ExpectedAmountOut,
		Raw:               json.RawMessage(trimmed),
	}
	if resp.PriceImpact != nil {
		quote.PriceImpactPct = *resp.PriceImpact
	}
	return quote, nil
}

type BuildRequest struct {
	Quote          *Quote
	AccountAddress string
	// Slippage is a fraction, e.g. 0.01 for 1%.
	Slippage float64
}

type buildPayload struct {
	QuoteResponse  json.RawMessage `json:"quoteResponse"`
	AccountAddress string          `json:"accountAddress"`
	Slippage       float64         `json:"slippage"`
	Commission     commission      `json:"commission"`
}

type commission struct {
	Partner       string `json:"partner"`
	CommissionBps int64  `json:"commissionBps"`
}

// BuildTx constructs the unsigned transaction for a quote. Commission is
// always zero; the partner field is the signer itself.
func (c *Client) BuildTx(ctx context.Context, req BuildRequest) (json.RawMessage, error) {
	if req.Quote == nil || len(req.Quote.Raw) == 0 {
		return nil, clierr.New(clierr.CodeBuild, "missing quote for transaction build")
	}

	payload := buildPayload{
		QuoteResponse:  req.Quote.Raw,
		AccountAddress: req.AccountAddress,
		Slippage:       req.Slippage,
		Commission: commission{
			Partner:       req.AccountAddress,
			CommissionBps: 0,
		},
	}

	var resp struct {
		Tx json.RawMessage `json:"tx"`
	}
	if _, err := c.http.PostJSON(ctx, c.baseURL+"/tx/build", payload, &resp); err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(resp.Tx)) == 0 || string(bytes.TrimSpace(resp.Tx)) == "null" {
		return nil, clierr.New(clierr.CodeBuild, "aggregator returned no buildable transaction")
	}
	return resp.Tx, nil
}
