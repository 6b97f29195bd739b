package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	clierr "github.com/gustavo/insight-cli/internal/errors"
	"github.com/gustavo/insight-cli/internal/httpx"
)

// Bridge reaches a wallet daemon over HTTP. The daemon owns connection state
// and keys; signing prompts happen on its side.
type Bridge struct {
	http    *httpx.Client
	baseURL string

	connected bool
	address   string
}

func NewBridge(client *httpx.Client, baseURL string) *Bridge {
	return &Bridge{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Connect queries the bridge for its account state. A bridge that is down or
// reports no account leaves the capability disconnected, which the
// orchestrator treats as a precondition failure rather than a fatal error.
func (b *Bridge) Connect(ctx context.Context) error {
	var status struct {
		Connected bool   `json:"connected"`
		Address   string `json:"address"`
	}
	if _, err := b.http.GetJSON(ctx, http.MethodGet, b.baseURL+"/status", &status); err != nil {
		b.connected = false
		b.address = ""
		return clierr.Wrap(clierr.CodeWallet, "reach wallet bridge", err)
	}
	b.connected = status.Connected && status.Address != ""
	b.address = status.Address
	return nil
}

func (b *Bridge) Connected() bool { return b.connected }

func (b *Bridge) Address() string { return b.address }

func (b *Bridge) SignAndExecute(ctx context.Context, tx json.RawMessage) (string, error) {
	payload := struct {
		TransactionBlock json.RawMessage `json:"transactionBlock"`
	}{TransactionBlock: tx}

	var resp struct {
		Digest string `json:"digest"`
		Error  string `json:"error"`
	}
	if _, err := b.http.PostJSON(ctx, b.baseURL+"/sign-and-execute", payload, &resp); err != nil {
		return "", clierr.Wrap(clierr.CodeSign, "sign and execute transaction", err)
	}
	if resp.Error != "" {
		return "", clierr.New(clierr.CodeSign, resp.Error)
	}
	if strings.TrimSpace(resp.Digest) == "" {
		return "", clierr.New(clierr.CodeSign, "wallet returned no transaction digest")
	}
	return resp.Digest, nil
}
