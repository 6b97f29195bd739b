package wallet

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

func newTestBridge(t *testing.T, handler http.HandlerFunc) *Bridge {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBridge(httpx.New(2*time.Second, 0), srv.URL)
}

func TestConnect(t *testing.T) {
	bridge := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"connected": true, "address": "0xFEED"}`))
	})

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !bridge.Connected() || bridge.Address() != "0xFEED" {
		t.Fatalf("connected=%v address=%q", bridge.Connected(), bridge.Address())
	}
}

func TestConnectNoAccount(t *testing.T) {
	bridge := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"connected": true, "address": ""}`))
	})

	if err := bridge.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if bridge.Connected() {
		t.Fatal("bridge without an address reported connected")
	}
}

func TestConnectBridgeDown(t *testing.T) {
	bridge := NewBridge(httpx.New(200*time.Millisecond, 0), "http://127.0.0.1:1")

	err := bridge.Connect(context.Background())
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeWallet {
		t.Fatalf("err = %v, want wallet error", err)
	}
	if bridge.Connected() {
		t.Fatal("unreachable bridge reported connected")
	}
}

func TestSignAndExecute(t *testing.T) {
	bridge := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sign-and-execute" {
			t.Errorf("path = %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			TransactionBlock json.RawMessage `json:"transactionBlock"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if string(payload.TransactionBlock) != `{"kind": "swap"}` {
			t.Errorf("transactionBlock = %s", payload.TransactionBlock)
		}
		_, _ = w.Write([]byte(`{"digest": "8vXq"}`))
	})

	digest, err := bridge.SignAndExecute(context.Background(), json.RawMessage(`{"kind": "swap"}`))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if digest != "8vXq" {
		t.Fatalf("digest = %q", digest)
	}
}

func TestSignAndExecuteWalletError(t *testing.T) {
	bridge := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "user rejected the request"}`))
	})

	_, err := bridge.SignAndExecute(context.Background(), json.RawMessage(`{}`))
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeSign {
		t.Fatalf("err = %v, want sign error", err)
	}
}

func TestSignAndExecuteMissingDigest(t *testing.T) {
	bridge := newTestBridge(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := bridge.SignAndExecute(context.Background(), json.RawMessage(`{}`))
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeSign {
		t.Fatalf("err = %v, want sign error", err)
	}
}
