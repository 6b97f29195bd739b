package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gustavo/insight-cli/internal/model"
	"github.com/gustavo/insight-cli/internal/version"
)

func isolateHome(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := NewRunnerWithWriters(&stdout, &stderr).Run(args)
	return code, stdout.String(), stderr.String()
}

func decodeEnvelope(t *testing.T, raw string) model.Envelope {
	t.Helper()
	var env model.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("output is not an envelope: %v\n%s", err, raw)
	}
	return env
}

func TestVersionCommand(t *testing.T) {
	isolateHome(t)
	code, stdout, _ := runCLI(t, "version")
	if code != 0 {
		t.Fatalf("exit = %d", code)
	}
	if strings.TrimSpace(stdout) != version.CLIVersion {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestSchemaCommand(t *testing.T) {
	isolateHome(t)
	code, stdout, stderr := runCLI(t, "schema")
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	env := decodeEnvelope(t, stdout)
	if !env.Success || env.Meta.Command != "schema" {
		t.Fatalf("envelope = %+v", env)
	}
	if !strings.Contains(stdout, "wallet_not_connected") || !strings.Contains(stdout, `"swap"`) {
		t.Fatalf("stdout = %s", stdout)
	}
}

func TestUnknownCommandIsUsageError(t *testing.T) {
	isolateHome(t)
	code, _, _ := runCLI(t, "definitely-not-a-command")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
}

func TestPolicyBlocksCommand(t *testing.T) {
	isolateHome(t)
	code, _, stderr := runCLI(t, "--enable-commands", "insights list", "version")
	if code != 16 {
		t.Fatalf("exit = %d, want 16", code)
	}
	env := decodeEnvelope(t, stderr)
	if env.Success || env.Error == nil || env.Error.Type != "command_blocked" {
		t.Fatalf("error envelope = %+v", env)
	}
}

func TestInsightsListRendersEnvelope(t *testing.T) {
	isolateHome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"contract": "0x2::deep::DEEP", "symbol": "DEEP", "sender": "alice"}]`))
	}))
	defer srv.Close()

	code, stdout, stderr := runCLI(t, "insights", "list", "--feed-url", srv.URL, "--retries", "0")
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	env := decodeEnvelope(t, stdout)
	if !env.Success || env.Meta.Command != "insights list" {
		t.Fatalf("envelope = %+v", env)
	}
	if !strings.Contains(stdout, "0x2::deep::DEEP") {
		t.Fatalf("stdout = %s", stdout)
	}
}

func TestInsightsListEmptyUpstream(t *testing.T) {
	isolateHome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message": "No insights available"}`))
	}))
	defer srv.Close()

	code, stdout, stderr := runCLI(t, "insights", "list", "--feed-url", srv.URL, "--retries", "0")
	if code != 0 {
		t.Fatalf("empty upstream is not an error, exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, `"empty": true`) {
		t.Fatalf("stdout = %s", stdout)
	}
}

func TestInsightsListSnapshotFallback(t *testing.T) {
	isolateHome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"contract": "0x2::deep::DEEP", "symbol": "DEEP"}]`))
	}))
	feedURL := srv.URL

	if code, _, stderr := runCLI(t, "insights", "list", "--feed-url", feedURL, "--retries", "0"); code != 0 {
		t.Fatalf("warm-up run failed: %d %s", code, stderr)
	}

	// Same URL, upstream gone: the saved snapshot answers instead.
	srv.Close()
	code, stdout, stderr := runCLI(t, "insights", "list", "--feed-url", feedURL, "--retries", "0")
	if code != 0 {
		t.Fatalf("fallback run failed: %d %s", code, stderr)
	}
	env := decodeEnvelope(t, stdout)
	if len(env.Warnings) == 0 {
		t.Fatalf("no staleness warning: %+v", env)
	}
	if !strings.Contains(stdout, "0x2::deep::DEEP") {
		t.Fatalf("stdout = %s", stdout)
	}
}

func TestInsightsListNoStaleRefusesFallback(t *testing.T) {
	isolateHome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"contract": "0x2::deep::DEEP"}]`))
	}))
	feedURL := srv.URL
	if code, _, _ := runCLI(t, "insights", "list", "--feed-url", feedURL, "--retries", "0"); code != 0 {
		t.Fatal("warm-up run failed")
	}

	srv.Close()
	code, _, _ := runCLI(t, "insights", "list", "--feed-url", feedURL, "--retries", "0", "--no-stale")
	if code != 12 {
		t.Fatalf("exit = %d, want upstream failure", code)
	}
}

func TestInsightsDeleteValidatesIdentity(t *testing.T) {
	isolateHome(t)
	code, _, _ := runCLI(t, "insights", "delete", "not-an-identity")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
}

func TestSwapHappyPathEndToEnd(t *testing.T) {
	isolateHome(t)

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"contract": "0x2::deep::DEEP", "symbol": "DEEP", "sender": "alice"}]`))
	}))
	defer feed.Close()

	aggMux := http.NewServeMux()
	aggMux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("amountIn") != "1500000000" {
			t.Errorf("amountIn = %s", r.URL.Query().Get("amountIn"))
		}
		_, _ = w.Write([]byte(`{"expectedAmountOut": "99000", "priceImpact": 0.2}`))
	})
	aggMux.HandleFunc("/tx/build", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tx": {"kind": "swap"}}`))
	})
	agg := httptest.NewServer(aggMux)
	defer agg.Close()

	walletMux := http.NewServeMux()
	walletMux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"connected": true, "address": "0xabc"}`))
	})
	walletMux.HandleFunc("/sign-and-execute", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"digest": "9qDigest"}`))
	})
	walletSrv := httptest.NewServer(walletMux)
	defer walletSrv.Close()

	code, stdout, stderr := runCLI(t,
		"swap",
		"--contract", "0x2::deep::DEEP",
		"--amount-decimal", "1.5",
		"--feed-url", feed.URL,
		"--aggregator-url", agg.URL,
		"--wallet-url", walletSrv.URL,
		"--retries", "0",
	)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr)
	}
	env := decodeEnvelope(t, stdout)
	if !env.Success || !strings.Contains(stdout, "9qDigest") {
		t.Fatalf("stdout = %s", stdout)
	}

	// The transcript was persisted alongside the swap.
	code, stdout, stderr = runCLI(t, "transcript")
	if code != 0 {
		t.Fatalf("transcript exit = %d, stderr = %s", code, stderr)
	}
	if !strings.Contains(stdout, "Swap successful!") {
		t.Fatalf("transcript = %s", stdout)
	}
}

func TestSwapWalletDownIsPreconditionFailure(t *testing.T) {
	isolateHome(t)
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"contract": "0x2::deep::DEEP", "symbol": "DEEP"}]`))
	}))
	defer feed.Close()

	code, _, stderr := runCLI(t,
		"swap",
		"--contract", "0x2::deep::DEEP",
		"--amount", "1",
		"--feed-url", feed.URL,
		"--wallet-url", "http://127.0.0.1:1",
		"--retries", "0",
	)
	if code != 20 {
		t.Fatalf("exit = %d, want 20, stderr = %s", code, stderr)
	}
}

func TestSwapRejectsAmbiguousAmount(t *testing.T) {
	isolateHome(t)
	code, _, _ := runCLI(t, "swap", "--contract", "0x2::deep::DEEP", "--amount", "1", "--amount-decimal", "1")
	if code != 2 {
		t.Fatalf("exit = %d, want 2", code)
	}
}
