package app

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gustavo/insight-cli/internal/aggregator"
	"github.com/gustavo/insight-cli/internal/cache"
	"github.com/gustavo/insight-cli/internal/config"
	clierr "github.com/gustavo/insight-cli/internal/errors"
	"github.com/gustavo/insight-cli/internal/httpx"
	"github.com/gustavo/insight-cli/internal/insights"
	"github.com/gustavo/insight-cli/internal/model"
	"github.com/gustavo/insight-cli/internal/out"
	"github.com/gustavo/insight-cli/internal/policy"
	"github.com/gustavo/insight-cli/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner      *Runner
	flags       config.GlobalFlags
	settings    config.Settings
	snapshots   *cache.Store
	lastCommand string

	httpClient *httpx.Client
	feed       *insights.Feed
	aggregator *aggregator.Client
}

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	err = normalizeRunError(err)
	if state.snapshots != nil {
		_ = state.snapshots.Close()
	}
	if err == nil {
		return 0
	}
	state.renderError("", err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Insight feed watcher and swap pipeline",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}

			if s.httpClient == nil {
				s.httpClient = httpx.New(settings.Timeout, settings.Retries)
				s.feed = insights.NewFeed(s.httpClient, settings.FeedURL)
				s.aggregator = aggregator.New(s.httpClient, settings.AggregatorURL)
			}

			if settings.CacheEnabled && shouldOpenSnapshots(path) && s.snapshots == nil {
				store, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open snapshot store", err)
				}
				s.snapshots = store
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Upstream request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per upstream request")
	cmd.PersistentFlags().StringVar(&s.flags.MaxStale, "max-stale", "", "Maximum stale fallback window after TTL expiry")
	cmd.PersistentFlags().BoolVar(&s.flags.NoStale, "no-stale", false, "Reject stale snapshots")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable snapshot reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.FeedURL, "feed-url", "", "Insights feed base URL")
	cmd.PersistentFlags().StringVar(&s.flags.AggregatorURL, "aggregator-url", "", "Swap aggregator base URL")
	cmd.PersistentFlags().StringVar(&s.flags.WalletURL, "wallet-url", "", "Wallet bridge base URL")
	cmd.PersistentFlags().StringVar(&s.flags.PollInterval, "poll-interval", "", "Feed polling period (watch)")
	cmd.PersistentFlags().IntVar(&s.flags.GraceCycles, "grace-cycles", -1, "Cycles an absent insight survives before eviction")

	cmd.AddCommand(s.newInsightsCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newTranscriptCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// newSchemaCommand describes the CLI surface for agent callers: commands,
// envelope shape and exit codes, as one machine-readable document.
func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the machine-readable command and envelope schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data := map[string]any{
				"envelope_version": model.EnvelopeVersion,
				"commands": []map[string]string{
					{"path": "insights list", "description": "fetch the current insight batch once, with snapshot fallback"},
					{"path": "insights watch", "description": "poll the feed continuously and reconcile into the cache"},
					{"path": "insights delete", "description": "delete insights upstream by identity"},
					{"path": "swap", "description": "swap native coin into a token insight's contract"},
					{"path": "transcript", "description": "print recent swap chat messages"},
					{"path": "schema", "description": "print this document"},
					{"path": "version", "description": "print CLI version"},
				},
				"exit_codes": map[string]int{
					"success":                  int(clierr.CodeSuccess),
					"internal_error":           int(clierr.CodeInternal),
					"usage_error":              int(clierr.CodeUsage),
					"auth_error":               int(clierr.CodeAuth),
					"rate_limited":             int(clierr.CodeRateLimited),
					"upstream_unavailable":     int(clierr.CodeUnavailable),
					"unsupported":              int(clierr.CodeUnsupported),
					"stale_data":               int(clierr.CodeStale),
					"command_blocked":          int(clierr.CodeBlocked),
					"wallet_not_connected":     int(clierr.CodeWallet),
					"quote_unavailable":        int(clierr.CodeQuote),
					"build_failed":             int(clierr.CodeBuild),
					"sign_or_broadcast_failed": int(clierr.CodeSign),
				},
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass())
		},
	}
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Error:    nil,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Cache:     cacheStatus,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings.OutputMode)
}

func (s *runtimeState) renderError(commandPath string, err error) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		typ = errorType(cErr.Code)
	}

	mode := s.settings.OutputMode
	if mode == "" {
		mode = "json"
	}
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Cache:     cacheMetaBypass(),
		},
	}
	_ = out.Render(s.runner.stderr, env, mode)
}

func errorType(code clierr.Code) string {
	switch code {
	case clierr.CodeUsage:
		return "usage_error"
	case clierr.CodeAuth:
		return "auth_error"
	case clierr.CodeRateLimited:
		return "rate_limited"
	case clierr.CodeUnavailable:
		return "upstream_unavailable"
	case clierr.CodeUnsupported:
		return "unsupported"
	case clierr.CodeStale:
		return "stale_data"
	case clierr.CodeBlocked:
		return "command_blocked"
	case clierr.CodeWallet:
		return "wallet_not_connected"
	case clierr.CodeQuote:
		return "quote_unavailable"
	case clierr.CodeBuild:
		return "build_failed"
	case clierr.CodeSign:
		return "sign_or_broadcast_failed"
	default:
		return "internal_error"
	}
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass", AgeMS: 0, Stale: false}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss", AgeMS: 0, Stale: false}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func shouldOpenSnapshots(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "insights list":
		return true
	default:
		return false
	}
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}
