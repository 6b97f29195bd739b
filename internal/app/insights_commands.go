package app

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	clierr "github.com/gustavo/insight-cli/internal/errors"
	"github.com/gustavo/insight-cli/internal/id"
	"github.com/gustavo/insight-cli/internal/insights"
	"github.com/gustavo/insight-cli/internal/model"
)

type listData struct {
	Insights []model.Insight `json:"insights"`
	Count    int             `json:"count"`
	Empty    bool            `json:"empty"`
	Stats    *insights.Stats `json:"stats,omitempty"`
}

type deleteData struct {
	Deleted   []string        `json:"deleted"`
	Remaining []model.Insight `json:"remaining"`
}

func (s *runtimeState) newInsightsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Read and manage the insight feed",
	}
	cmd.AddCommand(s.newInsightsListCommand())
	cmd.AddCommand(s.newInsightsWatchCommand())
	cmd.AddCommand(s.newInsightsDeleteCommand())
	return cmd
}

func (s *runtimeState) newInsightsListCommand() *cobra.Command {
	var withStats bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch the current insight batch once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := s.feed.Fetch(cmd.Context())
			if err != nil {
				return s.serveSnapshotFallback(trimRootPath(cmd.CommandPath()), withStats, err)
			}

			s.saveSnapshot(batch)
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), buildListData(batch, withStats), nil, cacheMetaMiss())
		},
	}
	cmd.Flags().BoolVar(&withStats, "stats", false, "Include per-caller and per-day aggregates")
	return cmd
}

func buildListData(batch []model.Insight, withStats bool) listData {
	data := listData{
		Insights: batch,
		Count:    len(batch),
		Empty:    len(batch) == 0,
	}
	if data.Insights == nil {
		data.Insights = []model.Insight{}
	}
	if withStats {
		entries := make([]insights.Cached, 0, len(batch))
		for _, in := range batch {
			entries = append(entries, insights.Cached{Insight: in})
		}
		stats := insights.Summarize(entries)
		data.Stats = &stats
	}
	return data
}

func (s *runtimeState) saveSnapshot(batch []model.Insight) {
	if s.snapshots == nil {
		return
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return
	}
	_ = s.snapshots.Save(snapshotKey(s.settings.FeedURL), body)
}

// serveSnapshotFallback answers a failed fetch from the last persisted batch
// when one is fresh enough, mirroring the watch loop's keep-on-failure rule
// for one-shot invocations.
func (s *runtimeState) serveSnapshotFallback(commandPath string, withStats bool, fetchErr error) error {
	if s.snapshots == nil || s.settings.NoStale || !staleFallbackAllowed(fetchErr) {
		return fetchErr
	}

	snap, err := s.snapshots.Load(snapshotKey(s.settings.FeedURL), s.settings.PollInterval, s.settings.MaxStale)
	if err != nil || !snap.Hit || snap.TooStale {
		return fetchErr
	}

	batch, err := model.DecodeBatch(snap.Body)
	if err != nil {
		return fetchErr
	}

	warnings := []string{fmt.Sprintf("upstream unavailable, serving snapshot from %s ago: %v", snap.Age.Round(time.Second), fetchErr)}
	status := model.CacheStatus{Status: "hit", AgeMS: snap.Age.Milliseconds(), Stale: snap.Stale}
	return s.emitSuccess(commandPath, buildListData(batch, withStats), warnings, status)
}

func staleFallbackAllowed(err error) bool {
	cErr, ok := clierr.As(err)
	if !ok {
		return false
	}
	switch cErr.Code {
	case clierr.CodeUnavailable, clierr.CodeRateLimited:
		return true
	default:
		return false
	}
}

func snapshotKey(feedURL string) string {
	sum := sha256.Sum256([]byte("insights|" + feedURL))
	return hex.EncodeToString(sum[:])
}

func (s *runtimeState) newInsightsWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the feed continuously and log reconciliation activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newWatchLogger()
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "init logger", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("watch starting",
				zap.String("feed_url", s.settings.FeedURL),
				zap.Duration("poll_interval", s.settings.PollInterval),
				zap.Uint("grace_cycles", s.settings.GraceCycles))

			poller := insights.NewPoller(s.feed, s.settings.PollInterval, s.settings.GraceCycles, logger)
			if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
				return clierr.Wrap(clierr.CodeInternal, "watch loop", err)
			}
			logger.Info("watch stopped", zap.Uint64("cycles", poller.Status().Cycles))
			return nil
		},
	}
	return cmd
}

func newWatchLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func (s *runtimeState) newInsightsDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <identity>...",
		Short: "Delete insights upstream and report the surviving batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, identity := range args {
				if !id.IsCoinType(identity) && !id.IsTweetID(identity) {
					return clierr.New(clierr.CodeUsage, fmt.Sprintf("%q is neither a coin type nor a tweet id", identity))
				}
			}

			ctx := cmd.Context()
			poller := insights.NewPoller(s.feed, s.settings.PollInterval, s.settings.GraceCycles, zap.NewNop())
			if !poller.Refresh(ctx) {
				return clierr.New(clierr.CodeInternal, "initial refresh did not run")
			}
			if status := poller.Status(); status.Err != "" {
				return clierr.New(clierr.CodeUnavailable, status.Err)
			}

			if err := poller.Delete(ctx, args); err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "delete upstream insights", err)
			}

			remaining := make([]model.Insight, 0)
			for _, entry := range poller.Snapshot() {
				remaining = append(remaining, entry.Insight)
			}
			data := deleteData{Deleted: args, Remaining: remaining}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass())
		},
	}
	return cmd
}
