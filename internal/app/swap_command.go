package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gustavo/insight-cli/internal/chat"
	clierr "github.com/gustavo/insight-cli/internal/errors"
	"github.com/gustavo/insight-cli/internal/id"
	"github.com/gustavo/insight-cli/internal/model"
	"github.com/gustavo/insight-cli/internal/swap"
	"github.com/gustavo/insight-cli/internal/wallet"
)

type swapData struct {
	Status   string `json:"status"`
	Insight  string `json:"insight"`
	Symbol   string `json:"symbol,omitempty"`
	AmountIn string `json:"amount_in_sui"`
	Digest   string `json:"digest,omitempty"`
	Message  string `json:"message"`
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	var (
		contract      string
		amountUnits   string
		amountDecimal string
	)
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap native coin into a token from the current feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			contract = strings.TrimSpace(contract)
			if _, err := id.ParseCoinType(contract); err != nil {
				return clierr.Wrap(clierr.CodeUsage, "invalid --contract", err)
			}
			amountIn, err := id.MinimalUnits(amountUnits, amountDecimal)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "invalid amount", err)
			}

			ctx := cmd.Context()
			batch, err := s.feed.Fetch(ctx)
			if err != nil {
				return err
			}
			target, ok := findInsight(batch, contract)
			if !ok {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("insight %s is not in the current feed", contract))
			}

			sink, closeSink := s.openSink()
			defer closeSink()

			bridge := wallet.NewBridge(s.httpClient, s.settings.WalletURL)
			// A failed status probe leaves the bridge disconnected; the
			// orchestrator turns that into a precondition notice.
			_ = bridge.Connect(ctx)

			sink.Add(fmt.Sprintf("Swap %s SUI into %s", id.FormatNative(amountIn), contract), chat.SenderUser)

			outcome := swap.New(s.aggregator, bridge, sink).Start(ctx, target, amountIn)
			data := swapData{
				Status:   outcome.Status,
				Insight:  contract,
				AmountIn: id.FormatNative(amountIn),
				Digest:   outcome.Digest,
				Message:  outcome.Message,
			}
			if token, ok := target.(model.TokenInsight); ok {
				data.Symbol = token.Symbol
			}
			if outcome.Status != swap.OutcomeSettled {
				return clierr.New(outcome.Code, outcome.Message)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&contract, "contract", "", "Coin type of the token insight to swap into")
	cmd.Flags().StringVar(&amountUnits, "amount", "", "Spend amount in minimal units (10^-9 SUI)")
	cmd.Flags().StringVar(&amountDecimal, "amount-decimal", "", "Spend amount in whole SUI, decimal form")
	_ = cmd.MarkFlagRequired("contract")
	return cmd
}

func findInsight(batch []model.Insight, identity string) (model.Insight, bool) {
	for _, in := range batch {
		if in.Identity() == identity {
			return in, true
		}
	}
	return nil, false
}

// openSink returns the persistent transcript when it can be opened and an
// in-memory one otherwise. Swaps never abort over transcript storage.
func (s *runtimeState) openSink() (chat.Sink, func()) {
	store, err := chat.OpenStore(s.settings.TranscriptPath, s.settings.TranscriptLockPath)
	if err != nil {
		return chat.NewTranscript(), func() {}
	}
	return store, func() { _ = store.Close() }
}

func (s *runtimeState) newTranscriptCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Print recent swap chat messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := chat.OpenStore(s.settings.TranscriptPath, s.settings.TranscriptLockPath)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "open transcript store", err)
			}
			defer func() { _ = store.Close() }()

			messages, err := store.Recent(limit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "read transcript", err)
			}
			if messages == nil {
				messages = []chat.Message{}
			}
			data := map[string]any{"messages": messages, "count": len(messages)}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of messages, newest first")
	return cmd
}
