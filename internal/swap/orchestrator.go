// Package swap drives the quote, build, sign and execute pipeline for one
// selected token insight at a time.
package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gustavo/insight-cli/internal/aggregator"
	"github.com/gustavo/insight-cli/internal/chat"
	clierr "github.com/gustavo/insight-cli/internal/errors"
	"github.com/gustavo/insight-cli/internal/id"
	"github.com/gustavo/insight-cli/internal/model"
	"github.com/gustavo/insight-cli/internal/wallet"
)

// DefaultSlippage is the fixed slippage tolerance applied to every build (1%).
const DefaultSlippage = 0.01

// State is the session lifecycle. Settled and Failed always return to Idle
// before a new session may start.
type State string

const (
	StateIdle      State = "idle"
	StateQuoting   State = "quoting"
	StateBuilding  State = "building"
	StateExecuting State = "executing"
	StateSettled   State = "settled"
	StateFailed    State = "failed"
)

const (
	OutcomeSettled  = "settled"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

// Outcome reports how a session ended. Failures never escape as errors; they
// surface here and as a sink message.
type Outcome struct {
	Status  string
	Code    clierr.Code
	Digest  string
	Message string
}

// QuoteBuilder is the aggregator surface the orchestrator needs.
type QuoteBuilder interface {
	Quote(ctx context.Context, req aggregator.QuoteRequest) (*aggregator.Quote, error)
	BuildTx(ctx context.Context, req aggregator.BuildRequest) (json.RawMessage, error)
}

// Orchestrator owns the single live swap session. Only one session may be in
// a non-idle state at a time; concurrent starts are rejected here regardless
// of any caller-side guard.
type Orchestrator struct {
	agg      QuoteBuilder
	wallet   wallet.Capability
	sink     chat.Sink
	slippage float64

	// onTransition observes every state change; nil outside tests.
	onTransition func(State)

	mu        sync.Mutex
	state     State
	insightID string
}

func New(agg QuoteBuilder, w wallet.Capability, sink chat.Sink) *Orchestrator {
	return &Orchestrator{
		agg:      agg,
		wallet:   w,
		sink:     sink,
		slippage: DefaultSlippage,
		state:    StateIdle,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start runs one full swap session for the selected insight, spending
// amountIn minimal units of the native coin. Every failure resets the
// orchestrator to idle so a later start is always possible.
func (o *Orchestrator) Start(ctx context.Context, in model.Insight, amountIn uint64) Outcome {
	if o.wallet == nil || !o.wallet.Connected() || o.wallet.Address() == "" {
		return o.reject(clierr.CodeWallet, "Please connect your wallet to perform a swap.")
	}
	token, ok := in.(model.TokenInsight)
	if !ok {
		return o.reject(clierr.CodeUnsupported, "Swaps only apply to token insights.")
	}

	o.mu.Lock()
	if o.state != StateIdle {
		busyID := o.insightID
		o.mu.Unlock()
		return o.reject(clierr.CodeBlocked, fmt.Sprintf("A swap for %s is already in progress.", busyID))
	}
	o.state = StateQuoting
	o.insightID = token.Contract
	o.mu.Unlock()
	o.notifyTransition(StateQuoting)

	quote, err := o.agg.Quote(ctx, aggregator.QuoteRequest{
		TokenIn:  id.NativeCoinType,
		TokenOut: token.Contract,
		AmountIn: amountIn,
	})
	if err != nil || quote == nil {
		return o.fail(clierr.CodeQuote, "no route available for this token", err)
	}

	o.transition(StateBuilding)
	o.sink.Add(fmt.Sprintf(
		"Found best route!\nSwapping: %s SUI\nExpected output: %s %s\nPrice impact: %.4f%%",
		id.FormatNative(amountIn), quote.ExpectedAmountOut, token.Symbol, quote.PriceImpactPct,
	), chat.SenderAI)

	tx, err := o.agg.BuildTx(ctx, aggregator.BuildRequest{
		Quote:          quote,
		AccountAddress: o.wallet.Address(),
		Slippage:       o.slippage,
	})
	if err != nil {
		return o.fail(clierr.CodeBuild, "failed to build transaction", err)
	}

	o.transition(StateExecuting)
	digest, err := o.wallet.SignAndExecute(ctx, tx)
	if err != nil {
		return o.fail(clierr.CodeSign, "transaction was not executed", err)
	}

	o.transition(StateSettled)
	msg := fmt.Sprintf(
		"Swap successful!\nToken: %s\nAmount: %s SUI\nTx: %s",
		token.Symbol, id.FormatNative(amountIn), digest,
	)
	o.sink.Add(msg, chat.SenderAI)
	o.reset()
	return Outcome{Status: OutcomeSettled, Code: clierr.CodeSuccess, Digest: digest, Message: msg}
}

// reject handles preconditions: no session was attempted, so the state never
// leaves idle. Exactly one notice is emitted.
func (o *Orchestrator) reject(code clierr.Code, notice string) Outcome {
	o.sink.Add(notice, chat.SenderAI)
	return Outcome{Status: OutcomeRejected, Code: code, Message: notice}
}

// fail terminates the current session: one failure message, then back to idle.
func (o *Orchestrator) fail(code clierr.Code, summary string, cause error) Outcome {
	o.transition(StateFailed)
	msg := "Swap failed: " + summary
	if cause != nil {
		msg = fmt.Sprintf("Swap failed: %s: %v", summary, cause)
	}
	o.sink.Add(msg, chat.SenderAI)
	o.reset()
	return Outcome{Status: OutcomeFailed, Code: code, Message: msg}
}

func (o *Orchestrator) transition(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.notifyTransition(s)
}

func (o *Orchestrator) reset() {
	o.mu.Lock()
	o.state = StateIdle
	o.insightID = ""
	o.mu.Unlock()
	o.notifyTransition(StateIdle)
}

func (o *Orchestrator) notifyTransition(s State) {
	if o.onTransition != nil {
		o.onTransition(s)
	}
}
