// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/llmchat/lib/clock"
	"github.com/bureau-foundation/llmchat/lib/llm"
	"github.com/bureau-foundation/llmchat/lib/turn"
)

// Request parameters fixed for every exchange.
const (
	Temperature = 0.7
	MaxTokens   = 1000
)

// State is the lifecycle position of one exchange.
type State string

const (
	// StateBuilding is the initial state: the context is being
	// assembled and the provider request has not been sent.
	StateBuilding State = "building"

	// StateStreaming means the provider accepted the request and
	// fragments are being aggregated.
	StateStreaming State = "streaming"

	// StateSettled means the stream ended normally. Terminal.
	StateSettled State = "settled"

	// StateFailed means the exchange ended in an error turn. Terminal.
	StateFailed State = "failed"

	// StateAbandoned means the consumer stopped ranging before the
	// stream ended. Terminal; no error turn is produced.
	StateAbandoned State = "abandoned"
)

// FailureKind classifies the error that failed an exchange. Used for
// logging; the error turn text does not depend on it.
type FailureKind string

const (
	// FailureConfiguration: endpoint or model missing.
	FailureConfiguration FailureKind = "configuration"

	// FailureProvider: the provider answered with a non-200 status or
	// sent an error inside the stream.
	FailureProvider FailureKind = "provider"

	// FailureTransport: everything else, including connection errors,
	// malformed stream data, timeouts, and cancellation.
	FailureTransport FailureKind = "transport"
)

const (
	errorTextPrefix = "Error: "
	errorTextSuffix = "\n\nPlease check your API configuration."
)

// ErrorText returns the content of the assistant turn substituted for
// a failed exchange.
func ErrorText(err error) string {
	return errorTextPrefix + err.Error() + errorTextSuffix
}

// IsErrorText reports whether content has the shape ErrorText
// produces. UIs use it to style error turns; it is a display heuristic
// only, since a model could in principle produce the same text.
func IsErrorText(content string) bool {
	return strings.HasPrefix(content, errorTextPrefix) && strings.HasSuffix(content, errorTextSuffix)
}

// classify maps an error to its FailureKind.
func classify(err error) FailureKind {
	if errors.Is(err, llm.ErrNotConfigured) {
		return FailureConfiguration
	}
	var providerError *llm.ProviderError
	if errors.As(err, &providerError) {
		return FailureProvider
	}
	return FailureTransport
}

// Config holds the Orchestrator's read-only configuration.
type Config struct {
	// Provider sends completion requests. Required.
	Provider llm.Provider

	// Model is the model name sent with every request. An empty model
	// is not rejected here; each exchange fails with a configuration
	// error instead.
	Model string

	// SystemPrompt is the first turn of every context. Empty means
	// DefaultSystemPrompt.
	SystemPrompt string

	// Logger receives exchange lifecycle records. Defaults to a
	// logger that discards everything.
	Logger *slog.Logger

	// Clock measures exchange duration. Defaults to clock.Real().
	Clock clock.Clock
}

// Orchestrator runs exchanges against one provider. It holds only
// configuration, so one Orchestrator may run any number of exchanges
// concurrently as long as each has its own History.
type Orchestrator struct {
	provider     llm.Provider
	model        string
	systemPrompt string
	logger       *slog.Logger
	clock        clock.Clock
}

// NewOrchestrator creates an Orchestrator from config.
func NewOrchestrator(config Config) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	systemPrompt := config.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &Orchestrator{
		provider:     config.Provider,
		model:        config.Model,
		systemPrompt: systemPrompt,
		logger:       logger,
		clock:        clk,
	}
}

// Model returns the configured model name.
func (orchestrator *Orchestrator) Model() string { return orchestrator.model }

// Run starts an exchange and returns its snapshot sequence. It is
// shorthand for Start(ctx, message, history).Snapshots().
//
// The sequence yields one snapshot per non-empty reply fragment. If
// the exchange fails at any point it yields one final snapshot whose
// last turn is an assistant turn carrying [ErrorText], then ends. A
// reply with no fragments yields exactly one snapshot with an empty
// assistant turn. history is never modified.
func (orchestrator *Orchestrator) Run(ctx context.Context, message string, history turn.History) iter.Seq[turn.History] {
	return orchestrator.Start(ctx, message, history).Snapshots()
}

// Start prepares an exchange. Nothing is sent until the returned
// Exchange's snapshot sequence is ranged.
func (orchestrator *Orchestrator) Start(ctx context.Context, message string, history turn.History) *Exchange {
	return &Exchange{
		orchestrator: orchestrator,
		ctx:          ctx,
		message:      message,
		history:      history.Clone(),
		state:        StateBuilding,
	}
}

// Exchange is a single run of the engine: one user message, one
// provider request, one reply. Its snapshot sequence is consumed once:
// ranging it again yields nothing and sends no request. State, Err,
// and FailureKind may be read from any goroutine and are final once
// ranging has ended.
type Exchange struct {
	orchestrator *Orchestrator
	ctx          context.Context
	message      string
	history      turn.History
	consumed     atomic.Bool

	mutex sync.Mutex
	state State
	err   error
	kind  FailureKind
}

// State returns the exchange's current lifecycle state.
func (exchange *Exchange) State() State {
	exchange.mutex.Lock()
	defer exchange.mutex.Unlock()
	return exchange.state
}

// Err returns the error that failed the exchange, or nil.
func (exchange *Exchange) Err() error {
	exchange.mutex.Lock()
	defer exchange.mutex.Unlock()
	return exchange.err
}

// FailureKind returns the classification of Err, or "" when the
// exchange has not failed.
func (exchange *Exchange) FailureKind() FailureKind {
	exchange.mutex.Lock()
	defer exchange.mutex.Unlock()
	return exchange.kind
}

func (exchange *Exchange) transition(state State, attrs ...any) {
	exchange.mutex.Lock()
	previous := exchange.state
	exchange.state = state
	exchange.mutex.Unlock()

	args := append([]any{"from", string(previous), "to", string(state)}, attrs...)
	exchange.orchestrator.logger.Debug("exchange state", args...)
}

func (exchange *Exchange) fail(err error, kind FailureKind) {
	exchange.mutex.Lock()
	exchange.err = err
	exchange.kind = kind
	exchange.mutex.Unlock()
	exchange.transition(StateFailed)
}

// Snapshots returns the exchange's snapshot sequence. See
// [Orchestrator.Run] for its contents.
func (exchange *Exchange) Snapshots() iter.Seq[turn.History] {
	return func(yield func(turn.History) bool) {
		orchestrator := exchange.orchestrator
		logger := orchestrator.logger
		if exchange.consumed.Swap(true) {
			logger.Debug("exchange snapshots already consumed", "state", string(exchange.State()))
			return
		}
		started := orchestrator.clock.Now()

		contextTurns := BuildContext(exchange.history, orchestrator.systemPrompt, exchange.message)
		logger.Info("exchange started",
			"model", orchestrator.model,
			"context_turns", len(contextTurns),
		)

		failed := func(err error, kind FailureKind) {
			exchange.fail(err, kind)
			logger.Warn("exchange failed",
				"kind", string(kind),
				"error", err,
				"elapsed", orchestrator.clock.Now().Sub(started),
			)
			yield(exchange.history.Append(turn.User(exchange.message), turn.Assistant(ErrorText(err))))
		}

		if orchestrator.provider == nil {
			failed(fmt.Errorf("%w: no provider", llm.ErrNotConfigured), FailureConfiguration)
			return
		}

		temperature := Temperature
		stream, err := orchestrator.provider.Stream(exchange.ctx, llm.Request{
			Model:       orchestrator.model,
			Messages:    toMessages(contextTurns),
			Temperature: &temperature,
			MaxTokens:   MaxTokens,
		})
		if err != nil {
			failed(err, classify(err))
			return
		}
		defer stream.Close()
		exchange.transition(StateStreaming)

		source := &fragmentSource{ctx: exchange.ctx, stream: stream}
		var snapshots, characters int
		for snapshot := range Aggregate(source.fragments(), exchange.message, exchange.history) {
			snapshots++
			last, _ := snapshot.Last()
			characters = len(last.Content)
			if !yield(snapshot) {
				exchange.transition(StateAbandoned, "snapshots", snapshots)
				return
			}
		}

		if source.err != nil {
			failed(source.err, source.kind)
			return
		}

		elapsed := orchestrator.clock.Now().Sub(started)
		exchange.transition(StateSettled)
		response := stream.Response()
		logger.Info("exchange settled",
			"served_by", response.Model,
			"fragments", snapshots,
			"characters", characters,
			"stop_reason", string(response.StopReason),
			"input_tokens", response.Usage.InputTokens,
			"output_tokens", response.Usage.OutputTokens,
			"cache_read_tokens", response.Usage.CacheReadTokens,
			"elapsed", elapsed.Round(time.Millisecond),
		)

		if snapshots == 0 {
			yield(exchange.history.Append(turn.User(exchange.message), turn.Assistant("")))
		}
	}
}

// fragmentSource adapts an EventStream to a fragment sequence. The
// sequence stops at the first error, which is recorded for the
// orchestrator rather than passed downstream: the aggregator trusts its
// input.
type fragmentSource struct {
	ctx    context.Context
	stream *llm.EventStream
	err    error
	kind   FailureKind
}

func (source *fragmentSource) fragments() iter.Seq[string] {
	return func(yield func(string) bool) {
		for {
			if err := source.ctx.Err(); err != nil {
				source.err, source.kind = err, FailureTransport
				return
			}
			event, err := source.stream.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				source.err, source.kind = err, classify(err)
				return
			}
			switch event.Type {
			case llm.EventTextDelta:
				if !yield(event.Text) {
					return
				}
			case llm.EventDone:
				return
			case llm.EventError:
				err := event.Error
				if err == nil {
					err = errors.New("provider reported an unspecified stream error")
				}
				source.err, source.kind = err, FailureProvider
				return
			}
		}
	}
}

func toMessages(turns []turn.Turn) []llm.Message {
	messages := make([]llm.Message, len(turns))
	for index, t := range turns {
		messages[index] = llm.Message{Role: llm.Role(t.Role), Content: t.Content}
	}
	return messages
}
