package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/domain/tool"
	"github.com/Bezhuang/my-little-app/internal/infra/llm"
	"github.com/Bezhuang/my-little-app/internal/infra/logging"
)

const (
	DefaultMaxToolRounds = 5

	reasoningBudget = 500
)

type OrchestratorOptions struct {
	MaxToolRounds int
	Cleaner       AnswerCleaner
	CleanupMode   CleanupMode
	Logger        *zap.Logger
}

// Orchestrator drives the round loop of a single turn:
// AWAITING_RESPONSE -> {EXECUTING_TOOLS -> AWAITING_RESPONSE}* -> FINALIZED.
// It never returns an error; every ending is an Outcome.
type Orchestrator struct {
	router    Router
	tools     Tools
	ledger    Ledger
	settings  Settings
	cleaner   AnswerCleaner
	mode      CleanupMode
	maxRounds int
	logger    *zap.Logger
}

func NewOrchestrator(router Router, tools Tools, ledger Ledger, cfg Settings, opts OrchestratorOptions) *Orchestrator {
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	if opts.Cleaner == nil {
		opts.Cleaner = MarkerCleaner{}
	}
	if opts.CleanupMode == "" {
		opts.CleanupMode = CleanupAlways
	}
	return &Orchestrator{
		router:    router,
		tools:     tools,
		ledger:    ledger,
		settings:  cfg,
		cleaner:   opts.Cleaner,
		mode:      opts.CleanupMode,
		maxRounds: opts.MaxToolRounds,
		logger:    logging.OrNop(opts.Logger),
	}
}

// Run executes the turn. The caller settles token quota with the totals in
// the returned Outcome.
func (o *Orchestrator) Run(ctx context.Context, turn *Turn, obs Observer) Outcome {
	log := o.logger.With(zap.String("turn_id", turn.ID), zap.Int64("user_id", turn.UserID))

	provider, err := o.router.Route(ctx)
	if err != nil {
		log.Error("no provider for turn", zap.Error(err))
		return Outcome{Status: StatusUnavailable, Answer: AnswerUnavailable, Err: err}
	}

	var (
		out       = Outcome{Provider: provider.Name()}
		reasoning []string
		messages  = append([]llm.Message(nil), turn.Messages...)
		defs      = o.tools.Definitions(turn.WebSearch)
	)

	for round := 1; round <= o.maxRounds; round++ {
		cfg := o.settings.Provider(ctx, provider.Name())
		model := provider.Model(turn.DeepThink)
		if turn.DeepThink && cfg.ReasonerModel != "" {
			model = cfg.ReasonerModel
		} else if !turn.DeepThink && cfg.Model != "" {
			model = cfg.Model
		}
		out.Model = model

		req := llm.ChatRequest{
			Model:       model,
			Messages:    messages,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Tools:       defs,
		}
		if turn.DeepThink && provider.ThinkingFlag() {
			enabled := true
			req.EnableThinking = &enabled
		}

		out.Rounds = round
		resp, err := provider.ChatCompletion(ctx, req)
		if err != nil {
			return o.fail(log, out, reasoning, err)
		}

		out.InputTokens += int64(resp.Usage.PromptTokens)
		out.OutputTokens += int64(resp.Usage.CompletionTokens)
		msg := resp.Choices[0].Message

		if turn.DeepThink {
			if text := strings.TrimSpace(msg.ReasoningContent); text != "" {
				tagged := fmt.Sprintf("=== Round %d reasoning ===\n%s", round, truncateRunes(text, reasoningBudget))
				reasoning = append(reasoning, tagged)
				if obs != nil {
					obs.OnReasoning(round, tagged)
				}
			}
		}

		if len(msg.ToolCalls) == 0 {
			answer := msg.Content
			if o.mode.applies(round - 1) {
				answer = o.cleaner.Clean(answer)
			}
			out.Status = StatusAnswered
			out.Answer = answer
			out.Reasoning = strings.Join(reasoning, "\n\n")
			log.Info("turn answered",
				zap.Int("rounds", round),
				zap.Int64("input_tokens", out.InputTokens),
				zap.Int64("output_tokens", out.OutputTokens))
			return out
		}

		messages = append(messages, llm.Message{
			Role:             llm.RoleAssistant,
			Content:          msg.Content,
			ReasoningContent: llm.StringPtr(msg.ReasoningContent),
			ToolCalls:        msg.ToolCalls,
		})
		for _, call := range msg.ToolCalls {
			text := o.dispatch(ctx, log, turn, call.Function.Name, call.Function.Arguments, &out)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    text,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
			})
		}
		log.Debug("tool round finished", zap.Int("round", round), zap.Int("calls", len(msg.ToolCalls)))
	}

	log.Warn("tool round cap reached", zap.Int("max_rounds", o.maxRounds))
	out.Status = StatusRoundCap
	out.Answer = AnswerTooManyRounds
	out.Reasoning = strings.Join(reasoning, "\n\n")
	return out
}

// dispatch runs one tool invocation and returns the text fed back to the model.
func (o *Orchestrator) dispatch(ctx context.Context, log *zap.Logger, turn *Turn, name, args string, out *Outcome) string {
	out.ToolUses++
	if !o.tools.IsSearch(name) {
		return o.tools.Execute(ctx, name, args)
	}
	if !turn.WebSearch {
		return ToolSearchDisabled
	}

	ok, err := o.ledger.DebitSearch(ctx, turn.UserID)
	if err != nil {
		log.Error("search debit failed", zap.Error(err))
		return ToolSearchExhausted
	}
	if !ok {
		log.Info("search quota exhausted")
		return ToolSearchExhausted
	}
	out.SearchUses++

	res := o.tools.ExecuteSearch(ctx, name, args)
	out.Citations = appendCitations(out.Citations, res.Citations)
	return res.Text
}

func (o *Orchestrator) fail(log *zap.Logger, out Outcome, reasoning []string, err error) Outcome {
	out.Reasoning = strings.Join(reasoning, "\n\n")
	out.Err = err

	var perr *llm.ProviderError
	switch {
	case errors.As(err, &perr):
		log.Error("provider returned error", zap.Int("status", perr.StatusCode), zap.Error(err))
		out.Status = StatusProviderError
		out.Answer = ""
	case errors.Is(err, llm.ErrMalformedResponse):
		log.Error("malformed provider response", zap.Error(err))
		out.Status = StatusMalformed
		out.Answer = AnswerTooManyRounds
	default:
		log.Error("provider unavailable", zap.Error(err))
		out.Status = StatusUnavailable
		out.Answer = AnswerUnavailable
	}
	return out
}

func appendCitations(dst, src []tool.Citation) []tool.Citation {
	for _, c := range src {
		dup := false
		for _, have := range dst {
			if have.URL == c.URL {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, c)
		}
	}
	return dst
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
