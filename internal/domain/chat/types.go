// Package chat runs one conversational turn against the language model:
// the bounded tool-calling round loop (Orchestrator) and the caller-side
// pre-flight checks and quota settlement around it (Service).
package chat

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/Bezhuang/my-little-app/internal/domain/quota"
	"github.com/Bezhuang/my-little-app/internal/domain/tool"
	"github.com/Bezhuang/my-little-app/internal/infra/llm"
	"github.com/Bezhuang/my-little-app/internal/infra/settings"
)

// Status tags how a turn ended.
type Status string

const (
	StatusAnswered      Status = "answered"
	StatusRoundCap      Status = "round_cap"
	StatusMalformed     Status = "malformed"
	StatusUnavailable   Status = "unavailable"
	StatusProviderError Status = "provider_error"
)

// Texts delivered in place of a model answer or a tool result.
const (
	AnswerUnavailable    = "The service is temporarily unavailable. Please try again later."
	AnswerTooManyRounds  = "Too many tool calls. Please try again."
	ToolSearchExhausted  = "Your web searches are used up. Please contact the administrator to top up."
	ToolSearchDisabled   = "Web search is not enabled for this conversation."
	WarningDebitFailed   = "Token budget insufficient. Please contact the administrator to top up."
	WarningTurnCapFormat = "This conversation has reached the %d-message limit. Please start a new conversation."
)

// Outcome is the terminal state of the round loop.
type Outcome struct {
	Status    Status
	Answer    string
	Reasoning string
	Citations []tool.Citation

	InputTokens  int64
	OutputTokens int64
	Rounds       int
	ToolUses     int
	SearchUses   int

	Provider string
	Model    string
	// Err is the provider failure behind StatusUnavailable, StatusProviderError
	// and StatusMalformed.
	Err error
}

// Degraded reports whether the turn ended without a genuine model answer but
// still produced text for the user.
func (o Outcome) Degraded() bool {
	return o.Status == StatusRoundCap || o.Status == StatusMalformed
}

// ServiceFailure reports whether the provider could not serve the turn.
func (o Outcome) ServiceFailure() bool {
	return o.Status == StatusUnavailable || o.Status == StatusProviderError
}

// Turn is a validated request ready for the round loop.
type Turn struct {
	ID        string
	UserID    int64
	Messages  []llm.Message
	DeepThink bool
	WebSearch bool
	Streamed  bool
	StartedAt time.Time
}

// Observer receives progress from the round loop as it happens.
type Observer interface {
	OnReasoning(round int, text string)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(round int, text string)

func (f ObserverFunc) OnReasoning(round int, text string) { f(round, text) }

// Router selects the provider for a turn.
type Router interface {
	Route(ctx context.Context) (llm.Completer, error)
}

// Tools is the tool executor as seen by the round loop.
type Tools interface {
	Definitions(includeSearch bool) []openai.Tool
	IsSearch(name string) bool
	Execute(ctx context.Context, name, argsJSON string) string
	ExecuteSearch(ctx context.Context, name, argsJSON string) tool.Result
}

// Ledger is the slice of the quota ledger a turn needs.
type Ledger interface {
	GetOrCreate(ctx context.Context, userID int64) (*quota.Record, error)
	DebitTokens(ctx context.Context, userID, input, output int64) (bool, error)
	DebitSearch(ctx context.Context, userID int64) (bool, error)
	WarningFor(ctx context.Context, userID int64, checkSearch bool) (string, error)
}

// Settings is the configuration read on every round.
type Settings interface {
	Provider(ctx context.Context, name string) settings.ProviderSettings
	SystemPrompt(ctx context.Context) string
}
