package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/domain/quota"
	"github.com/Bezhuang/my-little-app/internal/domain/tool"
	"github.com/Bezhuang/my-little-app/internal/infra/eventbus"
	"github.com/Bezhuang/my-little-app/internal/infra/llm"
	"github.com/Bezhuang/my-little-app/internal/infra/logging"
)

const (
	DefaultMaxConversationRounds = 10

	// TopicTurnCompleted carries a TurnCompleted after every executed turn.
	TopicTurnCompleted = "chat.turn.completed"
)

var ErrEmptyConversation = errors.New("chat: messages must contain at least one user message")

// InboundMessage is one client-supplied history entry.
type InboundMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the inbound chat request.
type Request struct {
	Messages        []InboundMessage `json:"messages"`
	EnableDeepThink bool             `json:"enableDeepThink"`
	EnableWebSearch bool             `json:"enableWebSearch"`
}

type RejectReason string

const (
	RejectTurnCap RejectReason = "turn_cap"
	RejectQuota   RejectReason = "quota"
)

// Rejection is a pre-flight policy refusal. No provider call was made.
type Rejection struct {
	Reason  RejectReason
	Message string
}

// Result is a settled turn.
type Result struct {
	Outcome Outcome
	Debited bool
	Quota   quota.Record
	// Warning is the post-turn policy notice, empty when none applies.
	Warning string
}

// TurnCompleted is published on TopicTurnCompleted.
type TurnCompleted struct {
	TurnID       string
	UserID       int64
	Provider     string
	Model        string
	Status       Status
	Streamed     bool
	Rounds       int
	ToolUses     int
	SearchUses   int
	InputTokens  int64
	OutputTokens int64
	Debited      bool
	Duration     time.Duration
	CompletedAt  time.Time
}

type ServiceOptions struct {
	MaxConversationRounds int
	Bus                   eventbus.EventBus
	Now                   func() time.Time
	Logger                *zap.Logger
}

// Service wraps the Orchestrator with pre-flight checks and quota settlement.
type Service struct {
	orch     *Orchestrator
	ledger   Ledger
	settings Settings
	maxTurns int
	bus      eventbus.EventBus
	now      func() time.Time
	logger   *zap.Logger
}

func NewService(orch *Orchestrator, ledger Ledger, cfg Settings, opts ServiceOptions) *Service {
	if opts.MaxConversationRounds <= 0 {
		opts.MaxConversationRounds = DefaultMaxConversationRounds
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		orch:     orch,
		ledger:   ledger,
		settings: cfg,
		maxTurns: opts.MaxConversationRounds,
		bus:      opts.Bus,
		now:      opts.Now,
		logger:   logging.OrNop(opts.Logger),
	}
}

// Prepare validates the request and applies the conversation cap and the
// quota precheck. Exactly one of *Turn and *Rejection is non-nil on success.
func (s *Service) Prepare(ctx context.Context, userID int64, req Request) (*Turn, *Rejection, error) {
	history := make([]llm.Message, 0, len(req.Messages)+1)
	userTurns := 0
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleUser:
			userTurns++
		case llm.RoleAssistant:
		default:
			continue
		}
		history = append(history, llm.Message{Role: m.Role, Content: m.Content})
	}
	if userTurns == 0 {
		return nil, nil, ErrEmptyConversation
	}

	if userTurns >= s.maxTurns {
		s.logger.Info("conversation cap reached", zap.Int64("user_id", userID), zap.Int("user_messages", userTurns))
		return nil, &Rejection{Reason: RejectTurnCap, Message: fmt.Sprintf(WarningTurnCapFormat, s.maxTurns)}, nil
	}

	warning, err := s.ledger.WarningFor(ctx, userID, req.EnableWebSearch)
	if err != nil {
		return nil, nil, err
	}
	if warning != "" {
		s.logger.Info("quota precheck refused turn", zap.Int64("user_id", userID))
		return nil, &Rejection{Reason: RejectQuota, Message: warning}, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("chat: turn id: %w", err)
	}
	system := llm.Message{Role: llm.RoleSystem, Content: s.systemPrompt(ctx, req.EnableWebSearch)}
	return &Turn{
		ID:        id.String(),
		UserID:    userID,
		Messages:  append([]llm.Message{system}, history...),
		DeepThink: req.EnableDeepThink,
		WebSearch: req.EnableWebSearch,
		StartedAt: s.now(),
	}, nil, nil
}

func (s *Service) systemPrompt(ctx context.Context, webSearch bool) string {
	prompt := strings.TrimSpace(s.settings.SystemPrompt(ctx))
	return prompt + "\n\n" + tool.PromptHint(webSearch)
}

// Execute runs the turn and settles token quota once. Service failures are
// not debited. The returned error is reserved for ledger failures.
func (s *Service) Execute(ctx context.Context, turn *Turn, obs Observer) (*Result, error) {
	out := s.orch.Run(ctx, turn, obs)
	res := &Result{Outcome: out}
	log := s.logger.With(zap.String("turn_id", turn.ID), zap.Int64("user_id", turn.UserID))

	if !out.ServiceFailure() {
		ok, err := s.ledger.DebitTokens(ctx, turn.UserID, out.InputTokens, out.OutputTokens)
		if err != nil {
			return nil, err
		}
		res.Debited = ok
		if !ok {
			log.Warn("token debit refused", zap.Int64("input_tokens", out.InputTokens), zap.Int64("output_tokens", out.OutputTokens))
			res.Warning = WarningDebitFailed
		}
	}

	rec, err := s.ledger.GetOrCreate(ctx, turn.UserID)
	if err != nil {
		return nil, err
	}
	res.Quota = *rec
	if res.Warning == "" && !out.ServiceFailure() {
		w, err := s.ledger.WarningFor(ctx, turn.UserID, turn.WebSearch)
		if err != nil {
			return nil, err
		}
		res.Warning = w
	}

	s.publish(turn, res)
	return res, nil
}

func (s *Service) publish(turn *Turn, res *Result) {
	if s.bus == nil {
		return
	}
	now := s.now()
	s.bus.Publish(TopicTurnCompleted, TurnCompleted{
		TurnID:       turn.ID,
		UserID:       turn.UserID,
		Provider:     res.Outcome.Provider,
		Model:        res.Outcome.Model,
		Status:       res.Outcome.Status,
		Streamed:     turn.Streamed,
		Rounds:       res.Outcome.Rounds,
		ToolUses:     res.Outcome.ToolUses,
		SearchUses:   res.Outcome.SearchUses,
		InputTokens:  res.Outcome.InputTokens,
		OutputTokens: res.Outcome.OutputTokens,
		Debited:      res.Debited,
		Duration:     now.Sub(turn.StartedAt),
		CompletedAt:  now,
	})
}

// Quota returns the caller's current balance.
func (s *Service) Quota(ctx context.Context, userID int64) (*quota.Record, error) {
	return s.ledger.GetOrCreate(ctx, userID)
}
