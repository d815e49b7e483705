package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/api/stream"
	"github.com/Bezhuang/my-little-app/internal/domain/chat"
	"github.com/Bezhuang/my-little-app/internal/domain/quota"
	"github.com/Bezhuang/my-little-app/internal/domain/tool"
	"github.com/Bezhuang/my-little-app/internal/infra/logging"
)

// ChatService is the slice of chat.Service the handlers drive.
type ChatService interface {
	Prepare(ctx context.Context, userID int64, req chat.Request) (*chat.Turn, *chat.Rejection, error)
	Execute(ctx context.Context, turn *chat.Turn, obs chat.Observer) (*chat.Result, error)
	Quota(ctx context.Context, userID int64) (*quota.Record, error)
}

// ChatHandler serves the synchronous and streaming chat endpoints and the
// caller's quota.
type ChatHandler struct {
	service ChatService
	stream  stream.Options
	logger  *zap.Logger
}

func NewChatHandler(service ChatService, opts stream.Options, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{service: service, stream: opts, logger: logging.OrNop(logger)}
}

type chatResponse struct {
	Success         bool            `json:"success"`
	Response        string          `json:"response"`
	Thinking        string          `json:"thinking"`
	SearchLinks     []tool.Citation `json:"searchLinks"`
	TokensRemaining int64           `json:"tokensRemaining"`
	SearchRemaining int64           `json:"searchRemaining"`
	Warning         string          `json:"warning,omitempty"`
}

type chatFailure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

type quotaResponse struct {
	TokensRemaining int64 `json:"tokensRemaining"`
	SearchRemaining int64 `json:"searchRemaining"`
}

// Chat handles POST /api/v1/chat and answers once the turn has settled.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	turn, ok := h.prepare(w, r, userID, func(rej *chat.Rejection) {
		writeJSON(w, http.StatusOK, chatFailure{Message: rej.Message, Kind: stream.KindPolicy})
	})
	if !ok {
		return
	}

	// A round in flight runs to completion and is settled even if the
	// client hangs up.
	res, err := h.service.Execute(context.WithoutCancel(r.Context()), turn, nil)
	if err != nil {
		h.logger.Error("settle turn", zap.String("turn_id", turn.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, chatFailure{Message: chat.AnswerUnavailable, Kind: stream.KindService})
		return
	}

	out := res.Outcome
	if out.ServiceFailure() {
		writeJSON(w, serviceStatus(out), chatFailure{Message: serviceMessage(out), Kind: stream.KindService})
		return
	}

	links := out.Citations
	if links == nil {
		links = []tool.Citation{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Success:         true,
		Response:        out.Answer,
		Thinking:        out.Reasoning,
		SearchLinks:     links,
		TokensRemaining: res.Quota.TokensRemaining,
		SearchRemaining: res.Quota.SearchRemaining,
		Warning:         res.Warning,
	})
}

// Quota handles GET /api/v1/quota.
func (h *ChatHandler) Quota(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}
	rec, err := h.service.Quota(r.Context(), userID)
	if err != nil {
		h.logger.Error("load quota", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load quota")
		return
	}
	writeJSON(w, http.StatusOK, quotaResponse{
		TokensRemaining: rec.TokensRemaining,
		SearchRemaining: rec.SearchRemaining,
	})
}

// prepare decodes the body and runs the pre-flight checks. It writes every
// response itself except a rejection, which goes to onReject.
func (h *ChatHandler) prepare(w http.ResponseWriter, r *http.Request, userID int64, onReject func(*chat.Rejection)) (*chat.Turn, bool) {
	var req chat.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidBody)
		return nil, false
	}

	turn, rejection, err := h.service.Prepare(r.Context(), userID, req)
	switch {
	case errors.Is(err, chat.ErrEmptyConversation):
		writeError(w, http.StatusBadRequest, "messages must contain at least one user message")
		return nil, false
	case err != nil:
		h.logger.Error("prepare turn", zap.Int64("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "chat failed")
		return nil, false
	case rejection != nil:
		onReject(rejection)
		return nil, false
	}
	return turn, true
}

func serviceStatus(out chat.Outcome) int {
	if out.Status == chat.StatusProviderError {
		return http.StatusBadGateway
	}
	return http.StatusServiceUnavailable
}

// serviceMessage is the text shown for a turn the provider could not serve.
func serviceMessage(out chat.Outcome) string {
	if out.Status == chat.StatusProviderError && out.Err != nil {
		return "AI response failed: " + out.Err.Error()
	}
	if out.Answer != "" {
		return out.Answer
	}
	return chat.AnswerUnavailable
}
