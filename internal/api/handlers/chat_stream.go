package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/api/stream"
	"github.com/Bezhuang/my-little-app/internal/domain/chat"
	"github.com/Bezhuang/my-little-app/internal/domain/tool"
)

type reasoningEvent struct {
	Reasoning string `json:"reasoning"`
}

type tokenEvent struct {
	Token string `json:"token"`
}

type quotaEvent struct {
	Quota quotaResponse `json:"quota"`
}

type warningEvent struct {
	Warning string `json:"warning"`
	Kind    string `json:"kind"`
}

type searchLinksEvent struct {
	SearchLinks []tool.Citation `json:"searchLinks"`
}

// Stream handles POST /api/v1/chat/stream. The turn runs on its own
// goroutine detached from the request context; the handler returns once the
// stream is finalized or the client goes away.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(w, r)
	if !ok {
		return
	}

	turn, ok := h.prepare(w, r, userID, func(rej *chat.Rejection) {
		t, err := stream.New(w, h.stream, h.logger)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := t.Send(stream.EventWarning, warningEvent{Warning: rej.Message, Kind: stream.KindPolicy}); err != nil {
			h.logger.Debug("warning not delivered", zap.Error(err))
		}
		t.Complete()
	})
	if !ok {
		return
	}

	tr, err := stream.New(w, h.stream, h.logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := tr.Start(); err != nil {
		h.logger.Debug("stream start failed", zap.String("turn_id", turn.ID), zap.Error(err))
		tr.Abort()
		return
	}
	turn.Streamed = true

	go h.runStream(context.WithoutCancel(r.Context()), tr, turn)

	select {
	case <-tr.Done():
	case <-r.Context().Done():
		if tr.Abort() {
			h.logger.Info("client disconnected", zap.String("turn_id", turn.ID))
		}
	}
}

// runStream executes the turn and emits its result. Every send is best
// effort: after finalization (timeout, disconnect) sends are dropped while
// the turn still settles its quota.
func (h *ChatHandler) runStream(ctx context.Context, tr *stream.Transport, turn *chat.Turn) {
	log := h.logger.With(zap.String("turn_id", turn.ID))
	send := func(ev stream.Event, payload any) {
		if err := tr.Send(ev, payload); err != nil && !errors.Is(err, stream.ErrFinalized) {
			log.Debug("event not delivered", zap.String("event", string(ev)), zap.Error(err))
		}
	}

	obs := chat.ObserverFunc(func(_ int, text string) {
		send(stream.EventReasoning, reasoningEvent{Reasoning: text})
	})
	res, err := h.service.Execute(ctx, turn, obs)
	if err != nil {
		log.Error("settle turn", zap.Error(err))
		tr.Fail(stream.ErrorPayload{Error: chat.AnswerUnavailable, Kind: stream.KindService})
		return
	}

	out := res.Outcome
	if out.ServiceFailure() {
		tr.Fail(stream.ErrorPayload{Error: serviceMessage(out), Kind: stream.KindService})
		return
	}

	send(stream.EventToken, tokenEvent{Token: out.Answer})
	send(stream.EventQuota, quotaEvent{Quota: quotaResponse{
		TokensRemaining: res.Quota.TokensRemaining,
		SearchRemaining: res.Quota.SearchRemaining,
	}})
	if out.Status == chat.StatusRoundCap {
		send(stream.EventWarning, warningEvent{Warning: chat.AnswerTooManyRounds, Kind: stream.KindPolicy})
	}
	if res.Warning != "" {
		send(stream.EventWarning, warningEvent{Warning: res.Warning, Kind: stream.KindPolicy})
	}
	if len(out.Citations) > 0 {
		send(stream.EventSearchLinks, searchLinksEvent{SearchLinks: out.Citations})
	}
	tr.Complete()
}
