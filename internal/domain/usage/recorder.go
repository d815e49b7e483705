// Package usage keeps a per-turn audit log of chat traffic in chat_turn_log.
// Rows are written from the event bus, so logging never delays a reply.
package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/domain/chat"
	"github.com/Bezhuang/my-little-app/internal/infra/eventbus"
	"github.com/Bezhuang/my-little-app/internal/infra/logging"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

var ErrMissingTurnID = errors.New("usage: turn id is required")

// Entry is one logged turn.
type Entry struct {
	ID           string    `json:"id"`
	UserID       int64     `json:"userId"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Status       string    `json:"status"`
	Streamed     bool      `json:"streamed"`
	Rounds       int       `json:"rounds"`
	ToolUses     int       `json:"toolUses"`
	SearchUses   int       `json:"searchUses"`
	InputTokens  int64     `json:"inputTokens"`
	OutputTokens int64     `json:"outputTokens"`
	Debited      bool      `json:"debited"`
	DurationMS   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Filter narrows List. A zero UserID lists every user.
type Filter struct {
	UserID int64
	Limit  int
}

type Recorder struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewRecorder(db *sql.DB, logger *zap.Logger) *Recorder {
	return &Recorder{db: db, logger: logging.OrNop(logger)}
}

// Start consumes chat.TopicTurnCompleted until ctx is cancelled or the bus is
// closed. Run it in its own goroutine.
func (r *Recorder) Start(ctx context.Context, bus eventbus.EventBus) {
	ch := bus.Subscribe(chat.TopicTurnCompleted)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			tc, ok := evt.Payload.(chat.TurnCompleted)
			if !ok {
				continue
			}
			if err := r.Record(ctx, tc); err != nil {
				r.logger.Error("record turn failed", zap.String("turn_id", tc.TurnID), zap.Error(err))
			}
		}
	}
}

// Record inserts one turn. Replaying the same turn id is a no-op.
func (r *Recorder) Record(ctx context.Context, tc chat.TurnCompleted) error {
	if tc.TurnID == "" {
		return ErrMissingTurnID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chat_turn_log (
			id, user_id, provider, model, status, streamed, rounds, tool_uses,
			search_uses, input_tokens, output_tokens, debited, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, tc.TurnID, tc.UserID, tc.Provider, tc.Model, string(tc.Status), tc.Streamed, tc.Rounds, tc.ToolUses,
		tc.SearchUses, tc.InputTokens, tc.OutputTokens, tc.Debited, tc.Duration.Milliseconds(), tc.CompletedAt.UTC())
	if err != nil {
		return fmt.Errorf("usage: insert turn: %w", err)
	}
	return nil
}

// List returns the most recent turns first.
func (r *Recorder) List(ctx context.Context, f Filter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	query := `
		SELECT id, user_id, provider, model, status, streamed, rounds, tool_uses,
			search_uses, input_tokens, output_tokens, debited, duration_ms, created_at
		FROM chat_turn_log`
	args := []any{}
	if f.UserID != 0 {
		query += ` WHERE user_id = ?`
		args = append(args, f.UserID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("usage: list turns: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Provider, &e.Model, &e.Status, &e.Streamed, &e.Rounds,
			&e.ToolUses, &e.SearchUses, &e.InputTokens, &e.OutputTokens, &e.Debited, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("usage: scan turn: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
