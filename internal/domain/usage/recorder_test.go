package usage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bezhuang/my-little-app/internal/domain/chat"
	"github.com/Bezhuang/my-little-app/internal/domain/usage"
	"github.com/Bezhuang/my-little-app/internal/infra/eventbus"
	"github.com/Bezhuang/my-little-app/internal/infra/sqlite"
)

func newRecorder(t *testing.T) *usage.Recorder {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "usage.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.MigrateUp(db))
	return usage.NewRecorder(db, nil)
}

func turnAt(id string, userID int64, at time.Time) chat.TurnCompleted {
	return chat.TurnCompleted{
		TurnID:       id,
		UserID:       userID,
		Provider:     "deepseek",
		Model:        "deepseek-chat",
		Status:       chat.StatusAnswered,
		Rounds:       2,
		ToolUses:     1,
		SearchUses:   1,
		InputTokens:  120,
		OutputTokens: 30,
		Debited:      true,
		Duration:     1500 * time.Millisecond,
		CompletedAt:  at,
	}
}

func TestRecorder_RecordAndList(t *testing.T) {
	t.Parallel()
	r := newRecorder(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, r.Record(ctx, turnAt("t1", 7, base)))
	require.NoError(t, r.Record(ctx, turnAt("t2", 8, base.Add(time.Minute))))
	require.NoError(t, r.Record(ctx, turnAt("t3", 7, base.Add(2*time.Minute))))
	require.NoError(t, r.Record(ctx, turnAt("t1", 7, base)), "replay is a no-op")

	all, err := r.List(ctx, usage.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "t3", all[0].ID)
	assert.Equal(t, int64(1500), all[0].DurationMS)
	assert.True(t, all[0].Debited)
	assert.Equal(t, string(chat.StatusAnswered), all[0].Status)

	mine, err := r.List(ctx, usage.Filter{UserID: 7, Limit: 1})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "t3", mine[0].ID)
}

func TestRecorder_RejectsMissingID(t *testing.T) {
	t.Parallel()
	r := newRecorder(t)
	err := r.Record(context.Background(), chat.TurnCompleted{})
	assert.ErrorIs(t, err, usage.ErrMissingTurnID)
}

func TestRecorder_StartConsumesBus(t *testing.T) {
	t.Parallel()
	r := newRecorder(t)
	bus := eventbus.New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		r.Start(ctx, bus)
		close(done)
	}()

	// Start subscribes asynchronously; keep publishing until a row lands.
	require.Eventually(t, func() bool {
		bus.Publish(chat.TopicTurnCompleted, turnAt("bus-1", 9, time.Now()))
		rows, err := r.List(context.Background(), usage.Filter{UserID: 9})
		return err == nil && len(rows) == 1
	}, 2*time.Second, 20*time.Millisecond)

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after the bus closed")
	}
}
