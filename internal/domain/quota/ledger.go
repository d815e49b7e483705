// Package quota is the per-user ledger of remaining output tokens and web
// searches. Debits are single conditional UPDATE statements, so two
// concurrent turns for the same user can never both pass the sufficiency
// check against a stale balance.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/infra/logging"
)

var (
	ErrInvalidUserID = errors.New("quota: invalid user id")
	ErrNegativeDebit = errors.New("quota: debit amounts must be non-negative")
)

// Record is a user's current balance.
type Record struct {
	UserID          int64     `json:"userId"`
	TokensRemaining int64     `json:"tokensRemaining"`
	SearchRemaining int64     `json:"searchRemaining"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Allotment is the balance a new record starts with.
type Allotment struct {
	Tokens int64
	Search int64
}

// Policy decides the starting allotment for a user.
type Policy struct {
	Standard Allotment
	Elevated Allotment
	// Users with ids in [ElevatedMin, ElevatedMax] get the elevated allotment.
	ElevatedMin int64
	ElevatedMax int64
}

// DefaultPolicy: standard users get 10k tokens and 3 searches; the reserved
// administrator ids 1..4 get a hundred times more.
func DefaultPolicy() Policy {
	return Policy{
		Standard:    Allotment{Tokens: 10_000, Search: 3},
		Elevated:    Allotment{Tokens: 1_000_000, Search: 100},
		ElevatedMin: 1,
		ElevatedMax: 4,
	}
}

func (p Policy) allotmentFor(userID int64) Allotment {
	if userID >= p.ElevatedMin && userID <= p.ElevatedMax {
		return p.Elevated
	}
	return p.Standard
}

// Ledger owns the api_usage table.
type Ledger struct {
	db     *sql.DB
	policy Policy
	now    func() time.Time
	logger *zap.Logger
}

func NewLedger(db *sql.DB, policy Policy, logger *zap.Logger) *Ledger {
	return &Ledger{db: db, policy: policy, now: time.Now, logger: logging.OrNop(logger)}
}

// GetOrCreate returns the user's record, materializing the default allotment
// on first access. This is the only path that creates records.
func (l *Ledger) GetOrCreate(ctx context.Context, userID int64) (*Record, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}
	if err := l.ensure(ctx, userID); err != nil {
		return nil, err
	}
	return l.get(ctx, userID)
}

// DebitTokens subtracts input+output from the token balance. It returns false
// and leaves the balance untouched when the balance is insufficient.
func (l *Ledger) DebitTokens(ctx context.Context, userID, input, output int64) (bool, error) {
	if input < 0 || output < 0 {
		return false, ErrNegativeDebit
	}
	amount := input + output
	if amount == 0 {
		if _, err := l.GetOrCreate(ctx, userID); err != nil {
			return false, err
		}
		return true, nil
	}
	ok, err := l.conditionalDebit(ctx, userID, "tokens_remaining", amount)
	if err != nil {
		return false, fmt.Errorf("quota: debit tokens: %w", err)
	}
	if !ok {
		l.logger.Info("token debit refused", zap.Int64("user_id", userID), zap.Int64("amount", amount))
	}
	return ok, nil
}

// DebitSearch consumes one web search. It returns false when none remain.
func (l *Ledger) DebitSearch(ctx context.Context, userID int64) (bool, error) {
	ok, err := l.conditionalDebit(ctx, userID, "search_remaining", 1)
	if err != nil {
		return false, fmt.Errorf("quota: debit search: %w", err)
	}
	return ok, nil
}

// conditionalDebit decrements column by amount only if the row still holds
// at least amount. column is one of two fixed identifiers, never user input.
func (l *Ledger) conditionalDebit(ctx context.Context, userID int64, column string, amount int64) (bool, error) {
	if userID <= 0 {
		return false, ErrInvalidUserID
	}
	if err := l.ensure(ctx, userID); err != nil {
		return false, err
	}
	res, err := l.db.ExecContext(ctx,
		"UPDATE api_usage SET "+column+" = "+column+" - ?, updated_at = ? WHERE user_id = ? AND "+column+" >= ?",
		amount, l.now().UTC(), userID, amount,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// WarningFor describes what is exhausted, or returns "" when the user can
// proceed. Search exhaustion is only reported when checkSearch is set.
func (l *Ledger) WarningFor(ctx context.Context, userID int64, checkSearch bool) (string, error) {
	rec, err := l.GetOrCreate(ctx, userID)
	if err != nil {
		return "", err
	}
	return warningText(rec, checkSearch), nil
}

func warningText(rec *Record, checkSearch bool) string {
	var parts []string
	if rec.TokensRemaining <= 0 {
		parts = append(parts, "Your token budget is used up")
	}
	if checkSearch && rec.SearchRemaining <= 0 {
		parts = append(parts, "your web searches are used up")
	}
	if len(parts) == 0 {
		return ""
	}
	msg := strings.Join(parts, ", ")
	msg = strings.ToUpper(msg[:1]) + msg[1:]
	return msg + ". Please contact the administrator to top up."
}

// TopUpInput sets absolute balances. Nil fields are left unchanged.
type TopUpInput struct {
	Tokens *int64 `json:"tokensRemaining,omitempty"`
	Search *int64 `json:"searchRemaining,omitempty"`
}

// TopUp is the administrative out-of-band adjustment path.
func (l *Ledger) TopUp(ctx context.Context, userID int64, in TopUpInput) (*Record, error) {
	if (in.Tokens != nil && *in.Tokens < 0) || (in.Search != nil && *in.Search < 0) {
		return nil, ErrNegativeDebit
	}
	if _, err := l.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}
	_, err := l.db.ExecContext(ctx, `
		UPDATE api_usage SET
			tokens_remaining = COALESCE(?, tokens_remaining),
			search_remaining = COALESCE(?, search_remaining),
			updated_at = ?
		WHERE user_id = ?
	`, nullableInt(in.Tokens), nullableInt(in.Search), l.now().UTC(), userID)
	if err != nil {
		return nil, fmt.Errorf("quota: top up: %w", err)
	}
	l.logger.Info("quota topped up", zap.Int64("user_id", userID))
	return l.get(ctx, userID)
}

func nullableInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (l *Ledger) ensure(ctx context.Context, userID int64) error {
	a := l.policy.allotmentFor(userID)
	now := l.now().UTC()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO api_usage (user_id, tokens_remaining, search_remaining, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, a.Tokens, a.Search, now, now)
	if err != nil {
		return fmt.Errorf("quota: create record: %w", err)
	}
	return nil
}

func (l *Ledger) get(ctx context.Context, userID int64) (*Record, error) {
	var r Record
	err := l.db.QueryRowContext(ctx, `
		SELECT user_id, tokens_remaining, search_remaining, created_at, updated_at
		FROM api_usage WHERE user_id = ?
	`, userID).Scan(&r.UserID, &r.TokensRemaining, &r.SearchRemaining, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("quota: load record: %w", err)
	}
	return &r, nil
}
