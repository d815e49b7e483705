// Package settings is the string-keyed AI configuration store backed by the
// ai_config table. Reads go through a small LRU cache whose entries expire
// after a few seconds, so admin edits become visible without a restart.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/infra/logging"
)

var ErrEmptyKey = errors.New("settings: key is required")

const defaultCacheSize = 256

// Entry is one ai_config row.
type Entry struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// cached remembers misses as well as hits so unset keys do not hit the database every round.
type cached struct {
	value    string
	found    bool
	loadedAt time.Time
}

// Store reads and writes ai_config.
type Store struct {
	db     *sql.DB
	cache  *lru.Cache
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// NewStore returns a Store caching lookups for ttl. A zero ttl disables caching.
func NewStore(db *sql.DB, ttl time.Duration, logger *zap.Logger) (*Store, error) {
	cache, err := lru.New(defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("settings: create cache: %w", err)
	}
	return &Store{
		db:     db,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: logging.OrNop(logger),
	}, nil
}

// Get returns the value stored under key. found is false when the key is unset.
func (s *Store) Get(ctx context.Context, key string) (value string, found bool, err error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if s.ttl > 0 {
		if v, ok := s.cache.Get(key); ok {
			c := v.(cached)
			if s.now().Sub(c.loadedAt) < s.ttl {
				return c.value, c.found, nil
			}
		}
	}

	err = s.db.QueryRowContext(ctx,
		"SELECT config_value FROM ai_config WHERE config_key = ?", key,
	).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		value, found = "", false
	case err != nil:
		return "", false, fmt.Errorf("settings: get %q: %w", key, err)
	default:
		found = true
	}

	if s.ttl > 0 {
		s.cache.Add(key, cached{value: value, found: found, loadedAt: s.now()})
	}
	return value, found, nil
}

// Set upserts key and drops its cached value.
func (s *Store) Set(ctx context.Context, key, value, description string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_config (config_key, config_value, description, updated_at)
		VALUES (?, ?, NULLIF(?, ''), ?)
		ON CONFLICT(config_key) DO UPDATE SET
			config_value = excluded.config_value,
			description  = COALESCE(excluded.description, ai_config.description),
			updated_at   = excluded.updated_at
	`, key, value, description, s.now().UTC())
	if err != nil {
		return fmt.Errorf("settings: set %q: %w", key, err)
	}
	s.cache.Remove(key)
	return nil
}

// Entry returns the full row for key, or sql.ErrNoRows when unset.
func (s *Store) Entry(ctx context.Context, key string) (*Entry, error) {
	var (
		e    Entry
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT config_key, config_value, description, updated_at
		FROM ai_config WHERE config_key = ?
	`, key).Scan(&e.Key, &e.Value, &desc, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Description = desc.String
	return &e, nil
}

// SeedDefaults inserts every key of values that is not already present.
// Existing rows are left untouched. Returns the number of rows inserted.
func (s *Store) SeedDefaults(ctx context.Context, values map[string]string) (int, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	inserted := 0
	now := s.now().UTC()
	for _, k := range keys {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO ai_config (config_key, config_value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(config_key) DO NOTHING
		`, k, values[k], now)
		if err != nil {
			return inserted, fmt.Errorf("settings: seed %q: %w", k, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
			s.cache.Remove(k)
		}
	}
	return inserted, nil
}

// Invalidate drops every cached lookup.
func (s *Store) Invalidate() {
	s.cache.Purge()
}

// String returns the value of key, or def when the key is unset, blank or unreadable.
func (s *Store) String(ctx context.Context, key, def string) string {
	v, found, err := s.Get(ctx, key)
	if err != nil {
		s.logger.Warn("settings lookup failed, using default", zap.String("key", key), zap.Error(err))
		return def
	}
	if !found || strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func (s *Store) Float(ctx context.Context, key string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s.String(ctx, key, "")), 64)
	if err != nil {
		return def
	}
	return f
}

func (s *Store) Int(ctx context.Context, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s.String(ctx, key, "")))
	if err != nil {
		return def
	}
	return n
}

// Bool treats "true" (any case) as true and any other set value as false.
func (s *Store) Bool(ctx context.Context, key string, def bool) bool {
	v := strings.TrimSpace(s.String(ctx, key, ""))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true")
}
