// Package sqlite opens the littleapp SQLite database and applies its schema.
// Uses modernc.org/sqlite, a pure-Go driver (no CGO).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(ON)",
	"busy_timeout(5000)", // quota debits from concurrent streams wait instead of failing
	"synchronous(NORMAL)",
	"cache_size(-16000)",
	"temp_store(MEMORY)",
}

// NewDB opens (or creates) the database at path. The parent directory must
// already exist. ":memory:" is accepted but only sees a single connection's
// database, so tests use temp files instead.
func NewDB(path string) (*sql.DB, error) {
	return NewDBContext(context.Background(), path)
}

// NewDBContext is NewDB with a context bounding the initial ping.
func NewDBContext(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, fmt.Errorf("sqlite.NewDB: parent directory %q does not exist", dir)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite.NewDB: open %q: %w", path, err)
	}

	// WAL lets readers proceed while one writer holds the lock.
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.NewDB: ping %q: %w", path, err)
	}
	return db, nil
}

func dsn(path string) string {
	parts := make([]string, 0, len(pragmas))
	for _, p := range pragmas {
		parts = append(parts, "_pragma="+p)
	}
	return path + "?" + strings.Join(parts, "&")
}
