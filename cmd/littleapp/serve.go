package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/infra/config"
	"github.com/Bezhuang/my-little-app/internal/infra/logging"
	"github.com/Bezhuang/my-little-app/internal/infra/sqlite"
	"github.com/Bezhuang/my-little-app/internal/server"
)

const shutdownTimeout = 30 * time.Second

func runServe(args []string, out io.Writer) int {
	cfg := config.Load()
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&cfg.Host, "host", cfg.Host, "listen host")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "listen port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err) //nolint:errcheck
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.DBPath)
	if err != nil {
		logger.Error("open database", zap.Error(err))
		return 1
	}

	app, err := server.NewApp(ctx, db, cfg, logger)
	if err != nil {
		db.Close()
		logger.Error("wire application", zap.Error(err))
		return 1
	}
	app.Start(ctx)
	defer app.Close()

	srvCfg := server.DefaultConfig()
	srvCfg.Host, srvCfg.Port = cfg.Host, cfg.Port
	if floor := cfg.StreamTimeout + time.Minute; srvCfg.WriteTimeout < floor {
		srvCfg.WriteTimeout = floor
	}
	srv := server.NewServer(db, app.Handler, srvCfg, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", zap.Error(err))
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
		return 1
	}
	return 0
}

// openDatabase creates the parent directory, opens the database and applies
// pending migrations.
func openDatabase(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sqlite.NewDBContext(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := sqlite.MigrateUpContext(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
