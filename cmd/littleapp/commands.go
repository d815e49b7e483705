package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/infra/config"
	"github.com/Bezhuang/my-little-app/internal/infra/logging"
	"github.com/Bezhuang/my-little-app/internal/infra/sqlite"
	"github.com/Bezhuang/my-little-app/internal/mcpserver"
	"github.com/Bezhuang/my-little-app/internal/server"
	pkgauth "github.com/Bezhuang/my-little-app/pkg/auth"
)

func runMigrate(args []string, out io.Writer) int {
	cfg := config.Load()
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	db, err := openDatabase(context.Background(), cfg.DBPath)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err) //nolint:errcheck
		return 1
	}
	defer db.Close()

	v, err := sqlite.MigrationVersion(db)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err) //nolint:errcheck
		return 1
	}
	fmt.Fprintf(out, "database %s at schema version %d\n", cfg.DBPath, v) //nolint:errcheck
	return 0
}

// runMCP serves the tool registry over stdio. stdout carries the protocol,
// so logs go to stderr only.
func runMCP(args []string, out io.Writer) int {
	cfg := config.Load()
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	includeSearch := fs.Bool("search", false, "expose web_search (not metered)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err) //nolint:errcheck
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
	defer db.Close()

	app, err := server.NewApp(ctx, db, cfg, logger)
	if err != nil {
		logger.Error("wire application", zap.Error(err))
		return 1
	}
	defer app.Close()

	err = mcpserver.ServeStdio(ctx, app.Tools, mcpserver.Options{IncludeSearch: *includeSearch, Logger: logger.Named("mcp")})
	if err != nil && ctx.Err() == nil {
		logger.Error("mcp server stopped", zap.Error(err))
		return 1
	}
	return 0
}

func runToken(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	userID := fs.Int64("user", 0, "user id (required)")
	name := fs.String("name", "", "username stored as the token subject")
	role := fs.String("role", "", "optional role claim")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *userID <= 0 {
		fmt.Fprintln(out, "error: --user must be a positive id") //nolint:errcheck
		return 2
	}

	token, err := pkgauth.GenerateJWT(*userID, *name, *role)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err) //nolint:errcheck
		return 1
	}
	fmt.Fprintln(out, token) //nolint:errcheck
	return 0
}

func runHashKey(args []string, out io.Writer) int {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(out, "usage: littleapp hash-key <admin-key>") //nolint:errcheck
		return 2
	}
	hash, err := pkgauth.HashSecret(args[0])
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err) //nolint:errcheck
		return 1
	}
	fmt.Fprintln(out, hash) //nolint:errcheck
	return 0
}
