package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/Bezhuang/my-little-app/internal/api"
	"github.com/Bezhuang/my-little-app/internal/api/handlers"
	"github.com/Bezhuang/my-little-app/internal/api/stream"
	"github.com/Bezhuang/my-little-app/internal/domain/chat"
	"github.com/Bezhuang/my-little-app/internal/domain/quota"
	"github.com/Bezhuang/my-little-app/internal/domain/tool"
	"github.com/Bezhuang/my-little-app/internal/domain/usage"
	"github.com/Bezhuang/my-little-app/internal/infra/config"
	"github.com/Bezhuang/my-little-app/internal/infra/eventbus"
	"github.com/Bezhuang/my-little-app/internal/infra/llm"
	"github.com/Bezhuang/my-little-app/internal/infra/logging"
	"github.com/Bezhuang/my-little-app/internal/infra/search"
	"github.com/Bezhuang/my-little-app/internal/infra/settings"
)

// App is the wired service graph shared by `serve` and `mcp`.
type App struct {
	Settings  *settings.Store
	Ledger    *quota.Ledger
	Tools     *tool.Registry
	Providers *llm.Router
	Chat      *chat.Service
	Usage     *usage.Recorder
	Bus       *eventbus.Bus
	Handler   http.Handler

	logger *zap.Logger
}

// NewApp wires every component on top of a migrated database. The settings
// seed file, when configured, is applied before anything reads ai_config.
func NewApp(ctx context.Context, db *sql.DB, cfg config.Config, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)

	store, err := settings.NewStore(db, cfg.SettingsCacheTTL, logger.Named("settings"))
	if err != nil {
		return nil, err
	}
	seed, err := config.LoadSeed(cfg.SettingsFile)
	if err != nil {
		return nil, err
	}
	if n, err := store.SeedDefaults(ctx, seed.Settings); err != nil {
		return nil, err
	} else if n > 0 {
		logger.Info("settings seeded", zap.Int("inserted", n), zap.String("file", cfg.SettingsFile))
	}

	mode, err := chat.ParseCleanupMode(cfg.CleanupMode)
	if err != nil {
		return nil, err
	}

	searcher := search.NewBochaClient("", func(ctx context.Context) (string, bool) {
		s := store.Search(ctx)
		return s.APIKey, s.Enabled
	})
	registry, err := tool.NewDefaultRegistry(searcher, logger.Named("tool"))
	if err != nil {
		return nil, fmt.Errorf("server: register tools: %w", err)
	}

	providers := llm.NewRouter(store.ProviderEnabled)
	for _, name := range settings.Providers() {
		providers.Register(newProviderClient(ctx, store, name, cfg, logger))
	}

	ledger := quota.NewLedger(db, quota.DefaultPolicy(), logger.Named("quota"))
	bus := eventbus.New(logger.Named("eventbus"))

	orch := chat.NewOrchestrator(providers, registry, ledger, store, chat.OrchestratorOptions{
		MaxToolRounds: cfg.MaxToolRounds,
		CleanupMode:   mode,
		Logger:        logger.Named("orchestrator"),
	})
	svc := chat.NewService(orch, ledger, store, chat.ServiceOptions{
		MaxConversationRounds: cfg.MaxConversationRounds,
		Bus:                   bus,
		Logger:                logger.Named("chat"),
	})
	recorder := usage.NewRecorder(db, logger.Named("usage"))

	account := llm.NewDeepSeekAccount(func(ctx context.Context) string {
		return store.APIKey(ctx, settings.ProviderDeepSeek)
	}, nil)

	streamOpts := stream.Options{Heartbeat: cfg.HeartbeatInterval, Timeout: cfg.StreamTimeout}
	router := api.NewRouter(api.Deps{
		Chat:         handlers.NewChatHandler(svc, streamOpts, logger.Named("handlers")),
		Admin:        handlers.NewAdminHandler(ledger, store, recorder, account, logger.Named("admin")),
		AdminKeyHash: cfg.AdminKeyHash,
		Logger:       logger.Named("http"),
	})

	return &App{
		Settings:  store,
		Ledger:    ledger,
		Tools:     registry,
		Providers: providers,
		Chat:      svc,
		Usage:     recorder,
		Bus:       bus,
		Handler:   router,
		logger:    logger,
	}, nil
}

// newProviderClient builds the client for one provider. The base URL and
// model names are read once; the API key is read on every call.
func newProviderClient(ctx context.Context, store *settings.Store, name string, cfg config.Config, logger *zap.Logger) *llm.Client {
	ps := store.Provider(ctx, name)
	return llm.NewClient(llm.Options{
		Name:          name,
		BaseURL:       ps.BaseURL,
		Model:         ps.Model,
		ReasonerModel: ps.ReasonerModel,
		Keys:          func(ctx context.Context) string { return store.APIKey(ctx, name) },
		ThinkingFlag:  name == settings.ProviderSiliconFlow,
		Timeout:       cfg.ProviderTimeout,
		Logger:        logger.Named("llm"),
	})
}

// Start launches the background consumers. They stop when ctx is cancelled
// or Close is called.
func (a *App) Start(ctx context.Context) {
	go a.Usage.Start(ctx, a.Bus)
}

// Close stops event delivery.
func (a *App) Close() {
	a.Bus.Close()
}
