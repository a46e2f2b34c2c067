// Package app wires the store, providers and services into one
// dependency bundle shared by the HTTP, MCP and CLI entry points.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/sprintpilot/internal/config"
	"github.com/raphaelgruber/sprintpilot/internal/db"
	"github.com/raphaelgruber/sprintpilot/internal/llm"
	"github.com/raphaelgruber/sprintpilot/internal/memstore"
	"github.com/raphaelgruber/sprintpilot/internal/metrics"
	"github.com/raphaelgruber/sprintpilot/internal/models"
	"github.com/raphaelgruber/sprintpilot/internal/prompt"
	"github.com/raphaelgruber/sprintpilot/internal/service"
	"github.com/raphaelgruber/sprintpilot/internal/store"
	"github.com/raphaelgruber/sprintpilot/internal/tools"
	"github.com/raphaelgruber/sprintpilot/internal/usage"
	"github.com/raphaelgruber/sprintpilot/internal/workspace"
)

// App holds every long-lived dependency.
type App struct {
	Store         store.Store
	Providers     *llm.Set
	Metrics       *metrics.Collector
	Chat          *service.ChatService
	Conversations *service.ConversationService
	Settings      *service.SettingsService
	Usage         *usage.Tracker
	Logger        *slog.Logger

	db *db.Client
}

// Options tune an App built by Build.
type Options struct {
	DefaultModel string
	MonthlyLimit int64
	Detector     workspace.PatternDetector
	Metrics      *metrics.Collector
	Now          func() time.Time
}

// New connects the configured store and providers and builds the services.
// A missing provider is not an error: chat turns then fail with
// service.ErrConfiguration until one is configured.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mc := metrics.NewCollector()

	var (
		st       store.Store
		dbClient *db.Client
	)
	switch cfg.Store {
	case config.StoreMemory:
		mem := memstore.New()
		if cfg.FixturePath != "" {
			fx, err := mem.LoadFixtureFile(cfg.FixturePath)
			if err != nil {
				return nil, fmt.Errorf("load fixture: %w", err)
			}
			logger.Info("loaded fixture", "workspace", fx.Workspace.ID, "members", len(fx.Members), "tasks", len(fx.Tasks))
		}
		st = mem

	case config.StoreSurrealDB, "":
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger, mc)
		if err != nil {
			return nil, err
		}
		if err := client.InitSchema(ctx); err != nil {
			_ = client.Close(ctx)
			return nil, err
		}
		st, dbClient = client, client

	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	providers, err := providerSet(ctx, cfg)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}
	if len(providers.Names()) == 0 {
		logger.Warn("no ai provider configured; chat is disabled")
	}

	model := cfg.AIModel
	if model == "" {
		model = config.DefaultModel(cfg.AIProvider)
	}

	a := Build(st, providers, logger, Options{
		DefaultModel: model,
		MonthlyLimit: cfg.MonthlyTokenLimit,
		Detector:     Detector(cfg.PatternDetector),
		Metrics:      mc,
	})
	a.db = dbClient
	return a, nil
}

// providerSet builds the configured provider. An unset provider yields an empty set.
func providerSet(ctx context.Context, cfg config.Config) (*llm.Set, error) {
	p, err := llm.NewProvider(ctx, cfg)
	if errors.Is(err, llm.ErrNotConfigured) && cfg.AIProvider == "" {
		return llm.NewSet(""), nil
	}
	if err != nil {
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	return llm.NewSet(p.Name(), p), nil
}

// Detector maps a config name to a pattern detector. Unknown names fall back
// to the suffix detector.
func Detector(name string) workspace.PatternDetector {
	if name == "camelcase" {
		return workspace.CamelCaseDetector{}
	}
	return workspace.SuffixPatternDetector{}
}

// Build assembles the services over an existing store and provider set.
func Build(st store.Store, providers *llm.Set, logger *slog.Logger, opts Options) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Detector == nil {
		opts.Detector = workspace.SuffixPatternDetector{}
	}
	if opts.MonthlyLimit <= 0 {
		opts.MonthlyLimit = config.DefaultMonthlyTokenLimit
	}

	projects := workspace.NewProjectBuilder(st, st, opts.Detector, logger)
	settings := service.NewSettingsService(st, providers, opts.DefaultModel, opts.MonthlyLimit)
	tracker := usage.NewTracker(st, st, opts.MonthlyLimit).WithClock(opts.Now)
	registry := tools.NewRegistry(&tools.Dependencies{
		Store:    st,
		Projects: projects,
		Logger:   logger,
		Metrics:  opts.Metrics,
		Now:      opts.Now,
	})

	chat := service.NewChatService(service.ChatDeps{
		Workspace:     st,
		Conversations: st,
		Settings:      settings,
		Usage:         tracker,
		Context:       workspace.NewBuilder(st, logger).WithClock(opts.Now),
		Projects:      projects,
		Tools:         registry,
		Composer:      prompt.NewComposer(),
		Metrics:       opts.Metrics,
		Logger:        logger,
		Now:           opts.Now,
	})

	return &App{
		Store:         st,
		Providers:     providers,
		Metrics:       opts.Metrics,
		Chat:          chat,
		Conversations: service.NewConversationService(st),
		Settings:      settings,
		Usage:         tracker,
		Logger:        logger,
	}
}

// Seed loads a fixture into the store.
func (a *App) Seed(ctx context.Context, fx *models.Fixture) error {
	switch s := a.Store.(type) {
	case *db.Client:
		return s.Seed(ctx, fx)
	case *memstore.Store:
		s.Seed(fx)
		return nil
	default:
		return fmt.Errorf("store %T cannot be seeded", a.Store)
	}
}

// WipeData deletes all data. Only the SurrealDB store supports it.
func (a *App) WipeData(ctx context.Context) error {
	if a.db == nil {
		return errors.New("wipe requires the surrealdb store")
	}
	return a.db.WipeData(ctx)
}

// Close closes the store connection.
func (a *App) Close(ctx context.Context) error {
	if a.Store != nil {
		return a.Store.Close(ctx)
	}
	return nil
}
