package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/candor0/candor/db"
	"github.com/candor0/candor/internal/agent"
	"github.com/candor0/candor/internal/config"
	"github.com/candor0/candor/internal/conversation"
	"github.com/candor0/candor/internal/knowledge"
	"github.com/candor0/candor/internal/log"
	"github.com/candor0/candor/internal/model"
	"github.com/candor0/candor/internal/observability"
	"github.com/candor0/candor/internal/tool"
	"github.com/candor0/candor/internal/tools"
)

// Setup creates and initializes the application. Returns an App with
// embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	otelShutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.otelShutdown = otelShutdown

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder != nil {
		a.Knowledge = knowledge.New(pool, knowledge.NewGenkitEmbedder(embedder), logger)
	} else {
		logger.Warn("embedder not available, document search disabled",
			"embedder_model", cfg.EmbedderModel, "provider", cfg.Provider)
	}

	registry, err := provideRegistry(a, logger)
	if err != nil {
		return nil, err
	}
	a.Registry = registry

	adapter, err := provideAdapter(a, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Adapter = adapter

	orchestrator, err := agent.New(agent.Config{
		Adapter:     adapter,
		Registry:    registry,
		Logger:      logger,
		MaxSteps:    cfg.MaxSteps,
		ToolTimeout: time.Duration(cfg.ToolTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	a.Orchestrator = orchestrator

	a.Store = conversation.New(conversation.NewQuerier(pool), pool, logger)

	return a, nil
}

// provideDBPool runs migrations and creates the PostgreSQL connection
// pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured provider plugin.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}

	default: // gemini / googleai
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
	}

	logger.Info("initialized Genkit", "provider", cfg.Provider, "model", cfg.ModelName)
	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
// May return nil when the provider has no embedder for the configured
// model; document search is simply disabled then.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName(config.ProviderOpenAI, cfg.EmbedderModel))
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideRegistry creates the tool registry with every built-in tool whose
// dependencies are available.
func provideRegistry(a *App, logger log.Logger) (*tool.Registry, error) {
	registry := tool.NewRegistry(logger)

	deps := tools.Deps{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	if a.Knowledge != nil {
		deps.Knowledge = a.Knowledge
	}

	if err := tools.RegisterAll(registry, deps); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	logger.Info("tools registered", "count", registry.Len())
	return registry, nil
}

// provideAdapter creates the Genkit model adapter wrapped with retry.
func provideAdapter(a *App, cfg *config.Config, logger log.Logger) (model.Adapter, error) {
	inner, err := model.NewGenkitAdapter(model.GenkitConfig{
		Genkit:       a.Genkit,
		ModelName:    cfg.FullModelName(),
		SystemPrompt: cfg.SystemPrompt,
		Registry:     a.Registry,
		Logger:       logger,
		StepTimeout:  time.Duration(cfg.StepTimeoutSeconds) * time.Second,
		RateLimiter:  rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
	})
	if err != nil {
		return nil, fmt.Errorf("creating model adapter: %w", err)
	}

	retryCfg := model.DefaultRetryConfig()
	if cfg.RetryMaxAttempts > 0 {
		retryCfg.MaxRetries = cfg.RetryMaxAttempts
	}
	return model.WithRetry(inner, retryCfg, logger), nil
}
