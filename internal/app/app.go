// Package app provides application initialization and dependency
// injection. Setup wires configuration, storage, the model adapter, the
// tool registry and the orchestrator into one container; Close releases
// everything in reverse order.
package app

import (
	"context"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/candor0/candor/internal/agent"
	"github.com/candor0/candor/internal/config"
	"github.com/candor0/candor/internal/conversation"
	"github.com/candor0/candor/internal/knowledge"
	"github.com/candor0/candor/internal/log"
	"github.com/candor0/candor/internal/model"
	"github.com/candor0/candor/internal/tool"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit       *genkit.Genkit
	Pool         *pgxpool.Pool
	Store        *conversation.Store
	Knowledge    *knowledge.Store
	Registry     *tool.Registry
	Adapter      model.Adapter
	Orchestrator *agent.Orchestrator

	otelShutdown func(context.Context) error
}

// Close gracefully releases all resources.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Debug("database pool closed")
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Logger.Warn("shutting down tracer provider", "error", err)
		}
	}

	return nil
}
