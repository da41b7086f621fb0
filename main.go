package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/graphdesk/server/internal/agent/catalog"
	"github.com/graphdesk/server/internal/agent/composer"
	"github.com/graphdesk/server/internal/agent/executor"
	"github.com/graphdesk/server/internal/agent/model"
	"github.com/graphdesk/server/internal/agent/planner"
	"github.com/graphdesk/server/internal/agent/repo"
	"github.com/graphdesk/server/internal/agent/session"
	"github.com/graphdesk/server/internal/core"
	"github.com/graphdesk/server/internal/llm"
	"github.com/graphdesk/server/internal/server"
	"github.com/graphdesk/server/internal/store"
	logx "github.com/graphdesk/server/pkg/logger"
	pkgneo4j "github.com/graphdesk/server/pkg/neo4j"
	pkgredis "github.com/graphdesk/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the service, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Redis pkgredis.Config
	Neo4j pkgneo4j.Config
	HTTP  server.Config
	Auth  server.AuthConfig

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Planner      model.PlannerModelConfig
	Composer     model.ComposerModelConfig
	Conversation model.ConversationConfig
	Executor     model.ExecutorConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("failed to process environment config")
	}

	logx.Init(logx.LoggerOpts{Environment: core.FromEnv()})

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Err(err).Str("ttl", cfg.Conversation.TTL).Msg("invalid CONVERSATION_TTL")
	}

	rdb, err := cfg.Redis.New(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to initialise Redis client")
	}
	defer rdb.Close()

	driver, err := cfg.Neo4j.New(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to connect to Neo4j")
	}
	defer driver.Close(ctx)

	graph := store.NewGraph(driver, cfg.Neo4j.Database)

	models, err := llm.NewModels(ctx, llm.Config{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Planner:  &cfg.Planner,
		Composer: &cfg.Composer,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to create LLM models")
	}

	cat := catalog.New(graph)
	if err := cat.Reload(ctx); err != nil {
		logx.Fatal().Err(err).Msg("failed to warm the intent catalog")
	}

	sessionDeps := session.Deps{
		Planner:      planner.NewConversation(models.Planner, cat),
		QueryPlanner: planner.NewQuery(models.Planner, cat, graph.SchemaSummary()),
		Executor:     executor.New(graph, models.Planner, cfg.Executor),
		Composer:     composer.New(models.Composer),
		Catalog:      cat,
		Store:        graph,
		History:      repo.NewRedisHistoryRepository(rdb, ttl, cfg.Conversation.History.MaxTurns),
		Gen:          models.Planner,
		Config:       cfg.Conversation,
	}

	router, err := server.NewRouter(server.Deps{
		Graph:   graph,
		Catalog: cat,
		Gen:     models.Planner,
		Session: sessionDeps,
		Auth:    cfg.Auth,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("failed to build router")
	}

	srv := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logx.Info().Str("addr", cfg.HTTP.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logx.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("graceful shutdown failed")
	}
}
