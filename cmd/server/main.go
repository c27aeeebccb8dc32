package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"sibyl/internal/auth"
	"sibyl/internal/config"
	chatsvc "sibyl/internal/domain/services/chat"
	"sibyl/internal/handler"
	"sibyl/internal/middleware"
	"sibyl/internal/repository/postgres"
	postgresChat "sibyl/internal/repository/postgres/chat"
	chatservice "sibyl/internal/service/chat"
	providerOpenAI "sibyl/internal/service/chat/providers/openai"
	"sibyl/internal/service/chat/providers/scripted"
	"sibyl/internal/service/chat/tools"
	"sibyl/internal/service/chat/tools/external"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// JWT verifier
	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected", "max_conns", 25, "min_conns", 5)

	// Repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	turnStore := postgresChat.NewTurnStore(repoConfig)
	searchBackend := postgresChat.NewSearchBackend(repoConfig)

	// Model token ceilings
	limits, err := config.LoadModelLimits(cfg.ModelLimitsPath)
	if err != nil {
		log.Fatalf("Failed to load model limits: %v", err)
	}

	// LLM provider: scripted echo when no API key is configured (dev only)
	var provider chatsvc.Provider
	if cfg.OpenAIAPIKey != "" {
		provider = providerOpenAI.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, logger)
	} else {
		if cfg.Environment == "prod" {
			log.Fatal("OPENAI_API_KEY is required in prod")
		}
		logger.Warn("no OPENAI_API_KEY set, using scripted echo provider")
		provider = scripted.NewEcho(30 * time.Millisecond)
	}

	// Tool registry
	registry := tools.NewRegistry()
	mustRegister := func(err error) {
		if err != nil {
			log.Fatalf("Failed to register tool: %v", err)
		}
	}
	mustRegister(registry.Register(tools.NewDocSearchTool(searchBackend, logger)))
	mustRegister(registry.Register(tools.NewOpenURLTool(tools.NewFetcher(cfg.FetchRPS), logger)))
	mustRegister(registry.Register(tools.NewRunCodeTool(tools.SubprocessRunner{}, logger)))
	if cfg.TavilyAPIKey != "" {
		mustRegister(registry.Register(tools.NewWebSearchTool(external.NewTavilyClient(cfg.TavilyAPIKey), logger)))
	} else {
		logger.Warn("no TAVILY_API_KEY set, web_search tool disabled")
	}
	if cfg.OpenAIAPIKey != "" {
		imageClient := providerOpenAI.NewImageClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		mustRegister(registry.Register(tools.NewGenerateImageTool(imageClient, cfg.ImageModel, logger)))
	}

	// Chat service
	svc := chatservice.NewService(turnStore, provider, registry, chatservice.Options{
		DefaultModel:   cfg.DefaultModel,
		SystemPrompt:   cfg.SystemPrompt,
		PollInterval:   cfg.StreamPollInterval,
		MaxRounds:      cfg.MaxToolRounds,
		TokenCeilings:  limits.Ceilings,
		DefaultCeiling: limits.Default,
	}, logger)

	chatHandler := handler.NewChatHandler(svc, logger, cfg.Debug)

	logger.Info("services initialized")

	// HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handler.HealthCheck)

	// Turn routes
	mux.HandleFunc("POST /api/chats/{chatID}/turns", chatHandler.CreateTurn)
	mux.HandleFunc("GET /api/turns/{turnID}", chatHandler.GetTurn)
	mux.HandleFunc("GET /api/turns/{turnID}/stream", chatHandler.StreamTurn)
	mux.HandleFunc("POST /api/turns/{turnID}/interrupt", chatHandler.InterruptTurn)

	// Build middleware chain
	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	var h http.Handler = mux
	h = middleware.Auth(jwtVerifier)(h)
	h = middleware.Recovery(logger)(h)

	// CORS - must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
