// Parley server: multi-tenant conversational agent runtime. Provides the
// HTTP API, per-thread dispatch loops and the agent pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/parleyhq/parley/pkg/api"
	"github.com/parleyhq/parley/pkg/database"
	"github.com/parleyhq/parley/pkg/dispatch"
	"github.com/parleyhq/parley/pkg/graph"
	"github.com/parleyhq/parley/pkg/models"
	"github.com/parleyhq/parley/pkg/runtime"
	"github.com/parleyhq/parley/pkg/secrets"
	"github.com/parleyhq/parley/pkg/services"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// dispatchStore bundles the two services the dispatch loop persists
// through.
type dispatchStore struct {
	threads  *services.ThreadService
	messages *services.MessageService
}

func (s *dispatchStore) EnsureAgentInThread(ctx context.Context, threadID, agentID uuid.UUID) error {
	return s.threads.EnsureAgentInThread(ctx, threadID, agentID)
}

func (s *dispatchStore) CreateMessage(ctx context.Context, req models.CreateMessageRequest) (*models.Message, error) {
	return s.messages.CreateMessage(ctx, req)
}

func main() {
	envFile := flag.String("env-file", getEnv("ENV_FILE", ".env"), "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting Parley", "http_port", httpPort)

	ctx := context.Background()

	// 1. Database
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	// 2. Domain services
	pool := dbClient.Pool()
	tenantService := services.NewTenantService(pool)
	agentService := services.NewAgentService(pool)
	threadService := services.NewThreadService(pool)
	messageService := services.NewMessageService(pool)
	slog.Info("Services initialized")

	// 3. Secrets manager: Vault when configured, environment otherwise
	var secretsManager secrets.SecretsManager
	if os.Getenv("VAULT_ADDR") != "" {
		secretsManager, err = secrets.NewVaultSecretsManager(secrets.LoadVaultConfigFromEnv())
		if err != nil {
			slog.Error("Failed to initialize Vault client", "error", err)
			os.Exit(1)
		}
		slog.Info("Vault secrets manager initialized")
	} else {
		secretsManager = secrets.NewEnvSecretsManager("")
		slog.Info("Using environment secrets manager")
	}

	// 4. Runtime service
	maxUnits, _ := strconv.Atoi(getEnv("MAX_CONTEXT_UNITS", "0"))
	checkpoints := graph.NewPostgresCheckpointStore(pool)
	runtimeService := runtime.NewService(runtime.Config{
		Model:           getEnv("LLM_MODEL", "gpt-4o-mini"),
		SummaryModel:    getEnv("LLM_SUMMARY_MODEL", "gpt-4o-mini"),
		BaseURL:         os.Getenv("LLM_BASE_URL"),
		SystemPrompt:    os.Getenv("SYSTEM_PROMPT"),
		MaxContextUnits: maxUnits,
	}, messageService, secretsManager, checkpoints)

	// 5. Dispatch infrastructure
	manager := dispatch.NewManager()
	dispatcher := dispatch.NewDispatcher(manager, runtimeService, &dispatchStore{
		threads:  threadService,
		messages: messageService,
	})

	// 6. HTTP server
	server := api.NewServer(dbClient, tenantService, agentService, threadService, messageService, manager, dispatcher)
	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 7. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}
