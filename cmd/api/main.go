package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/worldgen/internal/config"
	"github.com/jwebster45206/worldgen/internal/dispatch"
	"github.com/jwebster45206/worldgen/internal/handlers"
	"github.com/jwebster45206/worldgen/internal/logger"
	"github.com/jwebster45206/worldgen/internal/middleware"
	"github.com/jwebster45206/worldgen/internal/services"
	internalstorage "github.com/jwebster45206/worldgen/internal/storage"
	"github.com/jwebster45206/worldgen/pkg/prompts"
	"github.com/jwebster45206/worldgen/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting worldgen API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
		"model_name", cfg.ModelName,
		"history_mode", cfg.HistoryMode,
		"session_backend", cfg.SessionBackend)

	llmService, err := newLLMService(cfg, log)
	if err != nil {
		log.Error("Failed to create LLM service", "error", err, "provider", cfg.LLMProvider)
		os.Exit(1)
	}

	// Initialize the model on startup
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := llmService.InitModel(ctx, cfg.ModelName); err != nil {
		log.Error("Failed to initialize LLM model", "error", err, "model", cfg.ModelName)
		os.Exit(1)
	}

	store, err := newStorage(cfg, log)
	if err != nil {
		log.Error("Failed to connect to session storage", "error", err)
		os.Exit(1)
	}
	log.Info("Session storage ready", "backend", cfg.SessionBackend)

	promptStore := prompts.NewStore(cfg.PromptsDir)
	if genres, err := promptStore.ListGenres(); err != nil {
		log.Warn("Prompts directory is not readable", "dir", cfg.PromptsDir, "error", err)
	} else {
		log.Info("Prompt store ready", "dir", cfg.PromptsDir, "genres", len(genres))
	}

	dispatcher := dispatch.NewDispatcher(store, llmService, promptStore, cfg.HistoryMode, cfg.LLMTimeout, log)

	mux := http.NewServeMux()

	mux.Handle("/health", handlers.NewHealthHandler(store, promptStore, log).WithHistoryMode(dispatcher.Mode()))
	mux.Handle("/chat", handlers.NewChatHandler(dispatcher, log))
	mux.Handle("/get-prompt", handlers.NewPromptHandler(promptStore, log))
	mux.Handle("/generate-world", handlers.NewWorldHandler(dispatcher, log))
	mux.Handle("/genres", handlers.NewGenresHandler(promptStore, log))

	sessionsHandler := handlers.NewSessionsHandler(store, log)
	mux.Handle("/sessions", sessionsHandler)
	mux.Handle("/sessions/", sessionsHandler)

	handler := middleware.Logger(log, middleware.CORS(cfg.CORSAllowedOrigins, mux))
	// completions can take up to LLM_TIMEOUT before the reply is written
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	// Close storage after in-flight turns have finished
	if err := store.Close(); err != nil {
		log.Error("Error closing session storage", "error", err)
	}

	log.Info("Server exited")
}

func newLLMService(cfg *config.Config, log *slog.Logger) (services.LLMService, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.ModelName, log), nil
	case config.ProviderAnthropic:
		return services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, log), nil
	case config.ProviderGemini:
		return services.NewGeminiService(context.Background(), cfg.GeminiAPIKey, cfg.ModelName, log)
	case config.ProviderVenice:
		return services.NewVeniceService(cfg.VeniceAPIKey, cfg.ModelName, log), nil
	case config.ProviderOllama:
		return services.NewOllamaService(cfg.OllamaBaseURL, cfg.ModelName, log), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

func newStorage(cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	if cfg.SessionBackend != config.BackendRedis {
		return internalstorage.NewMemoryStorage(cfg.SessionTTL, log), nil
	}

	redisStore, err := internalstorage.NewRedisStorage(cfg.RedisURL, cfg.SessionTTL, log)
	if err != nil {
		return nil, err
	}
	redisStore.WithLockTTL(internalstorage.TurnLockTTL(cfg.LLMTimeout))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := redisStore.WaitForConnection(ctx); err != nil {
		_ = redisStore.Close()
		return nil, err
	}
	return redisStore, nil
}
