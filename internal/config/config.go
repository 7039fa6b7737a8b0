package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jwebster45206/worldgen/pkg/conversation"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderVenice    = "venice"
	ProviderOllama    = "ollama"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level
	LogFile     string

	LLMProvider     string
	ModelName       string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string
	VeniceAPIKey    string
	OllamaBaseURL   string
	LLMTimeout      time.Duration

	HistoryMode conversation.HistoryMode
	PromptsDir  string

	SessionBackend string
	RedisURL       string
	SessionTTL     time.Duration

	CORSAllowedOrigins []string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	llmTimeout, err := parseDuration("LLM_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	sessionTTL, err := parseDuration("SESSION_TTL", "24h")
	if err != nil {
		return nil, err
	}
	mode, err := conversation.ParseHistoryMode(getEnv("HISTORY_MODE", string(conversation.FullHistory)))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),
		LogFile:     os.Getenv("LOG_FILE"),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
		ModelName:       os.Getenv("MODEL_NAME"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		VeniceAPIKey:    os.Getenv("VENICE_API_KEY"),
		OllamaBaseURL:   getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		LLMTimeout:      llmTimeout,

		HistoryMode: mode,
		PromptsDir:  getEnv("PROMPTS_DIR", "prompts"),

		SessionBackend: strings.ToLower(getEnv("SESSION_BACKEND", BackendMemory)),
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		SessionTTL:     sessionTTL,

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}
	return cfg, nil
}

// Validate fails when the selected provider or backend cannot work with the
// given settings.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
		}
	case ProviderVenice:
		if c.VeniceAPIKey == "" {
			return errors.New("VENICE_API_KEY is required when LLM_PROVIDER=venice")
		}
	case ProviderOllama:
		if c.OllamaBaseURL == "" {
			return errors.New("OLLAMA_BASE_URL is required when LLM_PROVIDER=ollama")
		}
		if c.ModelName == "" {
			return errors.New("MODEL_NAME is required when LLM_PROVIDER=ollama")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q (supported: openai, anthropic, gemini, venice, ollama)", c.LLMProvider)
	}

	switch c.SessionBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unsupported SESSION_BACKEND %q (supported: memory, redis)", c.SessionBackend)
	}

	if c.LLMTimeout <= 0 {
		return errors.New("LLM_TIMEOUT must be positive")
	}
	if c.PromptsDir == "" {
		return errors.New("PROMPTS_DIR cannot be empty")
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseDuration(key, defaultValue string) (time.Duration, error) {
	raw := getEnv(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
