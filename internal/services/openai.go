package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/jwebster45206/worldgen/pkg/chat"
)

const (
	veniceBaseURL        = "https://api.venice.ai/api/v1"
	DefaultOllamaBaseURL = "http://localhost:11434"

	DefaultOpenAIModel       = openai.GPT4o
	DefaultOpenAITemperature = 0.7
	DefaultOpenAIMaxTokens   = 1024
	ollamaPlaceholderAPIKey  = "ollama"
)

// OpenAIService implements LLMService for OpenAI and any provider that
// speaks the OpenAI chat completions API (Venice, Ollama).
type OpenAIService struct {
	provider    string
	modelName   string
	client      *openai.Client
	logger      *slog.Logger
	verifyModel bool
}

// NewOpenAIService creates a service for api.openai.com
func NewOpenAIService(apiKey string, modelName string, logger *slog.Logger) *OpenAIService {
	return newOpenAICompatible("openai", openai.DefaultConfig(apiKey), modelName, false, logger)
}

// NewOpenAICompatibleService creates a service for an OpenAI-compatible endpoint.
func NewOpenAICompatibleService(provider, apiKey, baseURL, modelName string, logger *slog.Logger) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	return newOpenAICompatible(provider, cfg, modelName, false, logger)
}

// NewVeniceService creates a service for Venice AI
func NewVeniceService(apiKey string, modelName string, logger *slog.Logger) *OpenAIService {
	return NewOpenAICompatibleService("venice", apiKey, veniceBaseURL, modelName, logger)
}

// NewOllamaService creates a service for a self-hosted Ollama server. The
// model must already be pulled; InitModel checks for it.
func NewOllamaService(baseURL string, modelName string, logger *slog.Logger) *OpenAIService {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	cfg := openai.DefaultConfig(ollamaPlaceholderAPIKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	return newOpenAICompatible("ollama", cfg, modelName, true, logger)
}

func newOpenAICompatible(provider string, cfg openai.ClientConfig, modelName string, verifyModel bool, logger *slog.Logger) *OpenAIService {
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	return &OpenAIService{
		provider:    provider,
		modelName:   modelName,
		client:      openai.NewClientWithConfig(cfg),
		logger:      logger,
		verifyModel: verifyModel,
	}
}

// InitModel checks that the model is served when the provider is
// self-hosted. Hosted providers are not probed at startup.
func (s *OpenAIService) InitModel(ctx context.Context, modelName string) error {
	if !s.verifyModel {
		return nil
	}

	s.logger.Info("Checking LLM model availability", "provider", s.provider, "model", modelName)
	models, err := s.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list %s models: %w", s.provider, err)
	}
	for _, m := range models.Models {
		if m.ID == modelName || strings.TrimSuffix(m.ID, ":latest") == modelName {
			return nil
		}
	}
	return fmt.Errorf("model %q is not available on %s", modelName, s.provider)
}

func (s *OpenAIService) Complete(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       s.modelName,
		Messages:    toOpenAIMessages(messages),
		Temperature: DefaultOpenAITemperature,
		MaxTokens:   DefaultOpenAIMaxTokens,
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			s.logger.Warn("LLM API returned an error",
				"provider", s.provider,
				"status", apiErr.HTTPStatusCode,
				"message", apiErr.Message)
		}
		return "", gatewayError(s.provider, err)
	}

	if len(resp.Choices) == 0 {
		return "", gatewayError(s.provider, errors.New("response contained no choices"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		content = msgNoResponse
	}

	s.logger.Debug("LLM completion received",
		"provider", s.provider,
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return content, nil
}

func toOpenAIMessages(messages []chat.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case chat.ChatRoleSystem:
			role = openai.ChatMessageRoleSystem
		case chat.ChatRoleAgent:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	return out
}
