package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/jwebster45206/worldgen/pkg/chat"
)

const DefaultGeminiModel = "gemini-2.0-flash-001"

// GeminiService implements LLMService for Google Gemini via the genai SDK
type GeminiService struct {
	client    *genai.Client
	modelName string
	logger    *slog.Logger
}

func NewGeminiService(ctx context.Context, apiKey string, modelName string, logger *slog.Logger) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	return &GeminiService{
		client:    client,
		modelName: modelName,
		logger:    logger,
	}, nil
}

func (g *GeminiService) InitModel(ctx context.Context, modelName string) error {
	return nil
}

func (g *GeminiService) Complete(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	system, contents := toGeminiContents(messages)

	var config *genai.GenerateContentConfig
	if system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: system}},
			},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, config)
	if err != nil {
		return "", gatewayError("gemini", fmt.Errorf("generate content: %w", err))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		text = msgNoResponse
	}
	return text, nil
}

// toGeminiContents folds system messages into one system instruction and
// maps assistant turns to the "model" role.
func toGeminiContents(messages []chat.ChatMessage) (string, []*genai.Content) {
	var systemParts []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case chat.ChatRoleSystem:
			systemParts = append(systemParts, msg.Content)
			continue
		case chat.ChatRoleAgent:
			contents = append(contents, &genai.Content{
				Role:  string(genai.RoleModel),
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  string(genai.RoleUser),
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	system := strings.Join(systemParts, "\n\n")
	if len(contents) == 0 && system != "" {
		contents = append(contents, &genai.Content{
			Role:  string(genai.RoleUser),
			Parts: []*genai.Part{{Text: system}},
		})
		system = ""
	}
	return system, contents
}
