package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwebster45206/worldgen/pkg/chat"
)

// ErrLLMGateway covers every failure of the remote completion call:
// transport errors, timeouts, non-2xx replies and malformed payloads.
var ErrLLMGateway = errors.New("llm gateway error")

// msgNoResponse is returned when a provider answers with no text. A
// well-formed reply with empty content is not a gateway error.
const msgNoResponse = "(no response)"

// LLMService defines the interface for interacting with the LLM API
type LLMService interface {
	// InitModel prepares or verifies the model on startup
	InitModel(ctx context.Context, modelName string) error

	// Complete sends the ordered messages and returns the assistant text
	Complete(ctx context.Context, messages []chat.ChatMessage) (string, error)
}

func gatewayError(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrLLMGateway, provider, err)
}
