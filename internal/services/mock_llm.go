package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/worldgen/pkg/chat"
)

// MockLLMAPI is a mock implementation of LLMService for testing
type MockLLMAPI struct {
	InitModelFunc func(ctx context.Context, modelName string) error
	CompleteFunc  func(ctx context.Context, messages []chat.ChatMessage) (string, error)

	// Track calls for testing
	InitModelCalls []string
	CompleteCalls  []CompleteCall

	mu sync.Mutex // protects all fields above
}

type CompleteCall struct {
	Messages []chat.ChatMessage
}

// NewMockLLMAPI creates a new mock LLM service.
// Without a CompleteFunc it echoes the last message back.
func NewMockLLMAPI() *MockLLMAPI {
	return &MockLLMAPI{
		InitModelCalls: make([]string, 0),
		CompleteCalls:  make([]CompleteCall, 0),
	}
}

// EchoReply is the default mock reply for a message list.
func EchoReply(messages []chat.ChatMessage) string {
	if len(messages) == 0 {
		return "Echo:"
	}
	return "Echo: " + messages[len(messages)-1].Content
}

// InitModel mocks model initialization
func (m *MockLLMAPI) InitModel(ctx context.Context, modelName string) error {
	m.mu.Lock()
	m.InitModelCalls = append(m.InitModelCalls, modelName)
	fn := m.InitModelFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, modelName)
	}
	return nil
}

// Complete records the call and returns the configured reply
func (m *MockLLMAPI) Complete(ctx context.Context, messages []chat.ChatMessage) (string, error) {
	recorded := make([]chat.ChatMessage, len(messages))
	copy(recorded, messages)

	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, CompleteCall{Messages: recorded})
	fn := m.CompleteFunc
	m.mu.Unlock()

	// fn runs unlocked so it may block without stalling other callers
	if fn != nil {
		return fn(ctx, messages)
	}
	return EchoReply(messages), nil
}

// Reset clears all call tracking
func (m *MockLLMAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitModelCalls = make([]string, 0)
	m.CompleteCalls = make([]CompleteCall, 0)
}

// SetInitModelError sets up the mock to return an error on InitModel
func (m *MockLLMAPI) SetInitModelError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InitModelFunc = func(ctx context.Context, modelName string) error {
		return err
	}
}

// SetCompleteError sets up the mock to return an error on Complete
func (m *MockLLMAPI) SetCompleteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return "", err
	}
}

// SetCompleteResponse sets up the mock to always reply with text
func (m *MockLLMAPI) SetCompleteResponse(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		return text, nil
	}
}

// GetCalls returns a copy of the call tracking data in a thread-safe way
func (m *MockLLMAPI) GetCalls() ([]string, []CompleteCall) {
	m.mu.Lock()
	defer m.mu.Unlock()

	initCalls := make([]string, len(m.InitModelCalls))
	copy(initCalls, m.InitModelCalls)

	completeCalls := make([]CompleteCall, len(m.CompleteCalls))
	copy(completeCalls, m.CompleteCalls)

	return initCalls, completeCalls
}
