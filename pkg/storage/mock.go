package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jwebster45206/worldgen/pkg/chat"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu          sync.RWMutex
	sessions    map[string][]chat.ChatMessage
	pingError   error
	appendError error

	LockCalls []string
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		sessions: make(map[string][]chat.ChatMessage),
	}
}

// SetPingSuccess configures the mock to succeed on ping
func (m *MockStorage) SetPingSuccess() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = nil
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetAppendError configures the mock to fail every AppendSession call
func (m *MockStorage) SetAppendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) CreateSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.sessions[id] = make([]chat.ChatMessage, 0)
	return id, nil
}

func (m *MockStorage) LoadSession(ctx context.Context, id string) ([]chat.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	out := make([]chat.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *MockStorage) AppendSession(ctx context.Context, id string, msgs ...chat.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendError != nil {
		return m.appendError
	}
	m.sessions[id] = append(m.sessions[id], msgs...)
	return nil
}

func (m *MockStorage) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	return nil
}

// LockSession records the call and returns a no-op unlock.
func (m *MockStorage) LockSession(ctx context.Context, id string) (UnlockFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LockCalls = append(m.LockCalls, id)
	return func() {}, nil
}
