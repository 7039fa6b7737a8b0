package storage

import (
	"context"
	"errors"

	"github.com/jwebster45206/worldgen/pkg/chat"
)

// ErrSessionNotFound is returned when a session id has no stored conversation.
var ErrSessionNotFound = errors.New("session not found")

// UnlockFunc releases a session lock. It is safe to call more than once.
type UnlockFunc func()

// Storage defines the interface for conversation session persistence.
// Implementations keep sessions in volatile memory (process memory or Redis
// with TTLs); nothing is written to disk.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// CreateSession registers a new, empty session and returns its id.
	CreateSession(ctx context.Context) (string, error)

	// LoadSession returns the full ordered history of a session.
	// Returns ErrSessionNotFound if the session does not exist.
	LoadSession(ctx context.Context, id string) ([]chat.ChatMessage, error)

	// AppendSession appends messages to a session as one unit, creating the
	// session if it does not exist yet.
	AppendSession(ctx context.Context, id string, msgs ...chat.ChatMessage) error

	// DeleteSession removes a session.
	// Returns ErrSessionNotFound if the session does not exist.
	DeleteSession(ctx context.Context, id string) error

	// LockSession blocks until the caller holds the turn lock for id or ctx
	// is done. Chat turns hold it from load to append.
	LockSession(ctx context.Context, id string) (UnlockFunc, error)
}
