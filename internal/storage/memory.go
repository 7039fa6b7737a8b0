package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/worldgen/pkg/chat"
	"github.com/jwebster45206/worldgen/pkg/conversation"
	"github.com/jwebster45206/worldgen/pkg/storage"
)

type memorySession struct {
	conv    *conversation.Conversation
	touched time.Time
}

// turnLock is keyed by session id apart from session data, so it outlives
// DeleteSession.
type turnLock struct {
	token chan struct{} // capacity 1; holding the token holds the turn lock
	refs  int           // holders plus waiters; the lock is dropped at zero
}

// MemoryStorage keeps sessions in process memory. Sessions idle for longer
// than ttl are swept; a zero ttl keeps them for the process lifetime.
type MemoryStorage struct {
	logger *slog.Logger
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*memorySession
	locks    map[string]*turnLock

	stop     chan struct{}
	stopOnce sync.Once
}

// Ensure MemoryStorage implements Storage interface
var _ storage.Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an in-memory session store and starts the idle
// sweeper when ttl > 0.
func NewMemoryStorage(ttl time.Duration, logger *slog.Logger) *MemoryStorage {
	m := &MemoryStorage{
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*memorySession),
		locks:    make(map[string]*turnLock),
		stop:     make(chan struct{}),
	}

	if ttl > 0 {
		interval := ttl / 2
		if interval > time.Minute {
			interval = time.Minute
		}
		go m.sweepLoop(interval)
	}
	return m
}

func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStorage) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	m.logger.Info("Memory session storage closed")
	return nil
}

// session returns the session for id, creating it when create is true.
// Callers must hold m.mu.
func (m *MemoryStorage) session(id string, create bool) (*memorySession, bool) {
	s, ok := m.sessions[id]
	if !ok && create {
		s = &memorySession{
			conv: conversation.New(conversation.FullHistory),
		}
		m.sessions[id] = s
		ok = true
	}
	if ok {
		s.touched = m.now()
	}
	return s, ok
}

func (m *MemoryStorage) CreateSession(ctx context.Context) (string, error) {
	id := uuid.New().String()

	m.mu.Lock()
	m.session(id, true)
	m.mu.Unlock()

	m.logger.Debug("Session created", "session_id", id)
	return id, nil
}

func (m *MemoryStorage) LoadSession(ctx context.Context, id string) ([]chat.ChatMessage, error) {
	m.mu.Lock()
	s, ok := m.session(id, false)
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrSessionNotFound, id)
	}
	return s.conv.Messages(), nil
}

func (m *MemoryStorage) AppendSession(ctx context.Context, id string, msgs ...chat.ChatMessage) error {
	m.mu.Lock()
	s, _ := m.session(id, true)
	m.mu.Unlock()

	if err := s.conv.Append(msgs...); err != nil {
		return fmt.Errorf("failed to append to session %s: %w", id, err)
	}
	return nil
}

func (m *MemoryStorage) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	m.logger.Debug("Session deleted", "session_id", id)
	return nil
}

// LockSession acquires the turn lock for id. It does not create the session;
// the first successful append does.
func (m *MemoryStorage) LockSession(ctx context.Context, id string) (storage.UnlockFunc, error) {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &turnLock{token: make(chan struct{}, 1)}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.token <- struct{}{}:
	case <-ctx.Done():
		m.releaseRef(id, l)
		return nil, fmt.Errorf("context cancelled while waiting for session lock: %w", ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.token
			m.releaseRef(id, l)
		})
	}, nil
}

func (m *MemoryStorage) releaseRef(id string, l *turnLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 && m.locks[id] == l {
		delete(m.locks, id)
	}
}

// Len returns the number of live sessions.
func (m *MemoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemoryStorage) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				m.logger.Debug("Expired idle sessions", "count", n)
			}
		}
	}
}

// sweep removes sessions idle for longer than ttl. Sessions with a turn in
// progress are kept.
func (m *MemoryStorage) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.ttl)
	removed := 0
	for id, s := range m.sessions {
		if _, busy := m.locks[id]; busy || !s.touched.Before(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed++
	}
	return removed
}
