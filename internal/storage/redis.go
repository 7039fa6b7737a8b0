package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/worldgen/pkg/chat"
	"github.com/jwebster45206/worldgen/pkg/storage"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL      = 2 * time.Minute
	lockTTLMargin       = 30 * time.Second
	lockPollInterval    = 50 * time.Millisecond
	sessionKeyPrefix    = "session:"
	sessionLockPrefix   = "session-lock:"
	sessionMessagesPart = ":messages"
)

// releaseLockScript deletes the lock only if we still own it.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisStorage implements the Storage interface on Redis. Each session is a
// marker key plus a list of JSON-encoded messages; both share the session TTL.
type RedisStorage struct {
	client  *redis.Client
	logger  *slog.Logger
	ttl     time.Duration
	lockTTL time.Duration
}

// Ensure RedisStorage implements Storage interface
var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance. redisURL may be a
// redis:// URL or a bare host:port.
func NewRedisStorage(redisURL string, ttl time.Duration, logger *slog.Logger) (*RedisStorage, error) {
	var opt *redis.Options
	if strings.Contains(redisURL, "://") {
		parsed, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: redisURL}
	}

	return &RedisStorage{
		client:  redis.NewClient(opt),
		logger:  logger,
		ttl:     ttl,
		lockTTL: defaultLockTTL,
	}, nil
}

// WithLockTTL sets how long a session lock survives a crashed holder. It
// should exceed the LLM timeout.
func (r *RedisStorage) WithLockTTL(d time.Duration) *RedisStorage {
	if d > 0 {
		r.lockTTL = d
	}
	return r
}

// TurnLockTTL is the lock TTL for a given LLM timeout: long enough that a
// turn cannot lose its lock while the model is still answering.
func TurnLockTTL(llmTimeout time.Duration) time.Duration {
	if ttl := llmTimeout + lockTTLMargin; ttl > defaultLockTTL {
		return ttl
	}
	return defaultLockTTL
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func messagesKey(id string) string {
	return sessionKeyPrefix + id + sessionMessagesPart
}

func lockKey(id string) string {
	return sessionLockPrefix + id
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Session operations

func (r *RedisStorage) CreateSession(ctx context.Context) (string, error) {
	id := uuid.New().String()
	if err := r.client.Set(ctx, sessionKey(id), time.Now().UTC().Format(time.RFC3339), r.ttl).Err(); err != nil {
		r.logger.Error("Failed to create session", "session_id", id, "error", err)
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return id, nil
}

func (r *RedisStorage) LoadSession(ctx context.Context, id string) ([]chat.ChatMessage, error) {
	exists, err := r.client.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		r.logger.Error("Failed to check session", "session_id", id, "error", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", storage.ErrSessionNotFound, id)
	}

	raw, err := r.client.LRange(ctx, messagesKey(id), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Error("Failed to load session messages", "session_id", id, "error", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	msgs := make([]chat.ChatMessage, 0, len(raw))
	for i, item := range raw {
		var msg chat.ChatMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			r.logger.Error("Failed to unmarshal session message", "session_id", id, "index", i, "error", err)
			return nil, fmt.Errorf("failed to unmarshal session message %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (r *RedisStorage) AppendSession(ctx context.Context, id string, msgs ...chat.ChatMessage) error {
	values := make([]interface{}, 0, len(msgs))
	for _, msg := range msgs {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("failed to append to session %s: %w", id, err)
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		values = append(values, string(data))
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, sessionKey(id), time.Now().UTC().Format(time.RFC3339), r.ttl)
		if len(values) > 0 {
			pipe.RPush(ctx, messagesKey(id), values...)
		}
		if r.ttl > 0 {
			pipe.Expire(ctx, sessionKey(id), r.ttl)
			pipe.Expire(ctx, messagesKey(id), r.ttl)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to append session messages", "session_id", id, "error", err)
		return fmt.Errorf("failed to append to session: %w", err)
	}
	return nil
}

func (r *RedisStorage) DeleteSession(ctx context.Context, id string) error {
	deleted, err := r.client.Del(ctx, sessionKey(id), messagesKey(id)).Result()
	if err != nil {
		r.logger.Error("Failed to delete session", "session_id", id, "error", err)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("%w: %s", storage.ErrSessionNotFound, id)
	}
	return nil
}

// LockSession polls SET NX until the lock is taken or ctx is done. The lock
// carries a random token so only its owner can release it.
func (r *RedisStorage) LockSession(ctx context.Context, id string) (storage.UnlockFunc, error) {
	key := lockKey(id)
	token := uuid.New().String()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire session lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled while waiting for session lock: %w", ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// Release on a fresh context so a cancelled request still frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseLockScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil {
			r.logger.Error("Failed to release session lock", "error", err, "session_id", id)
		}
	}, nil
}
