package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/worldgen/internal/services"
	"github.com/jwebster45206/worldgen/pkg/chat"
	"github.com/jwebster45206/worldgen/pkg/conversation"
	"github.com/jwebster45206/worldgen/pkg/prompts"
	"github.com/jwebster45206/worldgen/pkg/storage"
	"github.com/jwebster45206/worldgen/pkg/world"
)

const DefaultLLMTimeout = 60 * time.Second

// Dispatcher runs chat turns and world generation against the LLM gateway.
// It is shared by all HTTP handlers.
type Dispatcher struct {
	storage    storage.Storage
	llmService services.LLMService
	prompts    *prompts.Store
	mode       conversation.HistoryMode
	timeout    time.Duration
	logger     *slog.Logger
}

// NewDispatcher creates a dispatcher. A zero timeout selects DefaultLLMTimeout.
func NewDispatcher(
	storage storage.Storage,
	llmService services.LLMService,
	promptStore *prompts.Store,
	mode conversation.HistoryMode,
	timeout time.Duration,
	logger *slog.Logger,
) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	if mode == "" {
		mode = conversation.FullHistory
	}
	return &Dispatcher{
		storage:    storage,
		llmService: llmService,
		prompts:    promptStore,
		mode:       mode,
		timeout:    timeout,
		logger:     logger,
	}
}

// Mode returns the history mode applied to sessioned turns.
func (d *Dispatcher) Mode() conversation.HistoryMode {
	return d.mode
}

// HandleChatTurn sends one turn to the model and returns the assistant reply.
// With an empty sessionID the incoming messages are the whole conversation.
// Otherwise the turn is serialized on the session and persisted only when
// the model answers.
func (d *Dispatcher) HandleChatTurn(ctx context.Context, sessionID string, incoming []chat.ChatMessage) (chat.ChatMessage, error) {
	if err := chat.ValidateMessages(incoming); err != nil {
		return chat.ChatMessage{}, err
	}
	for _, msg := range incoming {
		if msg.Role != chat.ChatRoleUser {
			d.logger.Debug("Accepting non-user message in chat turn", "role", msg.Role, "session_id", sessionID)
		}
	}

	if sessionID == "" {
		conv, err := conversation.FromMessages(d.mode, incoming)
		if err != nil {
			return chat.ChatMessage{}, err
		}
		return d.complete(ctx, conv.Snapshot())
	}

	unlock, err := d.storage.LockSession(ctx, sessionID)
	if err != nil {
		return chat.ChatMessage{}, fmt.Errorf("failed to lock session %s: %w", sessionID, err)
	}
	defer unlock()

	history, err := d.storage.LoadSession(ctx, sessionID)
	if err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		return chat.ChatMessage{}, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	conv, err := conversation.FromMessages(d.mode, history)
	if err != nil {
		return chat.ChatMessage{}, fmt.Errorf("stored session %s is corrupt: %w", sessionID, err)
	}
	if err := conv.Append(incoming...); err != nil {
		return chat.ChatMessage{}, err
	}

	reply, err := d.complete(ctx, conv.Snapshot())
	if err != nil {
		return chat.ChatMessage{}, err
	}

	turn := make([]chat.ChatMessage, 0, len(incoming)+1)
	turn = append(turn, incoming...)
	turn = append(turn, reply)
	if err := d.storage.AppendSession(context.WithoutCancel(ctx), sessionID, turn...); err != nil {
		return chat.ChatMessage{}, fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}

	d.logger.Debug("Chat turn recorded", "session_id", sessionID, "history_len", conv.Len()+1)
	return reply, nil
}

// GenerateWorld renders the world template for the request, asks the model
// for the opening narrative and seeds it into a session.
func (d *Dispatcher) GenerateWorld(ctx context.Context, req chat.WorldRequest) (*chat.WorldResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	seed := req.Prompt
	if seed == "" {
		if d.prompts == nil {
			return nil, prompts.ErrNoPromptsAvailable
		}
		picked, err := d.prompts.SelectRandomPrompt(req.Genre)
		if err != nil {
			return nil, err
		}
		seed = picked
	}

	// Seeding an existing session is a mutation like a chat turn.
	sessionID := req.SessionID
	if sessionID != "" {
		unlock, err := d.storage.LockSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to lock session %s: %w", sessionID, err)
		}
		defer unlock()
	}

	reply, err := d.complete(ctx, world.Instruction(req.Genre, seed))
	if err != nil {
		return nil, err
	}

	if sessionID == "" {
		sessionID, err = d.storage.CreateSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	}
	if err := d.storage.AppendSession(context.WithoutCancel(ctx), sessionID, world.SeedMessage(reply.Content)); err != nil {
		return nil, fmt.Errorf("failed to seed session %s: %w", sessionID, err)
	}

	d.logger.Info("World generated", "genre", req.Genre, "session_id", sessionID)
	return &chat.WorldResponse{
		Content:   reply.Content,
		Genre:     req.Genre,
		Prompt:    seed,
		SessionID: sessionID,
	}, nil
}

// complete calls the model detached from the caller's cancellation so a
// disconnecting client does not abort an in-flight completion.
func (d *Dispatcher) complete(ctx context.Context, messages []chat.ChatMessage) (chat.ChatMessage, error) {
	llmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	start := time.Now()
	d.logger.Debug("Sending chat request to LLM", "messages", len(messages), "mode", d.mode)
	text, err := d.llmService.Complete(llmCtx, messages)
	if err != nil {
		if !errors.Is(err, services.ErrLLMGateway) {
			err = fmt.Errorf("%w: %v", services.ErrLLMGateway, err)
		}
		d.logger.Error("LLM completion failed", "error", err, "duration", time.Since(start))
		return chat.ChatMessage{}, err
	}
	d.logger.Debug("LLM completion finished", "duration", time.Since(start))

	return chat.ChatMessage{Role: chat.ChatRoleAgent, Content: text}, nil
}
