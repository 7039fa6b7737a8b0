package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/worldgen/internal/services"
	internalstorage "github.com/jwebster45206/worldgen/internal/storage"
	"github.com/jwebster45206/worldgen/pkg/chat"
	"github.com/jwebster45206/worldgen/pkg/conversation"
	"github.com/jwebster45206/worldgen/pkg/prompts"
	"github.com/jwebster45206/worldgen/pkg/storage"
	"github.com/jwebster45206/worldgen/pkg/world"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func userMsg(content string) chat.ChatMessage {
	return chat.ChatMessage{Role: chat.ChatRoleUser, Content: content}
}

func newTestDispatcher(store storage.Storage, llm services.LLMService, mode conversation.HistoryMode) *Dispatcher {
	return NewDispatcher(store, llm, nil, mode, time.Second, testLogger())
}

func TestNewDispatcher_DefaultMode(t *testing.T) {
	d := NewDispatcher(storage.NewMockStorage(), services.NewMockLLMAPI(), nil, "", 0, testLogger())
	assert.Equal(t, conversation.FullHistory, d.Mode())

	d = newTestDispatcher(storage.NewMockStorage(), services.NewMockLLMAPI(), conversation.LastOnly)
	assert.Equal(t, conversation.LastOnly, d.Mode())
}

func TestHandleChatTurn_Stateless(t *testing.T) {
	store := storage.NewMockStorage()
	llm := services.NewMockLLMAPI()
	d := newTestDispatcher(store, llm, conversation.FullHistory)

	reply, err := d.HandleChatTurn(context.Background(), "", []chat.ChatMessage{userMsg("hello")})
	require.NoError(t, err)
	assert.Equal(t, chat.ChatMessage{Role: chat.ChatRoleAgent, Content: "Echo: hello"}, reply)
	assert.Empty(t, store.LockCalls)
}

func TestHandleChatTurn_StatelessForwardsWholeHistory(t *testing.T) {
	llm := services.NewMockLLMAPI()
	d := newTestDispatcher(storage.NewMockStorage(), llm, conversation.FullHistory)

	incoming := []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: "world"},
		userMsg("first"),
		{Role: chat.ChatRoleAgent, Content: "answer"},
		userMsg("second"),
	}
	_, err := d.HandleChatTurn(context.Background(), "", incoming)
	require.NoError(t, err)

	_, calls := llm.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, incoming, calls[0].Messages)
}

func TestHandleChatTurn_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		incoming []chat.ChatMessage
		wantErr  error
	}{
		{name: "empty", incoming: nil, wantErr: chat.ErrInvalidMessageShape},
		{name: "admin role", incoming: []chat.ChatMessage{{Role: "admin", Content: "x"}}, wantErr: chat.ErrInvalidRole},
		{name: "second message bad", incoming: []chat.ChatMessage{userMsg("ok"), {Role: "tool", Content: "x"}}, wantErr: chat.ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMockStorage()
			llm := services.NewMockLLMAPI()
			d := newTestDispatcher(store, llm, conversation.FullHistory)

			_, err := d.HandleChatTurn(context.Background(), "s1", tt.incoming)
			assert.ErrorIs(t, err, tt.wantErr)

			_, calls := llm.GetCalls()
			assert.Empty(t, calls)
			_, loadErr := store.LoadSession(context.Background(), "s1")
			assert.ErrorIs(t, loadErr, storage.ErrSessionNotFound)
		})
	}
}

func TestHandleChatTurn_SessionFullHistory(t *testing.T) {
	store := storage.NewMockStorage()
	llm := services.NewMockLLMAPI()
	d := newTestDispatcher(store, llm, conversation.FullHistory)
	ctx := context.Background()

	_, err := d.HandleChatTurn(ctx, "s1", []chat.ChatMessage{userMsg("one")})
	require.NoError(t, err)
	reply, err := d.HandleChatTurn(ctx, "s1", []chat.ChatMessage{userMsg("two")})
	require.NoError(t, err)
	assert.Equal(t, "Echo: two", reply.Content)

	_, calls := llm.GetCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, []chat.ChatMessage{
		userMsg("one"),
		{Role: chat.ChatRoleAgent, Content: "Echo: one"},
		userMsg("two"),
	}, calls[1].Messages)

	history, err := store.LoadSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, chat.ChatMessage{Role: chat.ChatRoleAgent, Content: "Echo: two"}, history[3])
	assert.Equal(t, []string{"s1", "s1"}, store.LockCalls)
}

func TestHandleChatTurn_SessionLastOnly(t *testing.T) {
	store := storage.NewMockStorage()
	llm := services.NewMockLLMAPI()
	d := newTestDispatcher(store, llm, conversation.LastOnly)
	ctx := context.Background()

	_, err := d.HandleChatTurn(ctx, "s1", []chat.ChatMessage{userMsg("one")})
	require.NoError(t, err)
	_, err = d.HandleChatTurn(ctx, "s1", []chat.ChatMessage{userMsg("two")})
	require.NoError(t, err)

	_, calls := llm.GetCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, []chat.ChatMessage{userMsg("two")}, calls[1].Messages)

	// full history is still recorded
	history, err := store.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestHandleChatTurn_GatewayFailurePersistsNothing(t *testing.T) {
	store := storage.NewMockStorage()
	llm := services.NewMockLLMAPI()
	d := newTestDispatcher(store, llm, conversation.FullHistory)
	ctx := context.Background()

	_, err := d.HandleChatTurn(ctx, "s1", []chat.ChatMessage{userMsg("one")})
	require.NoError(t, err)

	llm.SetCompleteError(errors.New("connection refused"))
	_, err = d.HandleChatTurn(ctx, "s1", []chat.ChatMessage{userMsg("two")})
	assert.ErrorIs(t, err, services.ErrLLMGateway)

	history, err := store.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestHandleChatTurn_AppendFailure(t *testing.T) {
	store := storage.NewMockStorage()
	store.SetAppendError(errors.New("disk full"))
	d := newTestDispatcher(store, services.NewMockLLMAPI(), conversation.FullHistory)

	_, err := d.HandleChatTurn(context.Background(), "s1", []chat.ChatMessage{userMsg("one")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, services.ErrLLMGateway)
}

func TestHandleChatTurn_DetachedFromCallerCancel(t *testing.T) {
	llm := services.NewMockLLMAPI()
	llm.CompleteFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "still here", nil
	}
	d := newTestDispatcher(storage.NewMockStorage(), llm, conversation.FullHistory)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply, err := d.HandleChatTurn(ctx, "", []chat.ChatMessage{userMsg("hi")})
	require.NoError(t, err)
	assert.Equal(t, "still here", reply.Content)
}

func TestHandleChatTurn_Timeout(t *testing.T) {
	llm := services.NewMockLLMAPI()
	llm.CompleteFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	d := NewDispatcher(storage.NewMockStorage(), llm, nil, conversation.FullHistory, 20*time.Millisecond, testLogger())

	_, err := d.HandleChatTurn(context.Background(), "", []chat.ChatMessage{userMsg("hi")})
	assert.ErrorIs(t, err, services.ErrLLMGateway)
}

func TestHandleChatTurn_ConcurrentTurnsSerialized(t *testing.T) {
	store := internalstorage.NewMemoryStorage(0, testLogger())
	defer func() { _ = store.Close() }()

	llm := services.NewMockLLMAPI()
	llm.CompleteFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		time.Sleep(time.Millisecond)
		return "re: " + messages[len(messages)-1].Content, nil
	}
	d := newTestDispatcher(store, llm, conversation.FullHistory)

	const turns = 10
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.HandleChatTurn(context.Background(), "shared", []chat.ChatMessage{userMsg(fmt.Sprintf("m%d", i))})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := store.LoadSession(context.Background(), "shared")
	require.NoError(t, err)
	require.Len(t, history, turns*2)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, chat.ChatRoleUser, history[i].Role)
		assert.Equal(t, "re: "+history[i].Content, history[i+1].Content)
	}

	// each turn saw every earlier turn
	_, calls := llm.GetCalls()
	lengths := make(map[int]bool)
	for _, c := range calls {
		lengths[len(c.Messages)] = true
	}
	for i := 0; i < turns; i++ {
		assert.True(t, lengths[i*2+1], "no turn saw %d messages", i*2+1)
	}
}

func TestGenerateWorld_WithPrompt(t *testing.T) {
	store := storage.NewMockStorage()
	llm := services.NewMockLLMAPI()
	llm.SetCompleteResponse("당신은 안개 낀 숲에서 깨어납니다.")
	d := newTestDispatcher(store, llm, conversation.FullHistory)

	res, err := d.GenerateWorld(context.Background(), chat.WorldRequest{Genre: "fantasy", Prompt: "A misty forest"})
	require.NoError(t, err)
	assert.Equal(t, "fantasy", res.Genre)
	assert.Equal(t, "A misty forest", res.Prompt)
	assert.Equal(t, "당신은 안개 낀 숲에서 깨어납니다.", res.Content)
	require.NotEmpty(t, res.SessionID)

	_, calls := llm.GetCalls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Messages, 1)
	assert.Equal(t, chat.ChatRoleUser, calls[0].Messages[0].Role)
	assert.Equal(t, world.Render("fantasy", "A misty forest"), calls[0].Messages[0].Content)

	history, err := store.LoadSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []chat.ChatMessage{world.SeedMessage(res.Content)}, history)
	assert.Empty(t, store.LockCalls, "a fresh session needs no lock")
}

func TestGenerateWorld_SeedsExistingSession(t *testing.T) {
	store := storage.NewMockStorage()
	d := newTestDispatcher(store, services.NewMockLLMAPI(), conversation.FullHistory)

	res, err := d.GenerateWorld(context.Background(), chat.WorldRequest{Genre: "scifi", Prompt: "Mars", SessionID: "mine"})
	require.NoError(t, err)
	assert.Equal(t, "mine", res.SessionID)
	assert.Equal(t, []string{"mine"}, store.LockCalls)

	history, err := store.LoadSession(context.Background(), "mine")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, chat.ChatRoleSystem, history[0].Role)
}

func TestGenerateWorld_WaitsForTurnOnSameSession(t *testing.T) {
	store := internalstorage.NewMemoryStorage(0, testLogger())
	defer func() { _ = store.Close() }()

	entered := make(chan struct{})
	release := make(chan struct{})
	llm := services.NewMockLLMAPI()
	llm.CompleteFunc = func(ctx context.Context, messages []chat.ChatMessage) (string, error) {
		if messages[len(messages)-1].Content == "turn" {
			close(entered)
			<-release
			return "reply", nil
		}
		return "narrative", nil
	}
	d := newTestDispatcher(store, llm, conversation.FullHistory)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := d.HandleChatTurn(ctx, "s", []chat.ChatMessage{userMsg("turn")})
		assert.NoError(t, err)
	}()
	<-entered

	go func() {
		defer wg.Done()
		_, err := d.GenerateWorld(ctx, chat.WorldRequest{Genre: "fantasy", Prompt: "p", SessionID: "s"})
		assert.NoError(t, err)
	}()

	time.Sleep(50 * time.Millisecond)
	_, calls := llm.GetCalls()
	assert.Len(t, calls, 1, "world generation reached the model during a turn")

	close(release)
	wg.Wait()

	history, err := store.LoadSession(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, []chat.ChatMessage{
		userMsg("turn"),
		{Role: chat.ChatRoleAgent, Content: "reply"},
		world.SeedMessage("narrative"),
	}, history)
}

func TestGenerateWorld_PicksPromptFromStore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "fantasy"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "fantasy", "a.txt"), []byte("A dragon sleeps."), 0o644))

	llm := services.NewMockLLMAPI()
	d := NewDispatcher(storage.NewMockStorage(), llm, prompts.NewStore(root), conversation.FullHistory, time.Second, testLogger())

	res, err := d.GenerateWorld(context.Background(), chat.WorldRequest{Genre: "fantasy"})
	require.NoError(t, err)
	assert.Equal(t, "A dragon sleeps.", res.Prompt)

	_, calls := llm.GetCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, world.Render("fantasy", "A dragon sleeps."), calls[0].Messages[0].Content)
}

func TestGenerateWorld_Errors(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	tests := []struct {
		name    string
		req     chat.WorldRequest
		llmErr  error
		wantErr error
	}{
		{name: "missing genre", req: chat.WorldRequest{}, wantErr: chat.ErrInvalidMessageShape},
		{name: "unknown genre", req: chat.WorldRequest{Genre: "western"}, wantErr: prompts.ErrGenreNotFound},
		{name: "no prompts", req: chat.WorldRequest{Genre: "empty"}, wantErr: prompts.ErrNoPromptsAvailable},
		{name: "gateway", req: chat.WorldRequest{Genre: "x", Prompt: "y"}, llmErr: services.ErrLLMGateway, wantErr: services.ErrLLMGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMockStorage()
			llm := services.NewMockLLMAPI()
			if tt.llmErr != nil {
				llm.SetCompleteError(tt.llmErr)
			}
			d := NewDispatcher(store, llm, prompts.NewStore(root), conversation.FullHistory, time.Second, testLogger())

			_, err := d.GenerateWorld(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
