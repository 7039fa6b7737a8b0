package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memstore "github.com/jwebster45206/worldgen/internal/storage"
	"github.com/jwebster45206/worldgen/pkg/chat"
	"github.com/jwebster45206/worldgen/pkg/storage"
)

func TestSessionsHandler_Lifecycle(t *testing.T) {
	store := storage.NewMockStorage()
	handler := NewSessionsHandler(store, testLogger())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	require.Equal(t, http.StatusCreated, rr.Code)

	var created chat.SessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)

	require.NoError(t, store.AppendSession(context.Background(), created.SessionID,
		chat.ChatMessage{Role: chat.ChatRoleUser, Content: "hi"}))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions/"+created.SessionID, nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var read chat.SessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &read))
	assert.Equal(t, created.SessionID, read.SessionID)
	assert.Equal(t, []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hi"}}, read.Messages)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/sessions/"+created.SessionID, nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions/"+created.SessionID, nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	decodeError(t, rr)
}

func TestSessionsHandler_Errors(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{name: "get unknown", method: http.MethodGet, path: "/sessions/nope", expectedStatus: http.StatusNotFound},
		{name: "delete unknown", method: http.MethodDelete, path: "/sessions/nope", expectedStatus: http.StatusNotFound},
		{name: "delete without id", method: http.MethodDelete, path: "/sessions", expectedStatus: http.StatusBadRequest},
		{name: "get without id", method: http.MethodGet, path: "/sessions", expectedStatus: http.StatusMethodNotAllowed},
		{name: "post with id", method: http.MethodPost, path: "/sessions/abc", expectedStatus: http.StatusMethodNotAllowed},
		{name: "patch", method: http.MethodPatch, path: "/sessions/abc", expectedStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSessionsHandler(storage.NewMockStorage(), testLogger())

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			decodeError(t, rr)
		})
	}
}

func TestSessionsHandler_DeleteWaitsForTurnInProgress(t *testing.T) {
	store := memstore.NewMemoryStorage(0, testLogger())
	defer store.Close()
	handler := NewSessionsHandler(store, testLogger())
	ctx := context.Background()

	require.NoError(t, store.AppendSession(ctx, "s", chat.ChatMessage{Role: chat.ChatRoleSystem, Content: "world"}))

	// A chat turn holds the session lock while the model answers.
	unlock, err := store.LockSession(ctx, "s")
	require.NoError(t, err)

	done := make(chan int)
	go func() {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/sessions/s", nil))
		done <- rr.Code
	}()

	select {
	case <-done:
		t.Fatal("delete returned while a turn was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, store.AppendSession(ctx, "s",
		chat.ChatMessage{Role: chat.ChatRoleUser, Content: "a"},
		chat.ChatMessage{Role: chat.ChatRoleAgent, Content: "reply"},
	))
	unlock()

	select {
	case code := <-done:
		assert.Equal(t, http.StatusNoContent, code)
	case <-time.After(time.Second):
		t.Fatal("delete never completed")
	}

	_, err = store.LoadSession(ctx, "s")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}
