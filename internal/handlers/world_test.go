package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/worldgen/internal/services"
	"github.com/jwebster45206/worldgen/pkg/chat"
	"github.com/jwebster45206/worldgen/pkg/storage"
	"github.com/jwebster45206/worldgen/pkg/world"
)

func TestWorldHandler_ForwardsOneRenderedInstruction(t *testing.T) {
	store := storage.NewMockStorage()
	llm := services.NewMockLLMAPI()
	llm.SetCompleteResponse("깊은 숲 속, 당신은 눈을 뜹니다.")
	handler := NewWorldHandler(newTestDispatcher(store, llm, ""), testLogger())

	body := `{"genre":"fantasy","prompt":"A misty forest"}`
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generate-world", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp chat.WorldResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "깊은 숲 속, 당신은 눈을 뜹니다.", resp.Content)
	assert.Equal(t, "fantasy", resp.Genre)
	assert.Equal(t, "A misty forest", resp.Prompt)
	assert.NotEmpty(t, resp.SessionID)

	_, calls := llm.GetCalls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Messages, 1)
	assert.Equal(t, chat.ChatRoleUser, calls[0].Messages[0].Role)
	assert.Equal(t, world.Render("fantasy", "A misty forest"), calls[0].Messages[0].Content)
}

func TestWorldHandler_GenreOnly(t *testing.T) {
	root := writePrompts(t, map[string]map[string]string{
		"scifi": {"a.txt": "The station is silent."},
	})
	handler := NewWorldHandler(newTestDispatcher(storage.NewMockStorage(), services.NewMockLLMAPI(), root), testLogger())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/generate-world", strings.NewReader(`{"genre":"scifi"}`)))
	require.Equal(t, http.StatusOK, rr.Code)

	var resp chat.WorldResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "The station is silent.", resp.Prompt)
}

func TestWorldHandler_Errors(t *testing.T) {
	root := writePrompts(t, map[string]map[string]string{"scifi": {"a.txt": "x"}})

	tests := []struct {
		name           string
		method         string
		body           string
		llmErr         error
		expectedStatus int
	}{
		{name: "missing genre", method: http.MethodPost, body: `{"prompt":"x"}`, expectedStatus: http.StatusBadRequest},
		{name: "unknown genre", method: http.MethodPost, body: `{"genre":"western"}`, expectedStatus: http.StatusNotFound},
		{name: "gateway", method: http.MethodPost, body: `{"genre":"scifi"}`, llmErr: errors.New("timeout"), expectedStatus: http.StatusBadGateway},
		{name: "malformed", method: http.MethodPost, body: `nope`, expectedStatus: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodPut, expectedStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := services.NewMockLLMAPI()
			if tt.llmErr != nil {
				llm.SetCompleteError(tt.llmErr)
			}
			handler := NewWorldHandler(newTestDispatcher(storage.NewMockStorage(), llm, root), testLogger())

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(tt.method, "/generate-world", strings.NewReader(tt.body)))

			assert.Equal(t, tt.expectedStatus, rr.Code)
			decodeError(t, rr)
		})
	}
}
