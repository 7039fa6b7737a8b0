package chat

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRole(t *testing.T) {
	tests := []struct {
		role    string
		wantErr bool
	}{
		{role: ChatRoleSystem},
		{role: ChatRoleUser},
		{role: ChatRoleAgent},
		{role: "admin", wantErr: true},
		{role: "", wantErr: true},
		{role: "User", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			err := ValidateRole(tt.role)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRole)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateMessages(t *testing.T) {
	t.Run("empty list is a shape error", func(t *testing.T) {
		err := ValidateMessages(nil)
		assert.ErrorIs(t, err, ErrInvalidMessageShape)
	})

	t.Run("reports the first bad role", func(t *testing.T) {
		err := ValidateMessages([]ChatMessage{
			{Role: ChatRoleUser, Content: "hello"},
			{Role: "admin", Content: "sudo"},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidRole)
		assert.Contains(t, err.Error(), "message 1")
	})

	t.Run("valid conversation", func(t *testing.T) {
		err := ValidateMessages([]ChatMessage{
			{Role: ChatRoleSystem, Content: "You are in a forest."},
			{Role: ChatRoleUser, Content: "look around"},
			{Role: ChatRoleAgent, Content: "Trees everywhere."},
		})
		assert.NoError(t, err)
	})
}

func TestChatRequest_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantSession string
		wantCount   int
		wantErr     bool
	}{
		{
			name:      "bare array",
			body:      `[{"role":"user","content":"hello"}]`,
			wantCount: 1,
		},
		{
			name:        "object with session",
			body:        `{"session_id":"abc","messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"yo"}]}`,
			wantSession: "abc",
			wantCount:   2,
		},
		{
			name:      "leading whitespace before array",
			body:      "  \n[{\"role\":\"user\",\"content\":\"x\"}]",
			wantCount: 1,
		},
		{
			name:    "scalar body",
			body:    `"hello"`,
			wantErr: true,
		},
		{
			name:    "array of wrong type",
			body:    `[1,2,3]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req ChatRequest
			err := json.Unmarshal([]byte(tt.body), &req)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidMessageShape), "expected shape error, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSession, req.SessionID)
			assert.Len(t, req.Messages, tt.wantCount)
		})
	}
}

func TestChatResponse_MarshalFlattensMessage(t *testing.T) {
	resp := ChatResponse{
		SessionID:   "s1",
		ChatMessage: ChatMessage{Role: ChatRoleAgent, Content: "Welcome."},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"session_id":"s1","role":"assistant","content":"Welcome."}`, string(data))
}

func TestWorldRequest_Validate(t *testing.T) {
	assert.ErrorIs(t, (&WorldRequest{}).Validate(), ErrInvalidMessageShape)
	assert.NoError(t, (&WorldRequest{Genre: "fantasy"}).Validate())
}
