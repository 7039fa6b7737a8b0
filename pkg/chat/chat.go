package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrInvalidRole is returned when a message role is not one of
	// system, user or assistant.
	ErrInvalidRole = errors.New("invalid role")

	// ErrInvalidMessageShape is returned when a request body cannot be
	// interpreted as a list of messages.
	ErrInvalidMessageShape = errors.New("invalid message shape")
)

const (
	ChatRoleUser   = "user"      // Player
	ChatRoleAgent  = "assistant" // Narrator reply
	ChatRoleSystem = "system"    // World context
)

// ChatMessage represents a single chat message in the conversation.
// The shape matches the OpenAI-style chat APIs so it can be forwarded
// to most providers unchanged.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ValidateRole reports whether role is one of the supported chat roles.
func ValidateRole(role string) error {
	switch role {
	case ChatRoleUser, ChatRoleAgent, ChatRoleSystem:
		return nil
	default:
		return fmt.Errorf("%w: %q (expected system, user or assistant)", ErrInvalidRole, role)
	}
}

// Validate checks the message role.
func (m ChatMessage) Validate() error {
	return ValidateRole(m.Role)
}

// ValidateMessages validates every message in order and fails on the first
// invalid one. An empty list is a shape error.
func ValidateMessages(messages []ChatMessage) error {
	if len(messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrInvalidMessageShape)
	}
	for i, msg := range messages {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// ChatRequest is the body of POST /chat.
// SessionID is optional; without it the request is stateless and Messages
// is the whole conversation.
type ChatRequest struct {
	SessionID string        `json:"session_id,omitempty"`
	Messages  []ChatMessage `json:"messages"`
}

// UnmarshalJSON accepts either the object form or a bare array of messages.
func (cr *ChatRequest) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidMessageShape)
	}

	if trimmed[0] == '[' {
		var messages []ChatMessage
		if err := json.Unmarshal(trimmed, &messages); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessageShape, err)
		}
		cr.SessionID = ""
		cr.Messages = messages
		return nil
	}

	type alias ChatRequest
	var aux alias
	if err := json.Unmarshal(trimmed, &aux); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessageShape, err)
	}
	*cr = ChatRequest(aux)
	return nil
}

func (cr *ChatRequest) Validate() error {
	return ValidateMessages(cr.Messages)
}

// ChatResponse is the reply to POST /chat: the assistant message plus the
// session it was recorded in, if any.
type ChatResponse struct {
	SessionID string `json:"session_id,omitempty"`
	ChatMessage
}

// PromptRequest is the body of POST /get-prompt.
type PromptRequest struct {
	Genre string `json:"genre"`
}

// PromptResponse is the reply to POST /get-prompt.
type PromptResponse struct {
	Genre  string `json:"genre"`
	Prompt string `json:"prompt"`
}

// WorldRequest is the body of POST /generate-world.
// Prompt may be omitted, in which case one is drawn from the genre.
type WorldRequest struct {
	Genre     string `json:"genre"`
	Prompt    string `json:"prompt,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (wr *WorldRequest) Validate() error {
	if wr.Genre == "" {
		return fmt.Errorf("%w: genre cannot be empty", ErrInvalidMessageShape)
	}
	return nil
}

// WorldResponse is the reply to POST /generate-world.
type WorldResponse struct {
	Content   string `json:"content"`
	Genre     string `json:"genre"`
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id,omitempty"`
}

// SessionResponse describes a stored conversation.
type SessionResponse struct {
	SessionID string        `json:"session_id"`
	Messages  []ChatMessage `json:"messages,omitempty"`
}
