// Package conversation holds the ordered message log that is replayed to the
// LLM on every chat turn.
package conversation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jwebster45206/worldgen/pkg/chat"
)

// HistoryMode selects how much of a conversation is sent to the LLM.
type HistoryMode string

const (
	// FullHistory sends every message in insertion order.
	FullHistory HistoryMode = "full_history"
	// LastOnly sends only the most recent message.
	LastOnly HistoryMode = "last_only"
)

// ParseHistoryMode accepts the long and short spellings of each mode.
func ParseHistoryMode(s string) (HistoryMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full", "full_history":
		return FullHistory, nil
	case "last", "last_only":
		return LastOnly, nil
	default:
		return "", fmt.Errorf("unknown history mode %q (expected full or last)", s)
	}
}

// Select applies mode to msgs and returns a copy.
func Select(mode HistoryMode, msgs []chat.ChatMessage) []chat.ChatMessage {
	if mode == LastOnly {
		if len(msgs) == 0 {
			return []chat.ChatMessage{}
		}
		return []chat.ChatMessage{msgs[len(msgs)-1]}
	}
	out := make([]chat.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

// Conversation is an append-only, role-validated message log.
// It is safe for concurrent use; appends are serialized.
type Conversation struct {
	mode HistoryMode

	mu       sync.Mutex
	messages []chat.ChatMessage
}

func New(mode HistoryMode) *Conversation {
	if mode == "" {
		mode = FullHistory
	}
	return &Conversation{
		mode:     mode,
		messages: make([]chat.ChatMessage, 0),
	}
}

// FromMessages builds a conversation from an existing history.
func FromMessages(mode HistoryMode, msgs []chat.ChatMessage) (*Conversation, error) {
	c := New(mode)
	if err := c.Append(msgs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Append validates every message and then appends them as one unit.
// If any role is invalid nothing is appended.
func (c *Conversation) Append(msgs ...chat.ChatMessage) error {
	for _, m := range msgs {
		if err := m.Validate(); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
	return nil
}

// Snapshot returns the messages to send to the LLM under the configured mode.
func (c *Conversation) Snapshot() []chat.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Select(c.mode, c.messages)
}

// Messages returns a copy of the full history regardless of mode.
func (c *Conversation) Messages() []chat.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Select(FullHistory, c.messages)
}

func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

func (c *Conversation) Mode() HistoryMode {
	return c.mode
}
