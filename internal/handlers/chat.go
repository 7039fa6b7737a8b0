package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/worldgen/internal/dispatch"
	"github.com/jwebster45206/worldgen/pkg/chat"
)

// ChatHandler handles POST /chat
type ChatHandler struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(dispatcher *dispatch.Dispatcher, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ServeHTTP handles HTTP requests for chat
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, h.logger, http.MethodPost)
		return
	}

	var request chat.ChatRequest
	if err := decodeBody(w, r, &request); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := request.Validate(); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Debug("Chat request received",
		"session_id", request.SessionID,
		"messages", len(request.Messages))

	reply, err := h.dispatcher.HandleChatTurn(r.Context(), request.SessionID, request.Messages)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, chat.ChatResponse{
		SessionID:   request.SessionID,
		ChatMessage: reply,
	})
}
