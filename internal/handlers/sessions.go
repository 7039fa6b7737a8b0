package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jwebster45206/worldgen/pkg/chat"
	"github.com/jwebster45206/worldgen/pkg/storage"
)

type SessionsHandler struct {
	storage storage.Storage
	logger  *slog.Logger
}

func NewSessionsHandler(storage storage.Storage, logger *slog.Logger) *SessionsHandler {
	return &SessionsHandler{
		storage: storage,
		logger:  logger,
	}
}

// ServeHTTP handles HTTP requests for session operations
// Routes:
// POST /sessions        - Create new session
// GET /sessions/{id}    - Read session messages
// DELETE /sessions/{id} - Delete session
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions"), "/")

	switch r.Method {
	case http.MethodPost:
		if id != "" {
			writeMethodNotAllowed(w, r, h.logger, "GET, DELETE")
			return
		}
		h.handleCreate(w, r)

	case http.MethodGet:
		if id == "" {
			writeMethodNotAllowed(w, r, h.logger, http.MethodPost)
			return
		}
		h.handleRead(w, r, id)

	case http.MethodDelete:
		if id == "" {
			writeError(w, r, h.logger, fmt.Errorf("%w: session id is required", chat.ErrInvalidMessageShape))
			return
		}
		h.handleDelete(w, r, id)

	default:
		writeMethodNotAllowed(w, r, h.logger, "POST, GET, DELETE")
	}
}

func (h *SessionsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := h.storage.CreateSession(r.Context())
	if err != nil {
		writeError(w, r, h.logger, fmt.Errorf("failed to create session: %w", err))
		return
	}

	h.logger.Info("Session created", "session_id", id)
	writeJSON(w, h.logger, http.StatusCreated, chat.SessionResponse{SessionID: id})
}

func (h *SessionsHandler) handleRead(w http.ResponseWriter, r *http.Request, id string) {
	messages, err := h.storage.LoadSession(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, chat.SessionResponse{
		SessionID: id,
		Messages:  messages,
	})
}

// handleDelete waits for any turn in progress so its reply cannot re-create
// the session after the delete.
func (h *SessionsHandler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	unlock, err := h.storage.LockSession(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, fmt.Errorf("failed to lock session %s: %w", id, err))
		return
	}
	defer unlock()

	if err := h.storage.DeleteSession(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("Session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}
