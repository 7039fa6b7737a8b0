package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/worldgen/internal/dispatch"
	"github.com/jwebster45206/worldgen/pkg/chat"
)

// WorldHandler handles POST /generate-world
type WorldHandler struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

func NewWorldHandler(dispatcher *dispatch.Dispatcher, logger *slog.Logger) *WorldHandler {
	return &WorldHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (h *WorldHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, h.logger, http.MethodPost)
		return
	}

	var request chat.WorldRequest
	if err := decodeBody(w, r, &request); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Info("World generation requested",
		"genre", request.Genre,
		"has_prompt", request.Prompt != "",
		"session_id", request.SessionID)

	result, err := h.dispatcher.GenerateWorld(r.Context(), request)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, result)
}
