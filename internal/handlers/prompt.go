package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/worldgen/pkg/chat"
	"github.com/jwebster45206/worldgen/pkg/prompts"
)

// PromptHandler handles POST /get-prompt
type PromptHandler struct {
	store  *prompts.Store
	logger *slog.Logger
}

func NewPromptHandler(store *prompts.Store, logger *slog.Logger) *PromptHandler {
	return &PromptHandler{
		store:  store,
		logger: logger,
	}
}

func (h *PromptHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, r, h.logger, http.MethodPost)
		return
	}

	var request chat.PromptRequest
	if err := decodeBody(w, r, &request); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	prompt, err := h.store.SelectRandomPrompt(request.Genre)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.logger.Debug("Prompt selected", "genre", request.Genre)
	writeJSON(w, h.logger, http.StatusOK, chat.PromptResponse{
		Genre:  request.Genre,
		Prompt: prompt,
	})
}
