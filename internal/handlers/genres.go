package handlers

import (
	"log/slog"
	"net/http"

	"github.com/jwebster45206/worldgen/pkg/prompts"
)

// GenresHandler handles GET /genres
type GenresHandler struct {
	store  *prompts.Store
	logger *slog.Logger
}

func NewGenresHandler(store *prompts.Store, logger *slog.Logger) *GenresHandler {
	return &GenresHandler{
		store:  store,
		logger: logger,
	}
}

func (h *GenresHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, h.logger, http.MethodGet)
		return
	}

	genres, err := h.store.ListGenres()
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if genres == nil {
		genres = []prompts.Genre{}
	}

	writeJSON(w, h.logger, http.StatusOK, genres)
}
