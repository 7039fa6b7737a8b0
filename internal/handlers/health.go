package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jwebster45206/worldgen/pkg/conversation"
	"github.com/jwebster45206/worldgen/pkg/prompts"
	"github.com/jwebster45206/worldgen/pkg/storage"
)

type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Service    string            `json:"service"`
	Components map[string]string `json:"components"`

	// HistoryMode is how much of a session the model sees per turn.
	HistoryMode string `json:"history_mode,omitempty"`
}

type HealthHandler struct {
	storage storage.Storage
	prompts *prompts.Store
	mode    conversation.HistoryMode
	logger  *slog.Logger
}

func NewHealthHandler(storage storage.Storage, promptStore *prompts.Store, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		storage: storage,
		prompts: promptStore,
		logger:  logger,
	}
}

// WithHistoryMode reports the dispatcher's history mode in health responses.
func (h *HealthHandler) WithHistoryMode(mode conversation.HistoryMode) *HealthHandler {
	h.mode = mode
	return h
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, r, h.logger, http.MethodGet)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]string)
	overallStatus := "healthy"

	if err := h.storage.Ping(ctx); err != nil {
		h.logger.Warn("Session storage health check failed", "error", err)
		components["storage"] = "unhealthy"
		overallStatus = "degraded"
	} else {
		components["storage"] = "healthy"
	}

	if info, err := os.Stat(h.prompts.Root()); err != nil || !info.IsDir() {
		h.logger.Warn("Prompts directory health check failed", "root", h.prompts.Root(), "error", err)
		components["prompts"] = "unhealthy"
		overallStatus = "degraded"
	} else {
		components["prompts"] = "healthy"
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, h.logger, statusCode, HealthResponse{
		Status:      overallStatus,
		Timestamp:   time.Now(),
		Service:     "worldgen",
		Components:  components,
		HistoryMode: string(h.mode),
	})
}
