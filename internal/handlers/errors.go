package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/worldgen/internal/services"
	"github.com/jwebster45206/worldgen/pkg/chat"
	"github.com/jwebster45206/worldgen/pkg/prompts"
	"github.com/jwebster45206/worldgen/pkg/storage"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, prompts.ErrGenreNotFound),
		errors.Is(err, prompts.ErrNoPromptsAvailable),
		errors.Is(err, storage.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrInvalidRole),
		errors.Is(err, chat.ErrInvalidMessageShape):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrLLMGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// detailFor hides internal error text behind a generic message for 500s.
func detailFor(status int, err error) string {
	if status == http.StatusInternalServerError && !errors.Is(err, prompts.ErrReadFailure) {
		return "Internal server error"
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Warn("Request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, logger, status, ErrorResponse{Status: status, Detail: detailFor(status, err)})
}

func writeMethodNotAllowed(w http.ResponseWriter, r *http.Request, logger *slog.Logger, allowed string) {
	logger.Warn("Method not allowed", "method", r.Method, "path", r.URL.Path)
	w.Header().Set("Allow", allowed)
	writeJSON(w, logger, http.StatusMethodNotAllowed, ErrorResponse{
		Status: http.StatusMethodNotAllowed,
		Detail: fmt.Sprintf("Method not allowed. Supported methods: %s", allowed),
	})
}

// decodeBody reads a JSON body into v. Any decoding failure is reported as
// chat.ErrInvalidMessageShape.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, chat.ErrInvalidMessageShape) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", chat.ErrInvalidMessageShape)
		}
		return fmt.Errorf("%w: %v", chat.ErrInvalidMessageShape, err)
	}
	return nil
}
