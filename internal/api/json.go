package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/localnative/localnative/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Kind  string `json:"kind,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(kind string) int {
	switch kind {
	case "decode":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "version_mismatch", "upgrade_in_progress", "schema":
		return http.StatusConflict
	case "io":
		return http.StatusServiceUnavailable
	case "cancelled":
		return 499
	}
	return http.StatusInternalServerError
}

// writeError renders err with its taxonomy kind. Internal failures are
// logged and hidden from the client.
func writeError(w http.ResponseWriter, op string, err error) {
	kind := apperr.Kind(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError && !errors.Is(err, apperr.ErrInternal) {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "internal error", Kind: kind})
		return
	}
	writeJSON(w, status, errResponse{Error: err.Error(), Kind: kind})
}
