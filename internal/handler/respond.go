package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kopi-pos/api/internal/middleware"
	"github.com/kopi-pos/api/internal/models"
	"github.com/kopi-pos/api/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto HTTP statuses. Only 5xx responses are
// logged; 4xx bodies carry the domain message back to the client.
func writeError(w http.ResponseWriter, log zerolog.Logger, op string, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"

	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInsufficientFunds):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrStateTransition), errors.Is(err, models.ErrPromotionInapplicable):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrPersistence), errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusServiceUnavailable, "storage temporarily unavailable"
		var pe *service.PersistenceError
		if !errors.As(err, &pe) || pe.Retryable() {
			w.Header().Set("Retry-After", "1")
		}
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("op", op).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// pathID parses a positive integer URL parameter.
func pathID(w http.ResponseWriter, r *http.Request, name, label string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + label + " ID"})
		return 0, false
	}
	return id, true
}

func operator(w http.ResponseWriter, r *http.Request) (models.Operator, bool) {
	op, ok := middleware.OperatorFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
	}
	return op, ok
}
