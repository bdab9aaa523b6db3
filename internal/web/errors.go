package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"chessinsight/internal/db"
	"chessinsight/internal/lichess"
	"chessinsight/internal/syncer"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}

// classify maps a service error to a status code and a short error code.
func classify(err error) (int, string) {
	var apiErr *lichess.APIError
	switch {
	case errors.Is(err, syncer.ErrEmptyID):
		return http.StatusBadRequest, "empty_id"
	case errors.Is(err, syncer.ErrUnknownUser):
		return http.StatusNotFound, "unknown_user"
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, lichess.ErrRateLimited):
		return http.StatusServiceUnavailable, "lichess_rate_limited"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "lichess_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}

func (h *Handler) apiFail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= 500 {
		h.log.Error("api request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeAPIError(w, status, code, http.StatusText(status))
		return
	}
	writeAPIError(w, status, code, err.Error())
}

func (h *Handler) pageFail(w http.ResponseWriter, r *http.Request, id string, err error) {
	status, _ := classify(err)
	message := err.Error()
	switch {
	case errors.Is(err, syncer.ErrUnknownUser):
		message = "No Lichess user named \"" + id + "\"."
	case status >= 500:
		h.log.Error("page request failed", zap.String("path", r.URL.Path), zap.Error(err))
		message = "Something went wrong while loading this page."
	}
	h.render(w, status, "error.html", map[string]any{
		"Title":     http.StatusText(status),
		"LichessID": id,
		"Status":    status,
		"Message":   message,
	})
}
