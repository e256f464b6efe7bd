package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"forestlog/internal/progression"
	"forestlog/internal/service"
)

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: message}})
}

// writeServiceError renders an engine error with the status its kind maps to.
// Storage details stay in the logs; clients only see the kind and whether to retry.
func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
		return
	}
	var pe *progression.Error
	if !errors.As(err, &pe) {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error")
		return
	}
	status := http.StatusInternalServerError
	message := pe.Message
	switch pe.Kind {
	case progression.KindValidation, progression.KindOutOfOrder:
		status = http.StatusBadRequest
	case progression.KindForbidden:
		status = http.StatusForbidden
	case progression.KindNotFound:
		status = http.StatusNotFound
		message = "Not found"
	case progression.KindConflict:
		status = http.StatusConflict
		message = "Concurrent update, try again"
	case progression.KindPersistence:
		status = http.StatusServiceUnavailable
		message = "Storage unavailable, try again"
	case progression.KindCanceled:
		status = http.StatusServiceUnavailable
		message = "Request canceled before commit, try again"
	}
	writeJSON(w, status, errorResponse{Error: apiError{
		Code:      string(pe.Kind),
		Message:   message,
		Retryable: progression.Retryable(err),
	}})
}
