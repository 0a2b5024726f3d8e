package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chatrelay/chatrelay/internal/dispatch"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/provider"
	"github.com/chatrelay/chatrelay/internal/session"
	"github.com/chatrelay/chatrelay/internal/storage"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeProviderError   = "PROVIDER_ERROR"
	ErrCodeNotConfigured   = "NOT_CONFIGURED"
	ErrCodePersistence     = "PERSISTENCE_ERROR"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeUnknownPreset   = "UNKNOWN_PRESET"
	ErrCodeInvalidFilename = "INVALID_FILENAME"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Debug().Err(err).Msg("write response")
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeFailure maps err onto a status code and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err.Error())
}

// writeSuccess writes a success response.
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// classify returns the HTTP status and error code for err.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, dispatch.ErrSessionNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, session.ErrInvalidExport):
		return http.StatusBadRequest, ErrCodeInvalidFilename
	case errors.Is(err, session.ErrPersistence):
		return http.StatusInternalServerError, ErrCodePersistence
	case errors.Is(err, provider.ErrNotConfigured):
		return http.StatusServiceUnavailable, ErrCodeNotConfigured
	case errors.Is(err, dispatch.ErrRemoteInvocation):
		return http.StatusBadGateway, ErrCodeProviderError
	}
	return http.StatusInternalServerError, ErrCodeInternalError
}
