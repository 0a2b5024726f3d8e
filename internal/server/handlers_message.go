package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chatrelay/chatrelay/internal/dispatch"
	"github.com/chatrelay/chatrelay/internal/session"
	"github.com/chatrelay/chatrelay/pkg/types"
)

// SendMessageRequest represents the request body for sending a message.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// HistoryResponse lists the turns of a session in order.
type HistoryResponse struct {
	SessionID string          `json:"session_id"`
	Messages  []types.Message `json:"messages"`
}

// ExportResponse names a written export file.
type ExportResponse struct {
	Success     bool   `json:"success"`
	Filename    string `json:"filename"`
	DownloadURL string `json:"download_url"`
}

// sendMessage handles POST /api/sessions/{sessionID}/messages
//
// Remote failures are reported as 200 with success=false, matching the
// front-end contract. Unknown sessions and persistence failures get their own
// status codes.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "message is required")
		return
	}

	result := s.dispatcher.SendMessage(r.Context(), sessionID, req.Message)

	status := http.StatusOK
	switch {
	case result.Success:
	case errors.Is(result.Err, dispatch.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(result.Err, session.ErrPersistence):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, result)
}

// getHistory handles GET /api/sessions/{sessionID}/history
func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, ok := s.dispatcher.GetSession(sessionID); !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	messages := s.dispatcher.GetHistory(sessionID)
	if messages == nil {
		messages = []types.Message{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{SessionID: sessionID, Messages: messages})
}

// exportSession handles POST /api/sessions/{sessionID}/export
func (s *Server) exportSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, ok := s.dispatcher.GetSession(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	filename, err := s.exporter.Export(r.Context(), sess)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ExportResponse{
		Success:     true,
		Filename:    filename,
		DownloadURL: "/api/download/" + filename,
	})
}

// downloadExport handles GET /api/download/{filename}
func (s *Server) downloadExport(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	data, err := s.exporter.Open(r.Context(), filename)
	if err != nil {
		writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// listPrompts handles GET /api/prompts
func (s *Server) listPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"prompts": s.dispatcher.ListPrompts()})
}

// getWelcome handles GET /api/welcome?mode=
func (s *Server) getWelcome(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "default"
	}
	writeJSON(w, http.StatusOK, s.dispatcher.Welcome(mode))
}
