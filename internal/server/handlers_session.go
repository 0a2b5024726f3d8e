package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatrelay/chatrelay/internal/dispatch"
	"github.com/chatrelay/chatrelay/internal/prompt"
	"github.com/chatrelay/chatrelay/pkg/types"
)

// CreateSessionRequest represents the request body for creating a session.
type CreateSessionRequest struct {
	PromptType string `json:"prompt_type"`
	Mode       string `json:"mode"`
	UserID     string `json:"user_id,omitempty"`
}

// CreateSessionResponse describes a newly created session.
type CreateSessionResponse struct {
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
	Mode       string `json:"mode"`
	PromptType string `json:"prompt_type"`
	PromptName string `json:"prompt_name"`
}

// PresetResponse is returned when an interface preset opens a session.
type PresetResponse struct {
	CreateSessionResponse
	Preset  string         `json:"preset"`
	Welcome prompt.Welcome `json:"welcome"`
}

// SessionSummary is the list form of a session.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	Mode         string    `json:"mode"`
	PromptType   string    `json:"prompt_type,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Server) describe(sess *types.Session) CreateSessionResponse {
	return CreateSessionResponse{
		SessionID:  sess.ID,
		UserID:     sess.UserID,
		Mode:       string(sess.Mode),
		PromptType: sess.PromptType,
		PromptName: s.dispatcher.PromptName(sess.PromptType),
	}
}

// parseMode accepts an empty mode as normal and rejects unknown names.
func parseMode(s string) (types.Mode, error) {
	if s == "" {
		return types.ModeNormal, nil
	}
	m := types.Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": s.status,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// openPreset handles GET /chat/{preset}
func (s *Server) openPreset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "preset")
	p, ok := dispatch.LookupPreset(name)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeUnknownPreset, fmt.Sprintf("unknown preset %q", name))
		return
	}

	sess, err := s.dispatcher.CreateSession(r.Context(), "", p.PromptType, p.Mode)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, PresetResponse{
		CreateSessionResponse: s.describe(sess),
		Preset:                p.Name,
		Welcome:               s.dispatcher.Welcome(p.Name),
	})
}

// listSessions handles GET /api/sessions?user_id=
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "user_id is required")
		return
	}

	sessions := s.dispatcher.ListUserSessions(userID)

	// Ensure we return an empty array [] instead of null
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, SessionSummary{
			SessionID:    sess.ID,
			UserID:       sess.UserID,
			Mode:         string(sess.Mode),
			PromptType:   sess.PromptType,
			MessageCount: len(sess.Messages),
			CreatedAt:    sess.CreatedAt,
			UpdatedAt:    sess.UpdatedAt,
		})
	}

	writeJSON(w, http.StatusOK, summaries)
}

// createSession handles POST /api/sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	mode, err := parseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}
	promptType := req.PromptType
	if promptType == "" {
		promptType = prompt.DefaultKey
	}

	sess, err := s.dispatcher.CreateSession(r.Context(), req.UserID, promptType, mode)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.describe(sess))
}

// getSession handles GET /api/sessions/{sessionID}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, ok := s.dispatcher.GetSession(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// deleteSession handles DELETE /api/sessions/{sessionID}
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	removed, err := s.dispatcher.DeleteSession(r.Context(), sessionID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}

	writeSuccess(w)
}
