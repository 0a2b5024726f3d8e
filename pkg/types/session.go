// Package types provides the core data types for chatrelay.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Mode selects the provider-side conversation mechanism of a session.
type Mode string

const (
	// ModeNormal uses a provider thread that keeps the conversation state.
	ModeNormal Mode = "normal"
	// ModeSearch rebuilds the context on every call and declares a web
	// search tool.
	ModeSearch Mode = "search"
)

// ParseMode parses a mode name. Anything other than "search" is normal,
// matching how the web front-end has always treated the field.
func ParseMode(s string) Mode {
	if Mode(s) == ModeSearch {
		return ModeSearch
	}
	return ModeNormal
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeNormal || m == ModeSearch
}

// Session is one logical conversation between a user and the provider.
type Session struct {
	ID           string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	Mode         Mode      `json:"mode"`
	PromptType   string    `json:"prompt_type,omitempty"`
	SystemPrompt string    `json:"system_prompt"`
	ThreadID     *string   `json:"thread_id"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasThread reports whether a provider thread is bound to the session.
func (s *Session) HasThread() bool {
	return s.ThreadID != nil && *s.ThreadID != ""
}

// BindThread attaches a provider thread. It is a no-op for search sessions,
// which never own a thread.
func (s *Session) BindThread(threadID string) {
	if s.Mode != ModeNormal || threadID == "" {
		return
	}
	s.ThreadID = &threadID
}

// AddMessage appends msg and refreshes UpdatedAt. UpdatedAt never moves
// backwards even if now does.
func (s *Session) AddMessage(msg Message, now time.Time) {
	s.Messages = append(s.Messages, msg)
	s.Touch(now)
}

// Touch sets UpdatedAt to now unless that would lower it.
func (s *Session) Touch(now time.Time) {
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}

// Recent returns up to n messages that precede the last skip messages,
// oldest first. Only user and assistant turns are returned.
func (s *Session) Recent(n, skip int) []Message {
	end := len(s.Messages) - skip
	if end <= 0 || n <= 0 {
		return nil
	}
	var turns []Message
	for _, m := range s.Messages[:end] {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			turns = append(turns, m)
		}
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	if s.ThreadID != nil {
		id := *s.ThreadID
		c.ThreadID = &id
	}
	if s.Messages != nil {
		c.Messages = make([]Message, len(s.Messages))
		copy(c.Messages, s.Messages)
	}
	return &c
}

// MarshalJSON always emits a messages array, never null.
func (s Session) MarshalJSON() ([]byte, error) {
	type Alias Session
	aux := Alias(s)
	if aux.Messages == nil {
		aux.Messages = []Message{}
	}
	return json.Marshal(aux)
}

// UnmarshalJSON validates the record and accepts legacy timestamps.
func (s *Session) UnmarshalJSON(data []byte) error {
	type Alias Session
	aux := struct {
		*Alias
		CreatedAt string `json:"created_at"`
		UpdatedAt string `json:"updated_at"`
	}{
		Alias: (*Alias)(s),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if s.ID == "" {
		return fmt.Errorf("session record without session_id")
	}
	if !s.Mode.Valid() {
		return fmt.Errorf("session %s: invalid mode %q", s.ID, s.Mode)
	}
	var err error
	if s.CreatedAt, err = ParseTimestamp(aux.CreatedAt); err != nil {
		return fmt.Errorf("session %s created_at: %w", s.ID, err)
	}
	if s.UpdatedAt, err = ParseTimestamp(aux.UpdatedAt); err != nil {
		return fmt.Errorf("session %s updated_at: %w", s.ID, err)
	}
	if s.ThreadID != nil && *s.ThreadID == "" {
		s.ThreadID = nil
	}
	return nil
}
