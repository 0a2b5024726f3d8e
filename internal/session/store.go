package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/storage"
	"github.com/chatrelay/chatrelay/pkg/types"
)

var (
	// ErrPersistence wraps every failed durable write or removal.
	ErrPersistence = errors.New("session persistence failed")
	// ErrExists is returned by Create for an id that is already registered.
	ErrExists = errors.New("session already exists")
	// ErrInvalidID is returned for ids that cannot name a record file.
	ErrInvalidID = errors.New("invalid session id")
	// ErrNotFound is returned by Update for a session that is not registered.
	ErrNotFound = errors.New("session not found")
)

// Store is the process-wide session table backed by one record per session.
type Store struct {
	storage *storage.Storage
	now     func() time.Time
	locks   *storage.Locker // per session id, held across check, write and register

	mu       sync.RWMutex
	sessions map[string]*types.Session
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open creates a Store on st and loads every record found there. Records
// that cannot be read or parsed are logged and skipped.
func Open(ctx context.Context, st *storage.Storage, opts ...Option) (*Store, error) {
	s := &Store{
		storage:  st,
		now:      time.Now,
		locks:    storage.NewLocker(),
		sessions: make(map[string]*types.Session),
	}
	for _, opt := range opts {
		opt(s)
	}

	skipped := 0
	err := st.Scan(ctx, nil, func(key string, data json.RawMessage, readErr error) error {
		if readErr != nil {
			logging.Warn().Err(readErr).Str("record", key).Msg("skipping unreadable session record")
			skipped++
			return nil
		}
		sess, err := Decode(data)
		if err != nil {
			logging.Warn().Err(err).Str("record", key).Msg("skipping invalid session record")
			skipped++
			return nil
		}
		if sess.ID != key {
			logging.Warn().Str("record", key).Str("session", sess.ID).Msg("skipping session record with mismatched id")
			skipped++
			return nil
		}
		s.sessions[sess.ID] = sess
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load sessions from %s: %w", st.BasePath(), err)
	}

	logging.Info().
		Int("sessions", len(s.sessions)).
		Int("skipped", skipped).
		Str("dir", st.BasePath()).
		Msg("session store loaded")
	return s, nil
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// Create builds a session with no messages, writes its record and only then
// registers it. threadID is ignored for search sessions.
func (s *Store) Create(ctx context.Context, id, userID string, mode types.Mode, promptType, systemPrompt string, threadID *string) (*types.Session, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid mode %q", mode)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	if s.registered(id) {
		return nil, fmt.Errorf("%w: %s", ErrExists, id)
	}

	now := s.clock()
	sess := &types.Session{
		ID:           id,
		UserID:       userID,
		Mode:         mode,
		PromptType:   promptType,
		SystemPrompt: systemPrompt,
		Messages:     []types.Message{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if threadID != nil {
		sess.BindThread(*threadID)
	}

	if err := s.write(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrPersistence, id, err)
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	logging.Debug().Str("session", id).Str("mode", string(mode)).Msg("session created")
	return sess.Clone(), nil
}

func (s *Store) registered(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[id]
	return ok
}

func (s *Store) write(ctx context.Context, sess *types.Session) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	return s.storage.PutRaw(ctx, []string{sess.ID}, data)
}

// Get returns a copy of the session, or false if it does not exist.
func (s *Store) Get(id string) (*types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// Update refreshes updated_at, rewrites the full record and re-registers the
// session. If the write fails the stored version is unchanged and sess keeps
// its previous updated_at. A session deleted since it was read is not
// written back; Update returns ErrNotFound.
func (s *Store) Update(ctx context.Context, sess *types.Session) error {
	if sess == nil || !validID(sess.ID) {
		return ErrInvalidID
	}
	unlock := s.locks.Lock(sess.ID)
	defer unlock()

	if !s.registered(sess.ID) {
		return fmt.Errorf("%w: %s", ErrNotFound, sess.ID)
	}
	next := sess.Clone()
	next.Touch(s.clock())

	if err := s.write(ctx, next); err != nil {
		return fmt.Errorf("%w: update %s: %w", ErrPersistence, next.ID, err)
	}

	s.mu.Lock()
	s.sessions[next.ID] = next
	s.mu.Unlock()

	sess.UpdatedAt = next.UpdatedAt
	return nil
}

// Delete removes the session and its record. It reports whether either
// existed; unknown ids are not an error.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	removed, err := s.storage.Delete(ctx, []string{id})
	if err != nil {
		return false, fmt.Errorf("%w: delete %s: %w", ErrPersistence, id, err)
	}

	s.mu.Lock()
	_, inMemory := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	return removed || inMemory, nil
}

// ListByUser returns copies of the sessions owned by userID, most recently
// updated first.
func (s *Store) ListByUser(userID string) []*types.Session {
	return s.filter(func(sess *types.Session) bool { return sess.UserID == userID })
}

// List returns copies of every session, most recently updated first.
func (s *Store) List() []*types.Session {
	return s.filter(func(*types.Session) bool { return true })
}

func (s *Store) filter(keep func(*types.Session) bool) []*types.Session {
	s.mu.RLock()
	out := make([]*types.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if keep(sess) {
			out = append(out, sess.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
