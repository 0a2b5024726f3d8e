// Package dispatch owns the session lifecycle and routes every user message
// to the provider mechanism matching the session mode: a provider thread run
// for normal sessions, a single completion with flattened context for search
// sessions.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/chatrelay/chatrelay/internal/event"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/prompt"
	"github.com/chatrelay/chatrelay/internal/provider"
	"github.com/chatrelay/chatrelay/internal/session"
	"github.com/chatrelay/chatrelay/internal/storage"
	"github.com/chatrelay/chatrelay/pkg/types"
)

// Defaults for Options fields left zero.
const (
	DefaultPollInterval   = time.Second
	DefaultMaxWait        = 60 * time.Second
	DefaultHistoryWindow  = 10
	DefaultAgentModel     = "gpt-4o"
	DefaultAgentName      = "Chat Assistant"
	DefaultReleaseRetries = 3
)

// PromptResolver supplies prompt text by key. Unknown keys resolve to the
// default entry.
type PromptResolver interface {
	ImplicitResolver
	SystemPrompt(promptType string) string
	PromptName(promptType string) string
	ListPrompts() map[string]string
	Welcome(mode string) prompt.Welcome
}

// Options tunes a Dispatcher.
type Options struct {
	PollInterval  time.Duration
	MaxWait       time.Duration
	HistoryWindow int
	AgentModel    string
	AgentName     string
	// ReleaseRetries bounds the retries of a failed agent release. Zero
	// means DefaultReleaseRetries; a negative value disables retries.
	ReleaseRetries int
	// ReleaseBackoff is the first retry interval of an agent release.
	ReleaseBackoff time.Duration

	Clock Clock
	Bus   *event.Bus
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = DefaultHistoryWindow
	}
	if o.AgentModel == "" {
		o.AgentModel = DefaultAgentModel
	}
	if o.AgentName == "" {
		o.AgentName = DefaultAgentName
	}
	switch {
	case o.ReleaseRetries == 0:
		o.ReleaseRetries = DefaultReleaseRetries
	case o.ReleaseRetries < 0:
		o.ReleaseRetries = 0
	}
	if o.ReleaseBackoff <= 0 {
		o.ReleaseBackoff = 200 * time.Millisecond
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
	return o
}

// Dispatcher is the entry point for every session operation.
type Dispatcher struct {
	store     *session.Store
	prompts   PromptResolver
	threads   provider.ThreadClient
	completer provider.Completer
	opts      Options
	clock     Clock
	bus       *event.Bus

	// locks serializes operations on the same session id.
	locks *storage.Locker
}

// New creates a Dispatcher. threads serves normal sessions and completer
// serves search sessions.
func New(store *session.Store, prompts PromptResolver, threads provider.ThreadClient, completer provider.Completer, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		store:     store,
		prompts:   prompts,
		threads:   threads,
		completer: completer,
		opts:      opts,
		clock:     opts.Clock,
		bus:       opts.Bus,
		locks:     storage.NewLocker(),
	}
}

func (d *Dispatcher) now() time.Time {
	return d.clock.Now().UTC()
}

func (d *Dispatcher) newMessage(role types.Role, content string) types.Message {
	return types.Message{
		ID:        ulid.Make().String(),
		Role:      role,
		Content:   content,
		Timestamp: d.now(),
	}
}

func (d *Dispatcher) publish(e event.Event) {
	if err := d.bus.Publish(e); err != nil {
		logging.Warn().Err(err).Str("type", string(e.Type)).Msg("event publish failed")
	}
}

// CreateSession resolves the system prompt for promptType and creates a
// session. Normal sessions get a provider thread before the first write. An
// empty userID is replaced by a fresh one.
func (d *Dispatcher) CreateSession(ctx context.Context, userID, promptType string, mode types.Mode) (*types.Session, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid mode %q", mode)
	}
	if userID == "" {
		userID = uuid.NewString()
	}
	systemPrompt := d.prompts.SystemPrompt(promptType)

	var threadID *string
	if mode == types.ModeNormal {
		id, err := d.threads.CreateThread(ctx)
		if err != nil {
			return nil, remoteErr("create thread", err)
		}
		threadID = &id
	}

	sess, err := d.store.Create(ctx, ulid.Make().String(), userID, mode, promptType, systemPrompt, threadID)
	if err != nil {
		if threadID != nil {
			d.deleteThread(ctx, *threadID)
		}
		return nil, err
	}

	logging.Info().
		Str("session", sess.ID).
		Str("user", userID).
		Str("mode", string(mode)).
		Str("prompt", promptType).
		Msg("session created")
	d.publish(event.Event{
		Type:      event.SessionCreated,
		SessionID: sess.ID,
		Data:      event.SessionData{UserID: userID, Mode: string(mode)},
	})
	return sess, nil
}

// SendMessage sends text to the session's provider mechanism and records
// both turns. It never returns a Go error: the outcome is in the Result.
//
// On failure the user turn is still persisted so it can be retried, and no
// assistant turn is recorded.
func (d *Dispatcher) SendMessage(ctx context.Context, sessionID, text string) Result {
	unlock := d.locks.Lock(sessionID)
	defer unlock()

	sess, ok := d.store.Get(sessionID)
	if !ok {
		return failed(sessionID, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID))
	}

	enhanced := Enhance(text, sess, d.prompts)
	userMsg := d.newMessage(types.RoleUser, text)
	sess.AddMessage(userMsg, userMsg.Timestamp)

	var reply string
	var err error
	switch sess.Mode {
	case types.ModeSearch:
		reply, err = d.sendSearch(ctx, sess, enhanced)
	default:
		reply, err = d.sendNormal(ctx, sess, enhanced)
	}

	// Persist even when ctx was cancelled mid-turn.
	persistCtx := context.WithoutCancel(ctx)

	if err != nil {
		logging.Warn().Err(err).Str("session", sessionID).Str("mode", string(sess.Mode)).Msg("message failed")
		if perr := d.store.Update(persistCtx, sess); perr != nil {
			logging.Error().Err(perr).Str("session", sessionID).Msg("failed to persist user turn")
		} else {
			d.publishMessage(sessionID, userMsg)
		}
		d.publish(event.Event{
			Type:      event.MessageFailed,
			SessionID: sessionID,
			Data:      event.FailureData{Error: err.Error()},
		})
		return failed(sessionID, err)
	}

	assistantMsg := d.newMessage(types.RoleAssistant, reply)
	sess.AddMessage(assistantMsg, assistantMsg.Timestamp)
	if err := d.store.Update(persistCtx, sess); err != nil {
		logging.Error().Err(err).Str("session", sessionID).Msg("failed to persist turn")
		return failed(sessionID, err)
	}

	d.publishMessage(sessionID, userMsg)
	d.publishMessage(sessionID, assistantMsg)
	return succeeded(sessionID, reply)
}

func (d *Dispatcher) publishMessage(sessionID string, msg types.Message) {
	d.publish(event.Event{
		Type:      event.MessageCreated,
		SessionID: sessionID,
		Data:      event.MessageData{MessageID: msg.ID, Role: string(msg.Role), Content: msg.Content},
	})
}

// sendNormal runs one turn on the session's thread with a transient agent
// carrying the system prompt.
func (d *Dispatcher) sendNormal(ctx context.Context, sess *types.Session, enhanced string) (string, error) {
	if !sess.HasThread() {
		threadID, err := d.threads.CreateThread(ctx)
		if err != nil {
			return "", remoteErr("create thread", err)
		}
		sess.BindThread(threadID)
		logging.Info().Str("session", sess.ID).Str("thread", threadID).Msg("opened thread for session without one")
	}
	threadID := *sess.ThreadID

	agentID, err := d.threads.CreateAgent(ctx, provider.AgentSpec{
		Model:        d.opts.AgentModel,
		Name:         d.opts.AgentName,
		Instructions: sess.SystemPrompt,
	})
	if err != nil {
		return "", remoteErr("create agent", err)
	}
	defer d.releaseAgent(ctx, sess.ID, agentID)

	if err := d.threads.PostMessage(ctx, threadID, enhanced); err != nil {
		return "", remoteErr("post message", err)
	}
	runID, err := d.threads.StartRun(ctx, threadID, agentID)
	if err != nil {
		return "", remoteErr("start run", err)
	}

	run, state, err := d.waitForRun(ctx, sess.ID, threadID, runID)
	if err != nil {
		return "", remoteErr("poll run", err)
	}
	switch state {
	case RunCompleted:
	case RunTimedOut:
		return "", fmt.Errorf("%w: run timed out after %s (last status: %s)", ErrRemoteInvocation, d.opts.MaxWait, run.Status)
	default:
		if run.LastError != "" {
			return "", fmt.Errorf("%w: run failed with status: %s: %s", ErrRemoteInvocation, run.Status, run.LastError)
		}
		return "", fmt.Errorf("%w: run failed with status: %s", ErrRemoteInvocation, run.Status)
	}

	msg, ok, err := d.threads.LatestMessage(ctx, threadID)
	if err != nil {
		return "", remoteErr("read reply", err)
	}
	if !ok || msg.Role != string(types.RoleAssistant) || msg.Text == "" {
		return "", fmt.Errorf("%w: run completed without an assistant reply", ErrRemoteInvocation)
	}
	return msg.Text, nil
}

// sendSearch runs one stateless completion over the flattened context.
func (d *Dispatcher) sendSearch(ctx context.Context, sess *types.Session, enhanced string) (string, error) {
	// The current user turn is already appended; skip it in the history.
	history := sess.Recent(d.opts.HistoryWindow, 1)
	input := BuildSearchContext(sess.SystemPrompt, history, enhanced)

	reply, err := d.completer.Complete(ctx, provider.CompletionRequest{
		Input:     input,
		WebSearch: true,
	})
	if err != nil {
		return "", remoteErr("completion", err)
	}
	return reply, nil
}

// releaseAgent deletes a transient agent, retrying with backoff. Failures
// are logged and never change the outcome of the turn.
func (d *Dispatcher) releaseAgent(ctx context.Context, sessionID, agentID string) {
	ctx = context.WithoutCancel(ctx)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.ReleaseBackoff
	b.MaxInterval = 10 * d.opts.ReleaseBackoff

	attempt := 0
	err := backoff.RetryNotify(
		func() error {
			attempt++
			return d.threads.DeleteAgent(ctx, agentID)
		},
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.opts.ReleaseRetries)), ctx),
		func(err error, next time.Duration) {
			logging.Debug().Err(err).Str("agent", agentID).Int("attempt", attempt).Dur("retry_in", next).Msg("agent release failed, retrying")
		},
	)
	if err != nil {
		logging.Warn().Err(err).Str("session", sessionID).Str("agent", agentID).Msg("failed to release agent")
	}
}

func (d *Dispatcher) deleteThread(ctx context.Context, threadID string) {
	if err := d.threads.DeleteThread(context.WithoutCancel(ctx), threadID); err != nil {
		logging.Warn().Err(err).Str("thread", threadID).Msg("failed to delete thread")
	}
}

// GetSession returns a copy of the session.
func (d *Dispatcher) GetSession(sessionID string) (*types.Session, bool) {
	return d.store.Get(sessionID)
}

// GetHistory returns the session's messages, or nil for unknown ids.
func (d *Dispatcher) GetHistory(sessionID string) []types.Message {
	sess, ok := d.store.Get(sessionID)
	if !ok {
		return nil
	}
	return sess.Messages
}

// DeleteSession removes the session and its record, then deletes its
// provider thread best-effort. It reports whether the session existed.
func (d *Dispatcher) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	unlock := d.locks.Lock(sessionID)
	defer unlock()

	sess, found := d.store.Get(sessionID)
	removed, err := d.store.Delete(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	if found && sess.HasThread() {
		d.deleteThread(ctx, *sess.ThreadID)
	}

	logging.Info().Str("session", sessionID).Msg("session deleted")
	data := event.SessionData{}
	if found {
		data = event.SessionData{UserID: sess.UserID, Mode: string(sess.Mode)}
	}
	d.publish(event.Event{Type: event.SessionDeleted, SessionID: sessionID, Data: data})
	return true, nil
}

// ListPrompts maps system prompt types to display names.
func (d *Dispatcher) ListPrompts() map[string]string {
	return d.prompts.ListPrompts()
}

// ListUserSessions returns the sessions owned by userID.
func (d *Dispatcher) ListUserSessions(userID string) []*types.Session {
	return d.store.ListByUser(userID)
}

// Welcome returns the greeting for an interface mode.
func (d *Dispatcher) Welcome(mode string) prompt.Welcome {
	return d.prompts.Welcome(mode)
}

// PromptName returns the display name of a prompt type.
func (d *Dispatcher) PromptName(promptType string) string {
	return d.prompts.PromptName(promptType)
}

// IsNotFound reports whether err means an unknown session.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
