package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/chatrelay/chatrelay/internal/dispatch"
	"github.com/chatrelay/chatrelay/internal/event"
	"github.com/chatrelay/chatrelay/internal/prompt"
	"github.com/chatrelay/chatrelay/internal/provider"
	"github.com/chatrelay/chatrelay/internal/session"
	"github.com/chatrelay/chatrelay/internal/storage"
)

// fakeClock advances only when the poll loop waits.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// fakeThreads scripts the thread-based provider. GetRun walks statuses and
// repeats the last one.
type fakeThreads struct {
	mu sync.Mutex

	statuses  []string
	lastError string
	reply     provider.ThreadMessage
	noReply   bool

	createThreadErr error
	createAgentErr  error
	postErr         error
	startRunErr     error
	getRunErr       error
	// deleteAgentFailures fails that many DeleteAgent calls first.
	deleteAgentFailures int

	threadsCreated  int
	deletedThreads  []string
	agents          []provider.AgentSpec
	deleteAgentCall int
	agentsDeleted   []string
	posted          []string
	polls           int
}

func newFakeThreads(statuses ...string) *fakeThreads {
	if len(statuses) == 0 {
		statuses = []string{"completed"}
	}
	return &fakeThreads{
		statuses: statuses,
		reply:    provider.ThreadMessage{ID: "msg_reply", Role: "assistant", Text: "Hi there"},
	}
}

func (f *fakeThreads) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threadsCreated + len(f.agents) + len(f.posted) + f.polls + f.deleteAgentCall + len(f.deletedThreads)
}

func (f *fakeThreads) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createThreadErr != nil {
		return "", f.createThreadErr
	}
	f.threadsCreated++
	return fmt.Sprintf("thread_%d", f.threadsCreated), nil
}

func (f *fakeThreads) DeleteThread(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedThreads = append(f.deletedThreads, threadID)
	return nil
}

func (f *fakeThreads) CreateAgent(ctx context.Context, spec provider.AgentSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createAgentErr != nil {
		return "", f.createAgentErr
	}
	f.agents = append(f.agents, spec)
	return fmt.Sprintf("asst_%d", len(f.agents)), nil
}

func (f *fakeThreads) DeleteAgent(ctx context.Context, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteAgentCall++
	if f.deleteAgentCall <= f.deleteAgentFailures {
		return errors.New("agent busy")
	}
	f.agentsDeleted = append(f.agentsDeleted, agentID)
	return nil
}

func (f *fakeThreads) PostMessage(ctx context.Context, threadID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posted = append(f.posted, content)
	return nil
}

func (f *fakeThreads) StartRun(ctx context.Context, threadID, agentID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startRunErr != nil {
		return "", f.startRunErr
	}
	return "run_1", nil
}

func (f *fakeThreads) GetRun(ctx context.Context, threadID, runID string) (provider.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getRunErr != nil {
		return provider.Run{}, f.getRunErr
	}
	i := f.polls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.polls++
	return provider.Run{ID: runID, Status: f.statuses[i], LastError: f.lastError}, nil
}

func (f *fakeThreads) LatestMessage(ctx context.Context, threadID string) (provider.ThreadMessage, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noReply {
		return provider.ThreadMessage{}, false, nil
	}
	return f.reply, true, nil
}

// fakeCompleter records every input and replies "reply N".
type fakeCompleter struct {
	mu        sync.Mutex
	inputs    []string
	webSearch []bool
	err       error
	delay     time.Duration
}

func (f *fakeCompleter) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, req.Input)
	f.webSearch = append(f.webSearch, req.WebSearch)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("reply %d", len(f.inputs)), nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func (f *fakeCompleter) lastInput() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		return ""
	}
	return f.inputs[len(f.inputs)-1]
}

// fakePrompts resolves from maps with a "default" fallback.
type fakePrompts struct {
	system   map[string]string
	implicit map[string]string
}

func newFakePrompts() *fakePrompts {
	return &fakePrompts{
		system: map[string]string{
			"default":            "You are a helpful AI assistant.",
			"helpful":            "You are helpful",
			"research_assistant": "You research carefully.",
			"nosystem":           "",
		},
		implicit: map[string]string{},
	}
}

func (p *fakePrompts) SystemPrompt(promptType string) string {
	if s, ok := p.system[promptType]; ok {
		return s
	}
	return p.system["default"]
}

func (p *fakePrompts) ImplicitPrompt(category string) string {
	if s, ok := p.implicit[category]; ok {
		return s
	}
	return p.implicit["default"]
}

func (p *fakePrompts) PromptName(promptType string) string { return promptType }

func (p *fakePrompts) ListPrompts() map[string]string {
	out := make(map[string]string, len(p.system))
	for k := range p.system {
		out[k] = k
	}
	return out
}

func (p *fakePrompts) Welcome(mode string) prompt.Welcome {
	return prompt.Welcome{Title: "Welcome", Message: "mode " + mode}
}

// harness wires a Dispatcher to fakes and an in-memory store.
type harness struct {
	fs        afero.Fs
	store     *session.Store
	threads   *fakeThreads
	completer *fakeCompleter
	prompts   *fakePrompts
	clock     *fakeClock
	bus       *event.Bus
	d         *dispatch.Dispatcher
}

const sessionsDir = "/data/sessions"

func newHarness(threads *fakeThreads, opts dispatch.Options) *harness {
	h := &harness{
		fs:        afero.NewMemMapFs(),
		threads:   threads,
		completer: &fakeCompleter{},
		prompts:   newFakePrompts(),
		clock:     newFakeClock(),
		bus:       event.NewBus(nil),
	}
	h.store = h.openStore(h.fs)
	if opts.Clock == nil {
		opts.Clock = h.clock
	}
	if opts.ReleaseBackoff == 0 {
		opts.ReleaseBackoff = time.Millisecond
	}
	opts.Bus = h.bus
	h.d = dispatch.New(h.store, h.prompts, h.threads, h.completer, opts)
	return h
}

func (h *harness) openStore(fs afero.Fs) *session.Store {
	store, err := session.Open(context.Background(), storage.NewWithFs(fs, sessionsDir))
	if err != nil {
		panic(err)
	}
	return store
}

// reload simulates a restart and returns the store rebuilt from disk.
func (h *harness) reload() *session.Store {
	return h.openStore(h.fs)
}
