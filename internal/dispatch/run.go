package dispatch

import (
	"context"
	"time"

	"github.com/chatrelay/chatrelay/internal/event"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/provider"
)

// RunState is the dispatcher's view of a remote run.
type RunState int

const (
	RunPending RunState = iota
	RunCompleted
	RunFailed
	RunTimedOut
)

func (s RunState) String() string {
	switch s {
	case RunPending:
		return "pending"
	case RunCompleted:
		return "completed"
	case RunFailed:
		return "failed"
	case RunTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// NextRunState maps a polled provider status to the next state. Statuses
// that are still moving stay pending until elapsed reaches budget; every
// other status except completed is a failure.
func NextRunState(status string, elapsed, budget time.Duration) RunState {
	switch status {
	case "completed":
		return RunCompleted
	case "queued", "in_progress", "cancelling":
		if elapsed >= budget {
			return RunTimedOut
		}
		return RunPending
	default:
		return RunFailed
	}
}

// Clock abstracts time for the poll loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// waitForRun polls the run until it leaves the pending state. A polling
// error or a done ctx ends the wait with RunFailed and that error.
func (d *Dispatcher) waitForRun(ctx context.Context, sessionID, threadID, runID string) (provider.Run, RunState, error) {
	start := d.clock.Now()
	var run provider.Run
	for {
		if err := ctx.Err(); err != nil {
			return run, RunFailed, err
		}
		var err error
		run, err = d.threads.GetRun(ctx, threadID, runID)
		if err != nil {
			return run, RunFailed, err
		}
		state := NextRunState(run.Status, d.clock.Now().Sub(start), d.opts.MaxWait)

		logging.Debug().
			Str("session", sessionID).
			Str("run", runID).
			Str("status", run.Status).
			Stringer("state", state).
			Msg("run polled")
		d.publish(event.Event{
			Type:      event.RunStatus,
			SessionID: sessionID,
			Data:      event.RunData{RunID: runID, Status: run.Status, State: state.String()},
		})

		if state != RunPending {
			return run, state, nil
		}
		select {
		case <-ctx.Done():
			return run, RunFailed, ctx.Err()
		case <-d.clock.After(d.opts.PollInterval):
		}
	}
}
