package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/uiharness/uiharness/internal/devices"
	"github.com/uiharness/uiharness/internal/launch"
	"github.com/uiharness/uiharness/internal/results"
	"github.com/uiharness/uiharness/internal/tracelog"
)

const (
	DefaultAttempts       = 5
	DefaultStartupTimeout = 30 * time.Second
)

// Config is immutable for the lifetime of a Runner.
type Config struct {
	Launch         launch.Spec
	Attempts       int           // spawn attempts per Run, default 5
	StartupTimeout time.Duration // bounded wait for the next output line, default 30s
	MaxSilence     time.Duration // tolerated silence after start detection; 0 disables
}

// Status is the final outcome of one Run call. Normal reports whether the
// most recent attempt ended without an explicit failure trigger.
type Status struct {
	Normal      bool
	FatalError  bool
	FatalReason string
}

// state is owned exclusively by the Runner and reset at the start of every
// Run call. Listeners mutate it only through the EventSink transitions.
type state struct {
	fullyStarted bool
	stopRetrying bool
	shouldAbort  bool
	fatalError   bool
	fatalReason  string
	resetAll     bool
	remaining    int
}

type Runner struct {
	cfg       Config
	control   devices.Controller
	listeners []Listener
	start     StartFunc
	st        state
}

func New(cfg Config, control devices.Controller) *Runner {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = DefaultStartupTimeout
	}
	return &Runner{cfg: cfg, control: control, start: StartSession}
}

// WithStartFunc replaces the session spawner. This method exists for unit
// testing only.
func (r *Runner) WithStartFunc(f StartFunc) *Runner {
	r.start = f
	return r
}

// AddListener registers l. Lines are dispatched in registration order.
func (r *Runner) AddListener(l Listener) {
	r.listeners = append(r.listeners, l)
}

// StartDetected implements EventSink. A started run is never retried:
// whatever happens next, this was the run that counted.
func (r *Runner) StartDetected() {
	r.st.fullyStarted = true
	r.st.stopRetrying = true
}

// StopDetected implements EventSink.
func (r *Runner) StopDetected(fatal bool, reason string) {
	if fatal {
		r.st.fatalError = true
		r.st.fatalReason = reason
	} else {
		r.st.shouldAbort = true
	}
}

// IntermittentFailureDetected implements EventSink. The attempt ends and the
// retry loop stops without the run counting as started.
func (r *Runner) IntermittentFailureDetected(reason string) {
	slog.Warn("intermittent failure detected, not retrying", "reason", reason)
	r.st.stopRetrying = true
	r.st.shouldAbort = true
}

// TraceErrorDetected implements EventSink.
func (r *Runner) TraceErrorDetected(fatal bool, reason string) {
	if fatal {
		r.st.fatalError = true
		r.st.fatalReason = reason
	} else {
		r.st.resetAll = true
	}
}

// cancelled folds external context cancellation into the same cooperative
// flags the detectors use.
func (r *Runner) cancelled() {
	r.st.shouldAbort = true
	r.st.stopRetrying = true
}

// Run executes the automation tool until it fully starts and finishes, a
// fatal condition is reported, or the attempts are exhausted. saltinel is
// the opaque token the start detector matches against the output stream; it
// is injected into the launch command. Run never returns an error: expected
// subprocess-lifecycle conditions are absorbed into the returned Status.
func (r *Runner) Run(ctx context.Context, saltinel string) Status {
	r.st = state{remaining: r.cfg.Attempts}

	spec := r.cfg.Launch
	spec.Saltinel = saltinel
	command := spec.CommandLine()

	if dir := spec.ResultsDir; dir != "" {
		restore, err := results.Enter(dir)
		if err != nil {
			slog.WarnContext(ctx, "cannot enter results directory, staying put", "dir", dir, "error", err)
		} else {
			defer func() {
				if err := restore(); err != nil {
					slog.WarnContext(ctx, "restoring working directory", "error", err)
				}
			}()
		}
	}

	successful := true
	for !r.st.fatalError && !r.st.stopRetrying && r.st.remaining > 0 {
		r.st.remaining--
		r.st.resetAll = false
		r.st.shouldAbort = false
		successful = r.attempt(ctx, command)
	}

	return Status{
		Normal:      successful,
		FatalError:  r.st.fatalError,
		FatalReason: r.st.fatalReason,
	}
}

// attempt is one spawn-and-observe cycle. It reports whether the attempt
// ended without an explicit failure trigger.
func (r *Runner) attempt(ctx context.Context, command string) bool {
	if err := r.control.TerminateAutomation(ctx); err != nil {
		slog.WarnContext(ctx, "terminating stray automation processes", "error", err)
	}

	sess, err := r.start(ctx, command)
	if err != nil {
		slog.ErrorContext(ctx, "spawning automation tool", "error", err)
		return false
	}

	successful := true
	var silence time.Duration

read:
	for {
		switch {
		case r.st.shouldAbort || r.st.fatalError:
			successful = false
			break read

		case r.st.resetAll:
			successful = false
			sess.Terminate()
			if r.cfg.Launch.SimulatorTarget() {
				r.resetSimulator(ctx)
			}
			break read
		}

		select {
		case ev, ok := <-sess.Lines():
			if !ok {
				// clean end of stream: the attempt simply ended
				break read
			}
			if ev.Err != nil {
				// abrupt subprocess death; when the run never started
				// the outer loop may still retry
				slog.WarnContext(ctx, "automation tool died", "error", ev.Err, "started", r.st.fullyStarted)
				successful = false
				break read
			}
			msg := tracelog.Parse(ev.Line)
			for _, l := range r.listeners {
				l.Receive(msg)
			}

		case <-ctx.Done():
			r.cancelled()

		case <-time.After(r.cfg.StartupTimeout):
			if !r.st.fullyStarted {
				// never-started timeout
				successful = false
				sess.Terminate()
				r.terminateSimulator(ctx)
				break read
			}
			silence += r.cfg.StartupTimeout
			if r.cfg.MaxSilence > 0 && silence > r.cfg.MaxSilence {
				r.st.shouldAbort = true // handled on the next pass
			}
		}
	}

	sess.Terminate() // idempotent; reaps the child on every exit path

	for _, l := range r.listeners {
		l.AttemptFinished()
	}
	return successful
}

func (r *Runner) terminateSimulator(ctx context.Context) {
	if err := r.control.TerminateSimulator(ctx); err != nil {
		slog.WarnContext(ctx, "terminating simulator processes", "error", err)
	}
}

func (r *Runner) resetSimulator(ctx context.Context) {
	if err := r.control.ResetSimulator(ctx); err != nil {
		slog.WarnContext(ctx, "resetting simulator", "error", err)
	}
}
