package runner_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/uiharness/uiharness/internal/launch"
	"github.com/uiharness/uiharness/internal/runner"
	"github.com/uiharness/uiharness/internal/tracelog"

	"github.com/stretchr/testify/require"
)

const tick = 10 * time.Millisecond

// scriptSession replays a fixed sequence of read events. With keepOpen the
// stream stays readable-but-silent after the last event, which is what
// drives the runner into its timeout paths.
type scriptSession struct {
	lines      chan runner.ReadEvent
	terminated bool
}

func newScript(keepOpen bool, events ...runner.ReadEvent) *scriptSession {
	s := &scriptSession{lines: make(chan runner.ReadEvent, len(events)+1)}
	for _, ev := range events {
		s.lines <- ev
	}
	if !keepOpen {
		close(s.lines)
	}
	return s
}

func (s *scriptSession) Lines() <-chan runner.ReadEvent { return s.lines }

func (s *scriptSession) Terminate() runner.TermOutcome {
	s.terminated = true
	return runner.TermKilled
}

// spawner hands out scripted sessions one per attempt and records the
// command lines it was asked to run.
type spawner struct {
	sessions []*scriptSession
	commands []string
}

func (f *spawner) start(_ context.Context, command string) (runner.Session, error) {
	f.commands = append(f.commands, command)
	if len(f.commands) > len(f.sessions) {
		return nil, fmt.Errorf("no scripted session for attempt %d", len(f.commands))
	}
	return f.sessions[len(f.commands)-1], nil
}

type fakeControl struct {
	autoKills int
	simKills  int
	simResets int
}

func (c *fakeControl) TerminateAutomation(context.Context) error { c.autoKills++; return nil }
func (c *fakeControl) TerminateSimulator(context.Context) error  { c.simKills++; return nil }
func (c *fakeControl) ResetSimulator(context.Context) error      { c.simResets++; return nil }

// detector is a scriptable listener that reports back through the event
// sink, the way real start/stop/trace-error detectors do.
type detector struct {
	onReceive func(msg tracelog.Message, sink runner.EventSink)
	sink      runner.EventSink
	received  []tracelog.Message
	finished  int
}

func (d *detector) Receive(msg tracelog.Message) {
	d.received = append(d.received, msg)
	if d.onReceive != nil {
		d.onReceive(msg, d.sink)
	}
}

func (d *detector) AttemptFinished() { d.finished++ }

func line(label, text string) runner.ReadEvent {
	return runner.ReadEvent{Line: "2014-07-21 14:03:09 +0200 " + label + ": " + text}
}

func newRunner(t *testing.T, cfg runner.Config, control *fakeControl, sessions ...*scriptSession) (*runner.Runner, *spawner, *detector) {
	t.Helper()
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = tick
	}
	sp := &spawner{sessions: sessions}
	r := runner.New(cfg, control).WithStartFunc(sp.start)
	d := &detector{sink: r}
	r.AddListener(d)
	return r, sp, d
}

func TestAllAttemptsTimeOut(t *testing.T) {
	t.Parallel()
	control := &fakeControl{}
	r, sp, d := newRunner(t, runner.Config{Attempts: 3}, control,
		newScript(true), newScript(true), newScript(true))

	status := r.Run(t.Context(), "tok-1")

	require.Len(t, sp.commands, 3, "every attempt spawns exactly once")
	require.False(t, status.Normal)
	require.False(t, status.FatalError)
	require.Empty(t, status.FatalReason)
	require.Equal(t, 3, d.finished, "AttemptFinished once per spawned attempt")
	require.Equal(t, 3, control.autoKills, "stray kill before every spawn")
	require.Equal(t, 3, control.simKills, "simulator terminated on every startup timeout")
	require.Zero(t, control.simResets)
	for _, s := range sp.sessions {
		require.True(t, s.terminated)
	}
}

func TestSaltinelInjectedIntoCommand(t *testing.T) {
	t.Parallel()
	r, sp, _ := newRunner(t, runner.Config{Attempts: 1}, &fakeControl{}, newScript(false))

	r.Run(t.Context(), "cafe-1234")

	require.Len(t, sp.commands, 1)
	require.Contains(t, sp.commands[0], "UIASALTINEL 'cafe-1234'")
}

func TestFatalStopAbandonsRemainingAttempts(t *testing.T) {
	t.Parallel()
	control := &fakeControl{}
	r, sp, d := newRunner(t, runner.Config{Attempts: 5}, control,
		newScript(true, line("Fail", "assertion failed")))
	d.onReceive = func(msg tracelog.Message, sink runner.EventSink) {
		if msg.Status == tracelog.StatusFail {
			sink.StopDetected(true, "assertion failed")
		}
	}

	status := r.Run(t.Context(), "tok")

	require.Len(t, sp.commands, 1, "attempts 2..5 never spawn")
	require.False(t, status.Normal)
	require.True(t, status.FatalError)
	require.Equal(t, "assertion failed", status.FatalReason)
	require.Equal(t, 1, d.finished)
	require.True(t, sp.sessions[0].terminated)
}

func TestNonFatalStopIsRetried(t *testing.T) {
	t.Parallel()
	r, sp, d := newRunner(t, runner.Config{Attempts: 2}, &fakeControl{},
		newScript(true, line("Stopped", "script told us to stop")),
		newScript(true, line("Stopped", "script told us to stop")))
	d.onReceive = func(msg tracelog.Message, sink runner.EventSink) {
		if msg.Status == tracelog.StatusStopped {
			sink.StopDetected(false, "script told us to stop")
		}
	}

	status := r.Run(t.Context(), "tok")

	require.Len(t, sp.commands, 2, "non-fatal stop burns the attempt but retries")
	require.False(t, status.Normal)
	require.False(t, status.FatalError)
	require.Equal(t, 2, d.finished)
}

func TestIntermittentFailureEndsLoopEarly(t *testing.T) {
	t.Parallel()
	r, sp, d := newRunner(t, runner.Config{Attempts: 5}, &fakeControl{},
		newScript(true, line("Error", "known flaky dialog appeared")))
	d.onReceive = func(msg tracelog.Message, sink runner.EventSink) {
		sink.IntermittentFailureDetected("known flaky dialog appeared")
	}

	status := r.Run(t.Context(), "tok")

	require.Len(t, sp.commands, 1, "no further attempt even though 4 remain")
	require.False(t, status.Normal)
	require.False(t, status.FatalError)
	require.Equal(t, 1, d.finished)
}

func TestTraceErrorResetsSimulatorOnce(t *testing.T) {
	t.Parallel()
	control := &fakeControl{}
	cfg := runner.Config{
		Attempts: 2,
		Launch:   launch.Spec{SimDevice: "iPhone 6"},
	}
	r, sp, d := newRunner(t, cfg, control,
		newScript(true, line("Instruments Trace Error", "target crashed")),
		newScript(false))
	d.onReceive = func(msg tracelog.Message, sink runner.EventSink) {
		if msg.Status == tracelog.StatusError {
			sink.TraceErrorDetected(false, "target crashed")
		}
	}

	status := r.Run(t.Context(), "tok")

	require.Len(t, sp.commands, 2, "reset is followed by a retry")
	require.Equal(t, 1, control.simResets, "exactly one reset between the attempts")
	require.False(t, status.FatalError)
	// second attempt closed its stream cleanly, which is not a failure
	require.True(t, status.Normal)
	require.Equal(t, 2, d.finished)
}

func TestFatalTraceErrorStopsImmediately(t *testing.T) {
	t.Parallel()
	control := &fakeControl{}
	r, sp, _ := newRunner(t, runner.Config{Attempts: 3}, control,
		newScript(true, line("Instruments Trace Error", "cannot attach")))
	d := &detector{sink: r, onReceive: func(msg tracelog.Message, sink runner.EventSink) {
		sink.TraceErrorDetected(true, "cannot attach")
	}}
	r.AddListener(d)

	status := r.Run(t.Context(), "tok")

	require.Len(t, sp.commands, 1)
	require.True(t, status.FatalError)
	require.Equal(t, "cannot attach", status.FatalReason)
	require.Zero(t, control.simResets)
}

func TestSilenceAfterStartAborts(t *testing.T) {
	t.Parallel()
	r, sp, d := newRunner(t, runner.Config{Attempts: 1, MaxSilence: 2 * tick}, &fakeControl{},
		newScript(true, line("Start", "automation running")))
	d.onReceive = func(msg tracelog.Message, sink runner.EventSink) {
		if msg.Status == tracelog.StatusStart {
			sink.StartDetected()
		}
	}

	start := time.Now()
	status := r.Run(t.Context(), "tok")

	require.False(t, status.Normal, "silence past the budget aborts the attempt")
	require.False(t, status.FatalError)
	require.Equal(t, 1, d.finished)
	require.True(t, sp.sessions[0].terminated)
	// reaching MaxSilence is not enough, it must be exceeded: two full
	// ticks equal the budget, the third exceeds it, abort lands on the next
	// poll after that
	require.GreaterOrEqual(t, time.Since(start), 3*tick)
}

func TestAbruptDeathAfterStartDoesNotRetry(t *testing.T) {
	t.Parallel()
	r, sp, d := newRunner(t, runner.Config{Attempts: 5}, &fakeControl{},
		newScript(true,
			line("Start", "automation running"),
			runner.ReadEvent{Err: io.ErrUnexpectedEOF}))
	d.onReceive = func(msg tracelog.Message, sink runner.EventSink) {
		if msg.Status == tracelog.StatusStart {
			sink.StartDetected()
		}
	}

	status := r.Run(t.Context(), "tok")

	require.Len(t, sp.commands, 1, "a started run is never retried")
	require.False(t, status.Normal)
	require.False(t, status.FatalError)
	require.Equal(t, 1, d.finished)
}

func TestAbruptDeathBeforeStartRetries(t *testing.T) {
	t.Parallel()
	r, sp, d := newRunner(t, runner.Config{Attempts: 2}, &fakeControl{},
		newScript(true, runner.ReadEvent{Err: io.ErrUnexpectedEOF}),
		newScript(false))

	status := r.Run(t.Context(), "tok")

	require.Len(t, sp.commands, 2, "pre-start death leaves retries on the table")
	// the last attempt ended with a clean stream close
	require.True(t, status.Normal)
	require.False(t, status.FatalError)
	require.Equal(t, 2, d.finished)
}

func TestListenersReceiveParsedLinesInOrder(t *testing.T) {
	t.Parallel()
	r, _, first := newRunner(t, runner.Config{Attempts: 1}, &fakeControl{},
		newScript(false,
			line("Debug", "one"),
			line("Pass", "two"),
			runner.ReadEvent{Line: "free-form output"}))
	second := &detector{sink: r}
	r.AddListener(second)

	r.Run(t.Context(), "tok")

	for _, d := range []*detector{first, second} {
		require.Len(t, d.received, 3)
		require.Equal(t, tracelog.StatusDebug, d.received[0].Status)
		require.Equal(t, "one", d.received[0].Text)
		require.Equal(t, tracelog.StatusPass, d.received[1].Status)
		require.Equal(t, "free-form output", d.received[2].Raw)
		require.Empty(t, d.received[2].Status, "unmatched line degrades to empty fields")
		require.Equal(t, 1, d.finished)
	}
}

func TestContextCancellationStopsRun(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	r, sp, d := newRunner(t, runner.Config{Attempts: 5}, &fakeControl{}, newScript(true))
	status := r.Run(ctx, "tok")

	require.Len(t, sp.commands, 1)
	require.False(t, status.Normal)
	require.False(t, status.FatalError)
	require.Equal(t, 1, d.finished)
}

func TestDefaultsApplied(t *testing.T) {
	t.Parallel()
	// zero attempts fall back to the default rather than running nothing
	control := &fakeControl{}
	sessions := make([]*scriptSession, runner.DefaultAttempts)
	for i := range sessions {
		sessions[i] = newScript(true, runner.ReadEvent{Err: io.ErrUnexpectedEOF})
	}
	r, sp, _ := newRunner(t, runner.Config{}, control, sessions...)

	r.Run(t.Context(), "tok")
	require.Len(t, sp.commands, runner.DefaultAttempts)
}

func TestCommandCarriesLaunchSpec(t *testing.T) {
	t.Parallel()
	cfg := runner.Config{
		Attempts: 1,
		Launch: launch.Spec{
			TemplatePath: "/t.tracetemplate",
			AppLocation:  "/a.app",
			ScriptPath:   "/s.js",
			SimDevice:    "iPhone 6",
			SimLanguage:  "en",
		},
	}
	r, sp, _ := newRunner(t, cfg, &fakeControl{}, newScript(false))

	r.Run(t.Context(), "tok")

	require.Len(t, sp.commands, 1)
	cmd := sp.commands[0]
	require.True(t, strings.HasPrefix(cmd, "instruments -w 'iPhone 6'"))
	require.Contains(t, cmd, "-AppleLanguages '(en)'")
}
