package runner

import (
	"context"
	"log/slog"

	"github.com/uiharness/uiharness/internal/tracelog"
)

// Listener observes the parsed output stream of a run. Receive is called
// once per line, in the order lines were read, on the control thread; it
// must not block. AttemptFinished is called exactly once when an attempt's
// subprocess session ends, however it ended.
type Listener interface {
	Receive(msg tracelog.Message)
	AttemptFinished()
}

// EventSink is the callback contract detectors use to report conditions
// back to the supervisor. The Runner implements it; detectors hold this
// interface, never the concrete Runner. Calls happen synchronously from
// inside a listener's Receive.
type EventSink interface {
	// StartDetected marks the automation script as actually executing.
	StartDetected()
	// StopDetected ends the run: fatal abandons all remaining attempts,
	// non-fatal aborts the current one.
	StopDetected(fatal bool, reason string)
	// IntermittentFailureDetected ends the attempt without retrying; the
	// failure is known to recur, so burning attempts on it is pointless.
	IntermittentFailureDetected(reason string)
	// TraceErrorDetected either abandons the run (fatal) or requests a
	// full simulator reset before the next attempt.
	TraceErrorDetected(fatal bool, reason string)
}

// LogListener forwards every parsed line to slog, mapping the line status
// to a log level. It is the listener the CLI registers by default.
type LogListener struct {
	log *slog.Logger
}

func NewLogListener(log *slog.Logger) *LogListener {
	if log == nil {
		log = slog.Default()
	}
	return &LogListener{log: log}
}

func (l *LogListener) Receive(msg tracelog.Message) {
	ctx := context.Background()
	text := msg.Text
	if text == "" {
		text = msg.Raw
	}
	switch msg.Status {
	case tracelog.StatusFail, tracelog.StatusError, tracelog.StatusIssue:
		l.log.ErrorContext(ctx, text, "status", msg.Status)
	case tracelog.StatusWarning:
		l.log.WarnContext(ctx, text, "status", msg.Status)
	case tracelog.StatusDebug:
		l.log.DebugContext(ctx, text, "status", msg.Status)
	default:
		l.log.InfoContext(ctx, text, "status", msg.Status)
	}
}

func (l *LogListener) AttemptFinished() {
	l.log.Debug("attempt finished")
}
