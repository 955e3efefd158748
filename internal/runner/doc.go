package runner

// Package runner supervises one external UI automation tool process at a
// time and drives the retry/abort/reset/fatal decision logic around it.
//
// Overview
// The Runner owns the run configuration, a registry of Listeners and the
// mutable run state. Run spawns the tool over a pseudo-terminal, reads its
// output line by line, parses each line (internal/tracelog) and dispatches
// the parsed message to every listener in registration order. Detectors are
// listeners that additionally hold the Runner as an EventSink and call back
// when their heuristics fire; those callbacks are the only way run state is
// mutated from the outside.
//
// Data flow:
//
//	Runner                 Session(pty)           Listeners
//	  |  startSession ------->|                       |
//	  |<----- ReadEvent ------|  (reader goroutine)   |
//	  |  tracelog.Parse       |                       |
//	  |  Receive(msg) ------------------------------->|
//	  |<----- EventSink callbacks --------------------|
//	  |  transition flags -> kill / reset / retry     |
//	  |  AttemptFinished ----------------------------->| (once per attempt)
//
// Invariants:
//   - Single control thread: listener callbacks run synchronously on the
//     read loop and must not block.
//   - The Runner is the sole owner of the subprocess; only it terminates
//     the session, and exactly once per attempt.
//   - AttemptFinished fires exactly once per spawned attempt, on every
//     listener, no matter how the attempt ended.
//   - Expected subprocess-lifecycle conditions (clean end of stream, child
//     already gone during kill) never propagate as errors; only the returned
//     Status reports the outcome.
