package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// ReadEvent is one outcome of the session reader: a line, or a read error
// for an abruptly dying subprocess. A closed Lines channel means the output
// stream ended the expected way.
type ReadEvent struct {
	Line string
	Err  error
}

// TermOutcome reports how Terminate found the subprocess. A child that was
// already gone is success, not an error.
type TermOutcome int

const (
	TermKilled TermOutcome = iota
	TermAlreadyExited
)

// Session is one spawned instance of the automation tool.
type Session interface {
	Lines() <-chan ReadEvent
	// Terminate force-kills the subprocess, closes its terminal and reaps
	// it. Idempotent; every attempt ends with exactly one effective call.
	Terminate() TermOutcome
}

// StartFunc spawns the automation tool. Injectable so tests can script
// sessions without real subprocesses.
type StartFunc func(ctx context.Context, command string) (Session, error)

// StartSession launches command through the shell, attached to a
// pseudo-terminal. The pty is what makes the tool flush output line by line
// instead of block-buffering as it would on a plain pipe.
func StartSession(_ context.Context, command string) (Session, error) {
	cmd := exec.Command("/bin/sh", "-c", command)
	tty, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("starting automation tool: %w", err)
	}
	s := &ptySession{cmd: cmd, tty: tty, lines: make(chan ReadEvent)}
	go s.read()
	return s, nil
}

type ptySession struct {
	cmd   *exec.Cmd
	tty   *os.File
	lines chan ReadEvent

	termOnce sync.Once
	outcome  TermOutcome
}

func (s *ptySession) Lines() <-chan ReadEvent { return s.lines }

func (s *ptySession) read() {
	sc := bufio.NewScanner(s.tty)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		s.lines <- ReadEvent{Line: sc.Text()}
	}
	if err := sc.Err(); err != nil && !expectedClose(err) {
		s.lines <- ReadEvent{Err: err}
	}
	close(s.lines)
}

// expectedClose reports whether a pty read error is the normal end of the
// stream. Reading the master side after the child exits yields EIO rather
// than a clean EOF, and our own Terminate closes the file under the reader.
func expectedClose(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, fs.ErrClosed)
}

func (s *ptySession) Terminate() TermOutcome {
	s.termOnce.Do(func() {
		s.outcome = TermKilled
		if err := s.cmd.Process.Kill(); errors.Is(err, os.ErrProcessDone) {
			s.outcome = TermAlreadyExited
		}
		_ = s.tty.Close()
		// unblock the reader so it can observe the close and exit
		go func() {
			for range s.lines {
			}
		}()
		// "signal: killed" and friends are the point, not a failure
		_ = s.cmd.Wait()
	})
	return s.outcome
}
