package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Summary is the per-run record published to sinks after every finished run.
type Summary struct {
	Saltinel    string    `json:"saltinel"`
	Started     time.Time `json:"started"`
	Stopped     time.Time `json:"stopped"`
	Normal      bool      `json:"normal"`
	FatalError  bool      `json:"fatal_error"`
	FatalReason string    `json:"fatal_reason,omitempty"`
}

type SummarySink interface {
	Publish(ctx context.Context, s Summary) error
}

type SinkCloser interface {
	SummarySink
	Close() error
}

type WriteSink struct {
	w io.Writer
}

func NewWriteSink(w io.Writer) WriteSink {
	return WriteSink{w: w}
}

func (s WriteSink) Publish(_ context.Context, sum Summary) error {
	w := s.w
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

// DirSink writes one timestamped JSON file per run into a fixed directory.
// The directory is held open as an os.Root, so later path tampering cannot
// redirect the writes.
type DirSink struct {
	root *os.Root
}

func NewDirSink(path string) (*DirSink, error) {
	root, err := os.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return &DirSink{root: root}, nil
}

func (s *DirSink) Publish(ctx context.Context, sum Summary) error {
	if s.root == nil {
		return errors.New("sink already closed")
	}

	path := "uiharness-" + sum.Stopped.Format("2006-01-02-15-04-05") + ".json"

	f, err := s.root.Create(path)
	if err != nil {
		return fmt.Errorf("creating run summary: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		_ = f.Close()
		return fmt.Errorf("saving run summary: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing run summary: %w", err)
	}
	slog.InfoContext(ctx, "run summary saved", "path", path)
	return nil
}

func (s *DirSink) Close() error {
	if s.root == nil {
		return errors.New("sink already closed")
	}
	err := s.root.Close()
	s.root = nil
	return err
}
