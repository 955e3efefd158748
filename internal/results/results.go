// Package results implements the working-directory contract for a run and
// the maintenance cleanup of the results tree.
package results

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Enter switches the working directory to dir and returns a restore
// function. Callers defer the restore so the previous directory comes back
// on every exit path, error or not.
func Enter(dir string) (restore func() error, err error) {
	prev, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("entering results directory: %w", err)
	}
	return func() error {
		return os.Chdir(prev)
	}, nil
}

// Clean removes the results directory tree. The path is resolved without
// ever creating it; a missing directory is success.
func Clean(dir string) error {
	if dir == "" {
		return errors.New("results directory is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving results directory: %w", err)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("removing results directory: %w", err)
	}
	return nil
}
