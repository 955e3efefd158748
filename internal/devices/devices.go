// Package devices isolates the platform-specific process cleanup the
// supervisor relies on between attempts: force-killing stray automation tool
// instances, shutting down simulator processes and wiping simulator state.
package devices

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"golang.org/x/sync/errgroup"
)

// Controller is the narrow contract the supervisor calls out to. All three
// operations are best effort; "nothing to kill" is success.
type Controller interface {
	// TerminateAutomation force-kills any running automation tool
	// processes, guarding against orphans accumulating across retries.
	TerminateAutomation(ctx context.Context) error
	// TerminateSimulator force-kills simulator processes.
	TerminateSimulator(ctx context.Context) error
	// ResetSimulator terminates the simulator and erases its state.
	ResetSimulator(ctx context.Context) error
}

var (
	automationProcesses = []string{"instruments", "ScriptAgent"}
	simulatorProcesses  = []string{"Simulator", "iOS Simulator", "iPhone Simulator", "SimulatorBridge"}
)

// ExecController implements Controller with pkill and simctl.
type ExecController struct{}

func (ExecController) TerminateAutomation(ctx context.Context) error {
	return killAll(ctx, automationProcesses)
}

func (ExecController) TerminateSimulator(ctx context.Context) error {
	return killAll(ctx, simulatorProcesses)
}

func (c ExecController) ResetSimulator(ctx context.Context) error {
	if err := c.TerminateSimulator(ctx); err != nil {
		return err
	}
	out, err := exec.CommandContext(ctx, "xcrun", "simctl", "erase", "all").CombinedOutput()
	if err != nil {
		return fmt.Errorf("erasing simulator content: %s: %w", out, err)
	}
	return nil
}

func killAll(ctx context.Context, names []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			err := exec.CommandContext(ctx, "pkill", "-9", "-x", name).Run()
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
				return nil // pkill: no process matched
			}
			return err
		})
	}
	return g.Wait()
}
