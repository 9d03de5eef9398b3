// Package procctl detects and stops the target process before the installed
// binary is replaced.
package procctl

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrStillRunning indicates the target process did not exit within the
// stop timeout. Replacing a binary that is still mapped into a running
// process can corrupt the install, so this is a hard abort.
var ErrStillRunning = errors.New("process still running after timeout")

// defaultPollInterval is how often the process list is re-checked while
// waiting for the target to exit.
const defaultPollInterval = 500 * time.Millisecond

// runner executes a command and returns its standard output.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Controller queries and terminates processes by image name.
type Controller struct {
	run          runner
	pollInterval time.Duration
}

// New creates a Controller backed by the platform's process tooling.
func New() *Controller {
	return &Controller{
		run:          runCommand,
		pollInterval: defaultPollInterval,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// IsRunning reports whether a process with the given image name exists.
func (c *Controller) IsRunning(ctx context.Context, name string) (bool, error) {
	bin, args := listCommand(name)

	out, err := c.run(ctx, bin, args...)
	if err != nil {
		if isNotFoundExit(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query process list: %w", err)
	}

	return processListed(out, name), nil
}

// Stop requests graceful termination of the named process and polls until it
// is gone or the timeout elapses. Returns nil immediately when the process is
// not running; returns ErrStillRunning (wrapped) on timeout.
func (c *Controller) Stop(ctx context.Context, name string, timeout time.Duration) error {
	running, err := c.IsRunning(ctx, name)
	if err != nil {
		return err
	}
	if !running {
		return nil
	}

	bin, args := stopCommand(name)
	if _, err := c.run(ctx, bin, args...); err != nil && !isNotFoundExit(err) {
		return fmt.Errorf("failed to request termination of %s: %w", name, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		running, err := c.IsRunning(ctx, name)
		if err != nil {
			return err
		}
		if !running {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrStillRunning, name)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}
