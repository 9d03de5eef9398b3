// Package install performs the atomic swap of a verified binary into the
// install location.
package install

import (
	"fmt"
	"io"
	"os"
)

// executableMode is applied when no prior binary exists to copy a mode from.
const executableMode = 0755

// Installer swaps a new binary into place. The rename step is injectable so
// failure handling can be exercised without a real filesystem fault.
type Installer struct {
	rename func(oldpath, newpath string) error
}

// New creates an Installer using os.Rename for the final swap.
func New() *Installer {
	return &Installer{rename: os.Rename}
}

// Install writes the artifact to a temporary file on the same volume as
// installPath and then renames it over installPath in a single atomic step.
// There is no window in which installPath holds a truncated file: on any
// failure the prior binary is untouched and the temporary file is removed.
func (ins *Installer) Install(artifactPath, installPath string) error {
	mode := os.FileMode(executableMode)
	if info, err := os.Stat(installPath); err == nil {
		mode = info.Mode()
	}

	// Staging file lives next to the target so the rename cannot cross a
	// filesystem boundary.
	staging := installPath + ".new"

	if err := writeStaging(artifactPath, staging, mode); err != nil {
		return err
	}

	if err := ins.rename(staging, installPath); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("failed to replace %s: %w", installPath, err)
	}

	return nil
}

// writeStaging copies the artifact into the staging path, syncing contents
// to disk before the swap.
func writeStaging(artifactPath, staging string, mode os.FileMode) error {
	in, err := os.Open(artifactPath)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(staging, os.O_RDWR|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(staging)
		return fmt.Errorf("failed to write staging file: %w", err)
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(staging)
		return fmt.Errorf("failed to sync staging file: %w", err)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("failed to finalize staging file: %w", err)
	}

	return nil
}
