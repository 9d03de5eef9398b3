//go:build !windows

package procctl

import (
	"errors"
	"os/exec"
	"strings"
)

// listCommand returns the command that lists processes matching name.
func listCommand(name string) (string, []string) {
	return "pgrep", []string{"-x", name}
}

// stopCommand returns the command that requests graceful termination.
func stopCommand(name string) (string, []string) {
	return "pkill", []string{"-TERM", "-x", name}
}

// processListed reports whether the pgrep output names any pid.
func processListed(out []byte, _ string) bool {
	return strings.TrimSpace(string(out)) != ""
}

// isNotFoundExit reports whether err is pgrep/pkill exit status 1,
// which means no process matched.
func isNotFoundExit(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == 1
	}
	return false
}
