//go:build windows

package procctl

import "strings"

// listCommand returns the command that lists processes matching name.
func listCommand(name string) (string, []string) {
	return "tasklist", []string{"/FI", "IMAGENAME eq " + name, "/NH"}
}

// stopCommand returns the command that terminates the process tree.
func stopCommand(name string) (string, []string) {
	return "taskkill", []string{"/IM", name, "/T", "/F"}
}

// processListed reports whether the tasklist output mentions the image name.
// tasklist exits 0 either way and prints an INFO line when nothing matched.
func processListed(out []byte, name string) bool {
	return strings.Contains(strings.ToLower(string(out)), strings.ToLower(name))
}

// isNotFoundExit is always false on Windows; tasklist and taskkill report
// "no match" through their output rather than their exit status.
func isNotFoundExit(_ error) bool {
	return false
}
