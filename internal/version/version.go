// Package version parses and compares semantic version strings.
package version

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var semverPattern = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(?:-([a-zA-Z0-9.-]+))?$`)

// Version represents a semantic version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
}

// Parse parses a semantic version string.
// Supports formats like "1.0.0", "v1.0.0", "1.1.0-rc.1".
func Parse(s string) (*Version, error) {
	matches := semverPattern.FindStringSubmatch(strings.TrimSpace(s))
	if matches == nil {
		return nil, fmt.Errorf("invalid version format: %q", s)
	}

	major, _ := strconv.Atoi(matches[1])
	minor, _ := strconv.Atoi(matches[2])
	patch, _ := strconv.Atoi(matches[3])

	return &Version{
		Major:      major,
		Minor:      minor,
		Patch:      patch,
		Prerelease: matches[4],
	}, nil
}

// String returns the version without a "v" prefix.
func (v *Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	return s
}

// Compare compares two versions.
// Returns 1 if v > other, 0 if equal, -1 if v < other.
func (v *Version) Compare(other *Version) int {
	if v.Major != other.Major {
		return sign(v.Major - other.Major)
	}
	if v.Minor != other.Minor {
		return sign(v.Minor - other.Minor)
	}
	if v.Patch != other.Patch {
		return sign(v.Patch - other.Patch)
	}

	// A stable version is greater than any prerelease of the same triple.
	if v.Prerelease == "" && other.Prerelease != "" {
		return 1
	}
	if v.Prerelease != "" && other.Prerelease == "" {
		return -1
	}
	if v.Prerelease != other.Prerelease {
		if v.Prerelease > other.Prerelease {
			return 1
		}
		return -1
	}

	return 0
}

// IsNewerThan returns true if v > other.
func (v *Version) IsNewerThan(other *Version) bool {
	return v.Compare(other) > 0
}

// Compare compares two version strings, returning 1, 0, or -1.
// Returns an error if either string is not a valid semantic version.
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// Normalize strips a leading "v" prefix if present.
func Normalize(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "v")
}

func sign(n int) int {
	if n > 0 {
		return 1
	}
	return -1
}
