// Package backup preserves the installed executable before modification and
// restores it when an update fails.
package backup

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrRestoreFailed indicates the backup could not be copied back over the
// install path. This is the most severe failure mode: the installation may
// be left in an unknown state.
var ErrRestoreFailed = errors.New("restore from backup failed")

// stampLayout is the timestamp embedded in backup file names.
const stampLayout = "20060102_150405"

// backupExt marks files managed by this package.
const backupExt = ".bak"

// Record identifies one backup of the install-path binary.
type Record struct {
	Path      string    `json:"path"`       // backup file location
	Source    string    `json:"source"`     // install path it was taken from
	Version   string    `json:"version"`    // version it was taken from, if known
	CreatedAt time.Time `json:"created_at"`
}

// Info summarizes a retained backup for listing.
type Info struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

// Manager handles backups inside a single directory. The timestamp is fixed
// at construction so repeated Create calls within one update attempt
// overwrite the same backup slot instead of accumulating copies.
type Manager struct {
	dir   string
	stamp time.Time
}

// NewManager creates a backup manager for the given directory.
func NewManager(dir string) *Manager {
	return NewManagerAt(dir, time.Now())
}

// NewManagerAt creates a backup manager with a fixed attempt timestamp.
func NewManagerAt(dir string, stamp time.Time) *Manager {
	return &Manager{dir: dir, stamp: stamp}
}

// Dir returns the backup directory.
func (m *Manager) Dir() string { return m.dir }

// Create copies (never moves) the file at installPath into the backup
// directory and returns the record describing it. fromVersion tags the
// record with the version the copy was taken from; it may be empty.
func (m *Manager) Create(installPath, fromVersion string) (*Record, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := m.slotName(installPath)
	path := filepath.Join(m.dir, name)

	if err := copyFile(installPath, path); err != nil {
		return nil, fmt.Errorf("failed to back up %s: %w", installPath, err)
	}

	return &Record{
		Path:      path,
		Source:    installPath,
		Version:   fromVersion,
		CreatedAt: m.stamp,
	}, nil
}

// Restore copies the backup back over the install path. Any failure is
// reported as ErrRestoreFailed (wrapped) and must be surfaced loudly by
// the caller.
func (m *Manager) Restore(rec *Record) error {
	if _, err := os.Stat(rec.Path); err != nil {
		return fmt.Errorf("%w: backup missing at %s: %v", ErrRestoreFailed, rec.Path, err)
	}

	if err := copyFile(rec.Path, rec.Source); err != nil {
		return fmt.Errorf("%w: %v", ErrRestoreFailed, err)
	}

	return nil
}

// List returns all retained backups, newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Info{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		created, ok := parseStamp(entry.Name())
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, Info{
			Name:      entry.Name(),
			Path:      filepath.Join(m.dir, entry.Name()),
			CreatedAt: created,
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Find returns the backup with the given file name. Use "latest" for the
// most recent backup.
func (m *Manager) Find(name string) (*Info, error) {
	backups, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, fmt.Errorf("no backups found in %s", m.dir)
	}

	if name == "latest" {
		return &backups[0], nil
	}

	for i := range backups {
		if backups[i].Name == name {
			return &backups[i], nil
		}
	}

	return nil, fmt.Errorf("backup not found: %s", name)
}

// slotName builds the backup file name for this attempt,
// e.g. "lon_20260827_153000.bak".
func (m *Manager) slotName(installPath string) string {
	base := filepath.Base(installPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s_%s%s", base, m.stamp.Format(stampLayout), backupExt)
}

// parseStamp extracts the creation time from a backup file name.
func parseStamp(name string) (time.Time, bool) {
	if !strings.HasSuffix(name, backupExt) {
		return time.Time{}, false
	}
	trimmed := strings.TrimSuffix(name, backupExt)

	idx := strings.LastIndex(trimmed, "_")
	if idx < 0 || idx == len(trimmed)-1 {
		return time.Time{}, false
	}
	// The stamp spans the last two underscore-separated segments
	// (date and time).
	idx = strings.LastIndex(trimmed[:idx], "_")
	if idx < 0 {
		return time.Time{}, false
	}

	t, err := time.ParseInLocation(stampLayout, trimmed[idx+1:], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// copyFile copies src to dst, preserving the source file's permissions.
// A partially written destination is removed on failure.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	srcInfo, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("failed to finalize %s: %w", dst, err)
	}

	return nil
}
