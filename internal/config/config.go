// Package config handles updater configuration parsing and location resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults applied when optional fields are absent.
const (
	DefaultStopTimeout     = 10 * time.Second
	DefaultDownloadTimeout = 30 * time.Second
	DefaultKeepBackups     = 5
)

// Config is the updater configuration, loaded once at process start and
// treated as immutable for the duration of one update attempt.
type Config struct {
	// ReleasesURL points to the release manifest describing the latest
	// published version.
	ReleasesURL string `json:"releases_url" yaml:"releases_url" toml:"releases_url"`

	// ChecksumURL is the fallback source for the expected SHA-256 digest
	// when the release manifest does not name one.
	ChecksumURL string `json:"expected_sha256_url" yaml:"expected_sha256_url" toml:"expected_sha256_url"`

	// ProcessName is the image name of the target process to stop before
	// replacing the binary.
	ProcessName string `json:"app_process_name" yaml:"app_process_name" toml:"app_process_name"`

	// InstallPath is the filesystem location of the installed executable.
	InstallPath string `json:"install_path" yaml:"install_path" toml:"install_path"`

	// BackupPath is the directory holding pre-update copies of the executable.
	BackupPath string `json:"backup_path" yaml:"backup_path" toml:"backup_path"`

	// MinVersion is the version the installation is assumed to be at; a
	// release is only an update when its version is strictly newer.
	MinVersion string `json:"min_version" yaml:"min_version" toml:"min_version"`

	// KeepBackups is the number of backups retained after a successful
	// update. Zero keeps all backups. Nil uses DefaultKeepBackups.
	KeepBackups *int `json:"keep_backups,omitempty" yaml:"keep_backups,omitempty" toml:"keep_backups,omitempty"`

	// StopTimeoutSeconds bounds how long to wait for the target process to
	// exit after requesting termination.
	StopTimeoutSeconds int `json:"stop_timeout_seconds,omitempty" yaml:"stop_timeout_seconds,omitempty" toml:"stop_timeout_seconds,omitempty"`

	// DownloadTimeoutSeconds bounds each network request.
	DownloadTimeoutSeconds int `json:"download_timeout_seconds,omitempty" yaml:"download_timeout_seconds,omitempty" toml:"download_timeout_seconds,omitempty"`

	// LogPath, when set, mirrors update events to an append-only log file.
	LogPath string `json:"log_path,omitempty" yaml:"log_path,omitempty" toml:"log_path,omitempty"`
}

// StopTimeout returns the configured process-stop timeout.
func (c *Config) StopTimeout() time.Duration {
	if c.StopTimeoutSeconds > 0 {
		return time.Duration(c.StopTimeoutSeconds) * time.Second
	}
	return DefaultStopTimeout
}

// DownloadTimeout returns the configured per-request network timeout.
func (c *Config) DownloadTimeout() time.Duration {
	if c.DownloadTimeoutSeconds > 0 {
		return time.Duration(c.DownloadTimeoutSeconds) * time.Second
	}
	return DefaultDownloadTimeout
}

// RetainedBackups returns the backup retention count.
func (c *Config) RetainedBackups() int {
	if c.KeepBackups != nil {
		return *c.KeepBackups
	}
	return DefaultKeepBackups
}

// Find locates the configuration file. An explicit path wins, then the
// LONUP_CONFIG environment variable, then updater.config.{json,yaml,yml,toml}
// next to the running executable.
func Find(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv("LONUP_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to determine executable path: %w", err)
	}
	dir := filepath.Dir(exe)

	fileNames := []string{
		"updater.config.json",
		"updater.config.yaml",
		"updater.config.yml",
		"updater.config.toml",
	}

	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no updater config found next to %s", exe)
}

// Load reads, parses, and validates a config file.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	format := detectFormat(path, content)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	cfg, err := parse(content, format)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
