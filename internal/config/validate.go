package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/lonhq/lonup/internal/version"
)

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the config for required fields and valid values.
// All problems are collected so a single run reports every missing field.
func Validate(c *Config) error {
	var errs []string

	for _, check := range []struct {
		field, value string
	}{
		{"releases_url", c.ReleasesURL},
		{"app_process_name", c.ProcessName},
		{"install_path", c.InstallPath},
		{"backup_path", c.BackupPath},
		{"min_version", c.MinVersion},
	} {
		if strings.TrimSpace(check.value) == "" {
			errs = append(errs, ValidationError{Field: check.field, Message: "is required"}.Error())
		}
	}

	if c.ReleasesURL != "" {
		if err := validateURL("releases_url", c.ReleasesURL); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c.ChecksumURL != "" {
		if err := validateURL("expected_sha256_url", c.ChecksumURL); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if c.MinVersion != "" {
		if _, err := version.Parse(c.MinVersion); err != nil {
			errs = append(errs, ValidationError{
				Field:   "min_version",
				Message: fmt.Sprintf("invalid version %q", c.MinVersion),
			}.Error())
		}
	}

	if c.KeepBackups != nil && *c.KeepBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "keep_backups",
			Message: "must be non-negative",
		}.Error())
	}

	if c.StopTimeoutSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "stop_timeout_seconds",
			Message: "must be non-negative",
		}.Error())
	}

	if c.DownloadTimeoutSeconds < 0 {
		errs = append(errs, ValidationError{
			Field:   "download_timeout_seconds",
			Message: "must be non-negative",
		}.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ValidationError{Field: field, Message: fmt.Sprintf("invalid URL %q", raw)}
	}
	return nil
}
