package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		ReleasesURL: "https://releases.example.com/lon/latest.json",
		ChecksumURL: "https://releases.example.com/lon/lon.sha256",
		ProcessName: "lon",
		InstallPath: "/opt/lon/lon",
		BackupPath:  "/opt/lon/backups",
		MinVersion:  "1.0.0",
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "missing releases_url", mutate: func(c *Config) { c.ReleasesURL = "" }, field: "releases_url"},
		{name: "missing app_process_name", mutate: func(c *Config) { c.ProcessName = "" }, field: "app_process_name"},
		{name: "missing install_path", mutate: func(c *Config) { c.InstallPath = "" }, field: "install_path"},
		{name: "missing backup_path", mutate: func(c *Config) { c.BackupPath = "" }, field: "backup_path"},
		{name: "missing min_version", mutate: func(c *Config) { c.MinVersion = "" }, field: "min_version"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention field %s", err, tt.field)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := &Config{}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error")
	}

	for _, field := range []string{"releases_url", "app_process_name", "install_path", "backup_path", "min_version"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error does not mention %s", field)
		}
	}
}

func TestValidate_BadURL(t *testing.T) {
	cfg := validConfig()
	cfg.ReleasesURL = "://not-a-url"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "releases_url") {
		t.Errorf("error %q does not mention releases_url", err)
	}
}

func TestValidate_BadMinVersion(t *testing.T) {
	cfg := validConfig()
	cfg.MinVersion = "latest"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error")
	}
	if !strings.Contains(err.Error(), "min_version") {
		t.Errorf("error %q does not mention min_version", err)
	}
}

func TestValidate_NegativeKeepBackups(t *testing.T) {
	cfg := validConfig()
	negative := -1
	cfg.KeepBackups = &negative

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for negative keep_backups")
	}
}

func TestValidate_NegativeTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.StopTimeoutSeconds = -5
	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for negative stop_timeout_seconds")
	}

	cfg = validConfig()
	cfg.DownloadTimeoutSeconds = -5
	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for negative download_timeout_seconds")
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "install_path", Message: "is required"}
	if err.Error() != "install_path: is required" {
		t.Errorf("Error() = %q", err.Error())
	}
}
