package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lonhq/lonup/internal/interactive"
	"github.com/lonhq/lonup/internal/updater"
)

func newUpdateCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download, verify, and install the latest release",
		Long: `Update fetches the latest published release, verifies its SHA-256
digest, stops the target process, backs up the installed binary, and swaps
in the new one. A failure after the backup rolls the installation back.

Exit codes:
  0  updated successfully, or already up to date
  2  aborted before any change to the installation
  3  update failed and the previous binary was restored
  4  update failed and the restore failed; manual repair needed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

// updateReport is the user-facing summary of a finished attempt.
type updateReport struct {
	Outcome     string `json:"outcome"`
	FromVersion string `json:"from_version,omitempty"`
	ToVersion   string `json:"to_version,omitempty"`
	BackupPath  string `json:"backup_path,omitempty"`
	Artifact    string `json:"retained_artifact,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (r updateReport) Text() string {
	var b strings.Builder
	switch r.Outcome {
	case "success":
		fmt.Fprintf(&b, "Updated %s -> %s\n", r.FromVersion, r.ToVersion)
		fmt.Fprintf(&b, "Backup: %s", r.BackupPath)
	case "no-update-available":
		fmt.Fprintf(&b, "Already up to date (%s)", r.FromVersion)
	case "aborted-before-change":
		fmt.Fprintf(&b, "Update aborted, installation unchanged: %s", r.Error)
	case "rolled-back":
		fmt.Fprintf(&b, "Update failed, previous binary restored from %s\n", r.BackupPath)
		fmt.Fprintf(&b, "Cause: %s", r.Error)
	case "rollback-failed":
		fmt.Fprintf(&b, "Update AND rollback failed, manual repair needed\n")
		fmt.Fprintf(&b, "Backup: %s\n", r.BackupPath)
		fmt.Fprintf(&b, "Cause: %s", r.Error)
	}
	if r.Artifact != "" {
		fmt.Fprintf(&b, "\nRetained artifact: %s", r.Artifact)
	}
	return b.String()
}

func runUpdate(cmd *cobra.Command, yes bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	if !yes && !interactive.IsTerminal() {
		logger.Warn("no terminal for confirmation; pass --yes for unattended updates")
	}

	u := updater.New(cfg, logger,
		updater.WithAssumeYes(yes),
		updater.WithPrompter(interactive.NewPrompter()),
	)

	res := u.Run(cmd.Context())

	report := updateReport{
		Outcome:     res.Outcome.String(),
		FromVersion: res.FromVersion,
		ToVersion:   res.ToVersion,
		BackupPath:  res.BackupPath,
		Artifact:    res.ArtifactPath,
	}
	if res.Err != nil {
		report.Error = res.Err.Error()
	}

	w, err := outputWriter()
	if err != nil {
		return err
	}
	if err := w.Write(report); err != nil {
		return err
	}

	if code := res.Outcome.ExitCode(); code != 0 {
		return &ExitError{Code: code, Err: res.Err}
	}
	return nil
}
