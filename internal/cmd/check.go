package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lonhq/lonup/internal/updater"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer release is published",
		Long: `Check resolves the latest published release and compares it against
the installed version. Nothing is downloaded and nothing is modified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd)
		},
	}
}

// checkReport wraps the check result for output formatting.
type checkReport struct {
	updater.CheckInfo
}

func (r checkReport) Text() string {
	if !r.UpdateAvailable {
		return fmt.Sprintf("Already up to date (%s)", r.InstalledVersion)
	}
	return fmt.Sprintf("Update available: %s -> %s\nDownload: %s",
		r.InstalledVersion, r.LatestVersion, r.DownloadURL)
}

func runCheck(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	u := updater.New(cfg, logger)

	info, err := u.Check(cmd.Context())
	if err != nil {
		return err
	}

	w, err := outputWriter()
	if err != nil {
		return err
	}
	return w.Write(checkReport{CheckInfo: *info})
}
