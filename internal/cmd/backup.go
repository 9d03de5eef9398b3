package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lonhq/lonup/internal/backup"
	"github.com/lonhq/lonup/internal/interactive"
)

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage backups of the installed binary",
		Long: `Backup manages the pre-update copies of the installed executable.

A backup is created automatically before every install. Use 'lonup backup
restore' to put a previous binary back manually, and 'lonup backup prune'
to trim old copies.`,
	}

	cmd.AddCommand(newBackupListCmd())
	cmd.AddCommand(newBackupRestoreCmd())
	cmd.AddCommand(newBackupPruneCmd())

	return cmd
}

func newBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List retained backups",
		Long:  `List displays all retained backups with their creation time and size, newest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupList()
		},
	}
}

func newBackupRestoreCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Restore the installed binary from a backup",
		Long: `Restore copies a backup back over the install path.

Use 'latest' as the name to restore the most recent backup. Stop the target
process yourself before restoring; this command does not stop it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupRestore(args[0], yes)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompt")

	return cmd
}

func newBackupPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old backups",
		Long: `Prune deletes old backups, keeping only the most recent N.

The default keep count comes from the config; --keep overrides it.
A keep count of 0 retains everything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackupPrune(cmd, keep)
		},
	}

	cmd.Flags().IntVar(&keep, "keep", -1, "Number of backups to keep (default from config)")

	return cmd
}

func runBackupList() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manager := backup.NewManager(cfg.BackupPath)

	backups, err := manager.List()
	if err != nil {
		return err
	}

	w, err := outputWriter()
	if err != nil {
		return err
	}

	if len(backups) == 0 {
		fmt.Printf("No backups found in %s\n", manager.Dir())
		return nil
	}

	rows := [][]string{{"NAME", "CREATED", "SIZE"}}
	for _, b := range backups {
		rows = append(rows, []string{
			b.Name,
			b.CreatedAt.Format("2006-01-02 15:04:05"),
			formatSize(b.Size),
		})
	}
	return w.WriteTable(rows, backups)
}

func runBackupRestore(name string, skipConfirm bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manager := backup.NewManager(cfg.BackupPath)

	info, err := manager.Find(name)
	if err != nil {
		return err
	}

	fmt.Printf("Restoring %s (created %s) over %s\n",
		info.Name, info.CreatedAt.Format("2006-01-02 15:04:05"), cfg.InstallPath)

	if !skipConfirm {
		ok, err := interactive.NewPrompter().Confirm("Proceed?")
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Restore cancelled.")
			return nil
		}
	}

	rec := &backup.Record{Path: info.Path, Source: cfg.InstallPath, CreatedAt: info.CreatedAt}
	if err := manager.Restore(rec); err != nil {
		return err
	}

	fmt.Println("Restored successfully")
	return nil
}

func runBackupPrune(cmd *cobra.Command, keep int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	manager := backup.NewManager(cfg.BackupPath)

	if !cmd.Flags().Changed("keep") {
		keep = cfg.RetainedBackups()
	}

	result, err := manager.Prune(keep)
	if err != nil {
		return err
	}

	w, err := outputWriter()
	if err != nil {
		return err
	}

	if len(result.Deleted) == 0 {
		fmt.Printf("No backups to prune. Keeping %d backup(s).\n", result.Kept)
		return nil
	}

	rows := [][]string{{"DELETED", "CREATED"}}
	for _, b := range result.Deleted {
		rows = append(rows, []string{b.Name, b.CreatedAt.Format("2006-01-02 15:04:05")})
	}
	fmt.Printf("Pruned %d backup(s), keeping %d:\n", len(result.Deleted), result.Kept)
	return w.WriteTable(rows, result)
}
