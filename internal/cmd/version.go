package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd(commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("lonup version %s (commit %s, built %s)\n", lonupVersion, commit, date)
			return nil
		},
	}
}
