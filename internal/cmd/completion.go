package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for lonup.

To load completions:

Bash:
  $ source <(lonup completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ lonup completion bash > /etc/bash_completion.d/lonup
  # macOS:
  $ lonup completion bash > $(brew --prefix)/etc/bash_completion.d/lonup

Zsh:
  # To load completions for each session, execute once:
  $ lonup completion zsh > "${fpath[1]}/_lonup"

Fish:
  $ lonup completion fish > ~/.config/fish/completions/lonup.fish
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			}
			return nil
		},
	}
}
