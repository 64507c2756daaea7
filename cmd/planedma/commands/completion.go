package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/xupit3r/planedma/internal/dma"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion script",
	Long: `Generate shell completion script for planedma.

To load completions:

Bash:
  $ planedma completion bash > ~/.local/share/bash-completion/completions/planedma
  $ source ~/.local/share/bash-completion/completions/planedma

Zsh:
  $ planedma completion zsh > ~/.zsh/completion/_planedma
  $ echo 'fpath=(~/.zsh/completion $fpath)' >> ~/.zshrc
  $ echo 'autoload -Uz compinit && compinit' >> ~/.zshrc

Fish:
  $ planedma completion fish > ~/.config/fish/completions/planedma.fish

PowerShell:
  PS> planedma completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE:                  runCompletion,
}

func init() {
	rootCmd.AddCommand(completionCmd)

	registerFlagCompletions()
}

func runCompletion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch args[0] {
	case "bash":
		return cmd.Root().GenBashCompletion(out)
	case "zsh":
		return cmd.Root().GenZshCompletion(out)
	case "fish":
		return cmd.Root().GenFishCompletion(out, true)
	case "powershell":
		return cmd.Root().GenPowerShellCompletionWithDesc(out)
	}
	return nil
}

func completeDevices(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, name := range dma.Devices() {
		if strings.HasPrefix(name, toComplete) {
			out = append(out, name)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func completeFormats(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var out []string
	for _, f := range dma.Formats() {
		if f.Plane() != dma.AnyPlane {
			continue
		}
		if name := f.String(); strings.HasPrefix(name, strings.ToLower(toComplete)) {
			out = append(out, name)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

// registerFlagCompletions attaches completions to the global flags
func registerFlagCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("device", completeDevices)
	_ = rootCmd.RegisterFlagCompletionFunc("format", completeFormats)
}
