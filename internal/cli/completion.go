package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	pkgerrors "ReqTrack/pkg/errors"
)

func (a *App) newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Генерировать скрипт автодополнения",
		Long: `Генерирует скрипт автодополнения для указанной оболочки.
Чтобы включить автодополнение:

Bash:
  $ source <(reqtrack completion bash)

  # Для постоянного использования:
  $ reqtrack completion bash > /etc/bash_completion.d/reqtrack

Zsh:
  $ reqtrack completion zsh > "${fpath[1]}/_reqtrack"

Fish:
  $ reqtrack completion fish | source

PowerShell:
  PS> reqtrack completion powershell | Out-String | Invoke-Expression`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletionV2(a.out, true)
			case "zsh":
				return rootCmd.GenZshCompletion(a.out)
			case "fish":
				return rootCmd.GenFishCompletion(a.out, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletionWithDesc(a.out)
			default:
				return handleError(pkgerrors.New(pkgerrors.ErrValidation, "unsupported shell: "+args[0]), cmd, a.logger)
			}
		},
	}
}

func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "reqtrack %s (%s %s/%s)\n", a.version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
