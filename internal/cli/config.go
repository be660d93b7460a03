package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	pkgerrors "ReqTrack/pkg/errors"

	"ReqTrack/internal/config"
	"ReqTrack/internal/output"
)

func (a *App) newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Управление конфигурацией",
		Long: `Команды для управления конфигурацией клиента:
просмотр, создание файла и изменение значений.`,
	}

	showCmd := &cobra.Command{
		Use:     "show",
		Aliases: []string{"view"},
		Short:   "Показать конфигурацию",
		Long:    `Показывает действующую конфигурацию с учетом переменных окружения. Пароли не выводятся.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleConfigShow()
		},
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Инициализировать конфигурацию",
		Long:  "Создать файл конфигурации с настройками по умолчанию",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleConfigInit(cmd)
		},
	}
	initCmd.Flags().StringP("path", "p", "", "путь для создания конфигурации")
	initCmd.Flags().BoolP("force", "f", false, "перезаписать существующий файл")

	getCmd := &cobra.Command{
		Use:       "get [key]",
		Short:     "Показать значение",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := a.config.Get(args[0])
			if err != nil {
				return handleError(pkgerrors.New(pkgerrors.ErrValidation, err.Error()), cmd, a.logger)
			}
			fmt.Fprintln(a.out, value)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:       "set [key] [value]",
		Short:     "Изменить значение",
		Long:      `Изменяет значение в файле конфигурации. Переменные окружения в файл не записываются.`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: config.Keys(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleConfigSet(cmd, args[0], args[1])
		},
	}

	configCmd.AddCommand(showCmd, initCmd, getCmd, setCmd)
	return configCmd
}

func (a *App) handleConfigShow() error {
	return a.printer.Print(a.config, func() *output.TableData {
		table := output.NewTableData("KEY", "VALUE")
		for _, key := range config.Keys() {
			value, _ := a.config.Get(key)
			table.AddRow(key, value)
		}
		table.AddRowWithStyle(output.StyleMuted, "file", a.config.Path)
		return table
	})
}

func (a *App) handleConfigInit(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		path = a.config.Path
	}
	force, _ := cmd.Flags().GetBool("force")

	if _, err := config.InitConfig(path, force); err != nil {
		return handleError(pkgerrors.New(pkgerrors.ErrValidation, err.Error()), cmd, a.logger)
	}
	fmt.Fprintf(a.errOut, "Configuration written to %s\n", path)
	return nil
}

func (a *App) handleConfigSet(cmd *cobra.Command, key, value string) error {
	cfg, err := config.LoadFile(a.config.Path)
	if err != nil {
		return handleError(pkgerrors.New(pkgerrors.ErrValidation, err.Error()), cmd, a.logger)
	}
	if err := cfg.Set(key, value); err != nil {
		return handleError(pkgerrors.New(pkgerrors.ErrValidation, err.Error()), cmd, a.logger)
	}
	if err := cfg.Save(); err != nil {
		return handleError(pkgerrors.Wrap(err, pkgerrors.ErrInternal, err.Error()), cmd, a.logger)
	}
	fmt.Fprintf(a.errOut, "%s = %s\n", key, value)
	return nil
}
