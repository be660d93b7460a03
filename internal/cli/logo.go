package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	pkgerrors "ReqTrack/pkg/errors"

	"ReqTrack/internal/logo"
	"ReqTrack/internal/output"
)

func (a *App) newLogoCmd() *cobra.Command {
	logoCmd := &cobra.Command{
		Use:   "logo",
		Short: "Логотип системы",
		Long:  `Загрузка, просмотр, скачивание и удаление логотипа системы.`,
	}

	uploadCmd := &cobra.Command{
		Use:   "upload [file]",
		Short: "Загрузить логотип",
		Long:  `Загружает изображение jpg, png, gif или svg размером до 5 МБ.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleLogoUpload(cmd, args[0])
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Список логотипов",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleLogoList(cmd)
		},
	}

	downloadCmd := &cobra.Command{
		Use:   "download [filename]",
		Short: "Скачать логотип",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleLogoDownload(cmd, args[0])
		},
	}
	downloadCmd.Flags().StringP("out", "O", "", "файл назначения (по умолчанию имя логотипа, - для stdout)")

	deleteCmd := &cobra.Command{
		Use:   "delete [filename]",
		Short: "Удалить логотип",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleLogoDelete(cmd, args[0])
		},
	}

	logoCmd.AddCommand(uploadCmd, listCmd, downloadCmd, deleteCmd)
	return logoCmd
}

func (a *App) logoService() *logo.Service {
	return logo.NewService(a.client, a.notifier, a.logger)
}

func (a *App) handleLogoUpload(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	result, err := a.logoService().Upload(ctx, path)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printer.Print(result, func() *output.TableData {
		return output.KeyValue(
			"Filename", result.Filename,
			"URL", result.URL,
			"Size", strconv.FormatInt(result.Size, 10),
		)
	})
}

func (a *App) handleLogoList(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	logos, err := a.logoService().List(ctx)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	return a.printer.Print(logos, func() *output.TableData {
		table := output.NewTableData("FILENAME", "SIZE", "URL")
		table.Empty = "No logos uploaded"
		for _, l := range logos {
			table.AddRow(l.Filename, strconv.FormatInt(l.Size, 10), l.URL)
		}
		return table
	})
}

func (a *App) handleLogoDownload(cmd *cobra.Command, filename string) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	target, _ := cmd.Flags().GetString("out")
	if target == "" {
		target = filepath.Base(filename)
	}

	var w io.Writer = a.out
	var file *os.File
	if target != "-" {
		f, err := os.CreateTemp(filepath.Dir(target), ".logo-*")
		if err != nil {
			return handleError(pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to create file"), cmd, a.logger)
		}
		defer os.Remove(f.Name())
		defer f.Close()
		file, w = f, f
	}

	n, err := a.logoService().Download(ctx, filename, w)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	if file == nil {
		return nil
	}

	if err := file.Close(); err != nil {
		return handleError(pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to write file"), cmd, a.logger)
	}
	if err := os.Rename(file.Name(), target); err != nil {
		return handleError(pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to write file"), cmd, a.logger)
	}
	fmt.Fprintf(a.errOut, "Saved %s (%d bytes)\n", target, n)
	return nil
}

func (a *App) handleLogoDelete(cmd *cobra.Command, filename string) error {
	ctx := cmd.Context()
	if _, err := a.requireSession(ctx); err != nil {
		return handleError(err, cmd, a.logger)
	}

	ok, err := a.confirmer().Confirm(ctx, fmt.Sprintf("Delete logo %q?", filename))
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	if !ok {
		fmt.Fprintln(a.errOut, "Deletion cancelled")
		return nil
	}
	return handleError(a.logoService().Delete(ctx, filename), cmd, a.logger)
}
