package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	pkgerrors "ReqTrack/pkg/errors"
	"ReqTrack/pkg/health"

	"ReqTrack/internal/output"
	"ReqTrack/internal/storage"
)

func (a *App) newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Проверить доступность бэкенда и хранилища",
		Long: `Проверяет эндпоинт /health бэкенда и доступность хранилища сессии.
Код завершения отличен от нуля, если что-то недоступно.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.handleHealth(cmd)
		},
	}
}

func (a *App) handleHealth(cmd *cobra.Command) error {
	ctx := cmd.Context()

	aggregator := health.NewAggregator(a.version)
	aggregator.Register("backend", health.NewHTTPChecker(a.config.API.BaseURL, &http.Client{
		Timeout:   a.config.APITimeout(),
		Transport: a.metrics.Transport(nil),
	}))
	aggregator.Register("session_storage", health.CheckerFunc(a.probeStorage))

	result := aggregator.Check(ctx)
	err := a.printer.Print(result, func() *output.TableData {
		table := output.NewTableData("COMPONENT", "STATUS", "LATENCY", "DETAILS")
		for _, name := range aggregator.Names() {
			s := result.Services[name]
			style := output.StyleSuccess
			if s.Status != health.StatusHealthy {
				style = output.StyleError
			}
			details := s.Details
			if s.Version != "" {
				details = fmt.Sprintf("%s %s", details, s.Version)
			}
			table.AddRowWithStyle(style, name, s.Status, s.Latency.Round(time.Millisecond).String(), details)
		}
		table.AddRowWithStyle(output.StyleMuted, "overall", result.Status, "", "")
		return table
	})
	if err != nil {
		return err
	}

	if result.Status != health.StatusHealthy {
		return handleError(pkgerrors.New(pkgerrors.ErrConnection, "status "+result.Status), cmd, a.logger)
	}
	return nil
}

// probeStorage проверяет хранилище сессии; открытое здесь хранилище закрывается
func (a *App) probeStorage(ctx context.Context) error {
	if a.storage != nil {
		return storage.Probe(ctx, a.storage)
	}
	st, err := storage.Open(ctx, a.config.StorageOptions())
	if err != nil {
		return err
	}
	defer st.Close()
	return storage.Probe(ctx, st)
}
