// Package cli дерево команд reqtrack.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"

	pkgerrors "ReqTrack/pkg/errors"
	"ReqTrack/pkg/logger"
	"ReqTrack/pkg/metrics"
	"ReqTrack/pkg/rabbitmq"

	"ReqTrack/internal/apiclient"
	"ReqTrack/internal/config"
	"ReqTrack/internal/dynfield"
	"ReqTrack/internal/notify"
	"ReqTrack/internal/output"
	"ReqTrack/internal/session"
	"ReqTrack/internal/storage"
	"ReqTrack/internal/tracker"
)

const serviceName = "reqtrack"

// App состояние одного запуска CLI
type App struct {
	in      io.Reader
	reader  *bufio.Reader
	out     io.Writer
	errOut  io.Writer
	version string

	viper   *viper.Viper
	config  *config.Config
	logger  logger.Logger
	metrics *metrics.Metrics
	tracer  *tracesdk.TracerProvider
	printer *output.Printer

	notifier *notify.Dispatcher
	amqp     *rabbitmq.Connection

	storage     storage.Storage
	ownsStorage bool
	client      *apiclient.Client
	session     *session.Store
	fields      *dynfield.Service
	tracker     *tracker.Service
}

// Option настраивает App
type Option func(*App)

// WithIO подменяет стандартные потоки
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(a *App) {
		a.in = in
		a.out = out
		a.errOut = errOut
	}
}

// WithStorage задает готовое хранилище сессии вместо открытия по конфигурации
func WithStorage(st storage.Storage) Option {
	return func(a *App) {
		a.storage = st
	}
}

// WithVersion задает версию для команды version и трассировки
func WithVersion(version string) Option {
	return func(a *App) {
		a.version = version
	}
}

// NewApp создает App
func NewApp(opts ...Option) *App {
	a := &App{
		in:      os.Stdin,
		out:     os.Stdout,
		errOut:  os.Stderr,
		version: "dev",
		viper:   viper.New(),
		logger:  logger.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute выполняет команду с аргументами args
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.NewRootCommand()
	root.SetArgs(args)

	start := time.Now()
	cmd, err := root.ExecuteContextC(ctx)
	if a.metrics != nil && cmd != nil {
		a.metrics.CommandExecuted(cmd.CommandPath(), err == nil, time.Since(start))
	}
	a.close(ctx)
	return err
}

// NewRootCommand строит дерево команд
func (a *App) NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reqtrack",
		Short: "CLI для системы учета требований",
		Long: `reqtrack клиент системы учета требований.
Управляет сессией, динамическими полями, проектами, требованиями и логотипом.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	rootCmd.SetIn(a.in)
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.errOut)

	rootCmd.PersistentFlags().StringP("config", "c", "", "файл конфигурации (по умолчанию ~/.reqtrack/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "формат вывода (table, json, yaml)")
	rootCmd.PersistentFlags().String("api-url", "", "адрес бэкенда")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "подробный вывод")
	rootCmd.PersistentFlags().Bool("debug", false, "отладочный вывод")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "не запрашивать подтверждение")

	a.viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	a.viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	a.viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	a.viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	a.viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	a.viper.BindPFlag("yes", rootCmd.PersistentFlags().Lookup("yes"))

	rootCmd.AddCommand(
		a.newAuthCmd(),
		a.newFieldsCmd(),
		a.newProjectsCmd(),
		a.newRequirementsCmd(),
		a.newUsersCmd(),
		a.newDashboardCmd(),
		a.newLogoCmd(),
		a.newConfigCmd(),
		a.newHealthCmd(),
		a.newCompletionCmd(rootCmd),
		a.newVersionCmd(),
	)
	return rootCmd
}

// setup загружает конфигурацию и инициализирует логгер, метрики и уведомления
func (a *App) setup(cmd *cobra.Command) error {
	path := a.viper.GetString("config")
	if path == "" {
		var err error
		path, err = config.GetConfigPath()
		if err != nil {
			return handleError(err, cmd, a.logger)
		}
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return handleError(pkgerrors.Wrap(err, pkgerrors.ErrValidation, err.Error()), cmd, a.logger)
	}
	if a.viper.IsSet("api_url") {
		cfg.API.BaseURL = a.viper.GetString("api_url")
	}
	if a.viper.IsSet("output") {
		cfg.Output.Format = a.viper.GetString("output")
	}
	a.config = cfg

	level := cfg.Logger.Level
	switch {
	case a.viper.GetBool("debug"):
		level = "debug"
	case a.viper.GetBool("verbose"):
		level = "info"
	}
	log, err := logger.NewLoggerTo(a.errOut, cfg.LoggerEnvironment(), level, serviceName)
	if err != nil {
		return handleError(err, cmd, a.logger)
	}
	a.logger = log

	if cfg.Tracing.Enabled {
		a.tracer = metrics.InitializeOpenTelemetry(serviceName, a.version)
		a.metrics = metrics.NewMetrics(serviceName, metrics.WithTracerProvider(a.tracer))
	} else {
		a.metrics = metrics.NewMetrics(serviceName)
	}

	format, err := output.ParseFormat(cfg.Output.Format)
	if err != nil {
		return handleError(pkgerrors.New(pkgerrors.ErrValidation, err.Error()), cmd, a.logger)
	}
	a.printer = output.NewPrinter(format, cfg.Output.Colors, a.out)

	a.notifier = notify.NewDispatcher(a.logger, notify.NewTerminalSink(a.errOut), notify.NewLogSink(a.logger))
	if cfg.Notify.AMQP.Enabled {
		a.connectAMQP(cmd.Context())
	}

	a.logger.Debug("Configuration loaded",
		logger.String("path", cfg.Path),
		logger.String("api", cfg.API.BaseURL),
		logger.String("storage", cfg.Storage.Backend))
	return nil
}

// connectAMQP подключает публикацию уведомлений в RabbitMQ.
// Недоступный брокер не мешает работе команды.
func (a *App) connectAMQP(ctx context.Context) {
	rc := a.config.RabbitMQConfig()
	rc.MaxRetries = 1

	conn, err := rabbitmq.Connect(ctx, rc)
	if err != nil {
		a.logger.Warn("RabbitMQ is unavailable, notices are not published", logger.Error(err))
		return
	}
	a.amqp = conn
	a.notifier.AddSink(notify.NewAMQPSink(rabbitmq.NewProducer(conn, rc), serviceName))
}

// connect создает клиент API, сессию и сервисы. Вызывается командами,
// которым нужен бэкенд.
func (a *App) connect(ctx context.Context) error {
	if a.client != nil {
		return nil
	}

	if a.storage == nil {
		st, err := storage.Open(ctx, a.config.StorageOptions())
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.ErrInternal, "failed to open session storage")
		}
		a.storage = st
		a.ownsStorage = true
	}

	a.client = apiclient.New(apiclient.Options{
		BaseURL:   a.config.API.BaseURL,
		Timeout:   a.config.APITimeout(),
		Transport: a.metrics.Transport(nil),
		Notifier:  a.notifier,
		Navigator: apiclient.NavigatorFunc(a.toLogin),
		Logger:    a.logger,
	})
	a.session = session.NewStore(a.client, a.storage, a.notifier, a.logger)
	a.fields = dynfield.NewService(a.client, a.notifier, a.logger)
	a.tracker = tracker.NewService(a.client)
	return nil
}

// requireSession восстанавливает сессию и возвращает пользователя.
// Команда не выполняется, пока восстановление не завершено.
func (a *App) requireSession(ctx context.Context) (*session.User, error) {
	if err := a.connect(ctx); err != nil {
		return nil, err
	}
	a.session.Restore(ctx)
	if err := a.session.Wait(ctx); err != nil {
		return nil, err
	}

	user := a.session.User()
	if a.session.State() != session.StatePresent || user == nil {
		a.toLogin()
		return nil, pkgerrors.New(pkgerrors.ErrUnauthorized, "not logged in")
	}
	return user, nil
}

func (a *App) toLogin() {
	fmt.Fprintln(a.errOut, "Run 'reqtrack auth login' to sign in.")
}

// prompt читает строку ответа пользователя
func (a *App) prompt(label string) (string, error) {
	if a.reader == nil {
		a.reader = bufio.NewReader(a.in)
	}
	fmt.Fprint(a.errOut, label)
	line, err := a.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirmer подтверждение удаления; --yes отключает вопрос
func (a *App) confirmer() dynfield.Confirmer {
	if a.viper.GetBool("yes") {
		return dynfield.AlwaysConfirm
	}
	return dynfield.ConfirmFunc(func(ctx context.Context, question string) (bool, error) {
		answer, err := a.prompt(question + " [y/N]: ")
		if err != nil {
			return false, err
		}
		answer = strings.ToLower(answer)
		return answer == "y" || answer == "yes", nil
	})
}

// close освобождает ресурсы запуска
func (a *App) close(ctx context.Context) {
	if a.metrics != nil && a.config != nil {
		if err := a.metrics.WriteTextfile(a.config.Metrics.TextfilePath); err != nil {
			a.logger.Warn("Failed to export metrics", logger.Error(err))
		}
	}
	if a.tracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := metrics.ShutdownTracing(shutdownCtx, a.tracer); err != nil {
			a.logger.Warn("Failed to shutdown tracing", logger.Error(err))
		}
	}
	if a.amqp != nil {
		a.amqp.Close()
	}
	if a.storage != nil && a.ownsStorage {
		a.storage.Close()
	}
	a.logger.Sync()
}

// handleError приводит ошибку к *errors.Error и сообщению для пользователя
func handleError(err error, cmd *cobra.Command, log logger.Logger) error {
	if err == nil {
		return nil
	}

	var appErr *pkgerrors.Error
	if !errors.As(err, &appErr) {
		appErr = pkgerrors.Wrap(err, pkgerrors.ErrInternal, err.Error())
	}

	log.Debug("Command failed",
		logger.String("command", cmd.CommandPath()),
		logger.String("code", string(appErr.Code)),
		logger.Int("status", appErr.Status),
		logger.Error(err))

	return fmt.Errorf("%s: %s", cmd.Name(), userMessage(appErr))
}

// userMessage текст ошибки для пользователя; общий текст по коду, если своего нет
func userMessage(appErr *pkgerrors.Error) string {
	if appErr.Message != "" {
		return appErr.Message
	}
	return appErr.GetUserMessage()
}
