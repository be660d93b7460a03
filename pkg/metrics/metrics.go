package metrics

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Metrics представляет систему метрик клиента
type Metrics struct {
	// Метрики исходящих HTTP запросов к бэкенду
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsCount     *prometheus.CounterVec

	// Метрики команд CLI
	CommandCount    *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Registry собственный реестр, чтобы несколько экземпляров не конфликтовали
	Registry *prometheus.Registry

	// OpenTelemetry Tracer
	Tracer trace.Tracer `json:"-"`
}

// Option настраивает Metrics
type Option func(*options)

type options struct {
	tracerProvider trace.TracerProvider
}

// WithTracerProvider задает провайдер трассировки вместо глобального
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// NewMetrics создает новую систему метрик
func NewMetrics(serviceName string, opts ...Option) *Metrics {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	namespace := strings.ReplaceAll(serviceName, "-", "_")

	requestCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	errorsCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http_client",
			Name:      "errors_total",
			Help:      "Total number of failed outbound HTTP requests",
		},
		[]string{"method", "endpoint", "error_type"},
	)

	commandCount := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cli",
			Name:      "commands_total",
			Help:      "Total number of executed commands",
		},
		[]string{"command", "status"},
	)

	commandDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cli",
			Name:      "command_duration_seconds",
			Help:      "Duration of executed commands in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(requestCount, requestDuration, errorsCount, commandCount, commandDuration)

	var tracer trace.Tracer
	if o.tracerProvider != nil {
		tracer = o.tracerProvider.Tracer(serviceName)
	} else {
		tracer = otel.Tracer(serviceName)
	}

	return &Metrics{
		RequestCount:    requestCount,
		RequestDuration: requestDuration,
		ErrorsCount:     errorsCount,
		CommandCount:    commandCount,
		CommandDuration: commandDuration,
		Registry:        registry,
		Tracer:          tracer,
	}
}

// GetHandler возвращает HTTP обработчик для эндпоинта /metrics
func (m *Metrics) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// WriteTextfile пишет метрики в файл для textfile коллектора node_exporter
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// CommandExecuted регистрирует выполнение команды
func (m *Metrics) CommandExecuted(command string, success bool, duration time.Duration) {
	m.CommandCount.WithLabelValues(command, statusLabel(success)).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Transport оборачивает RoundTripper сбором метрик и трассировкой
func (m *Metrics) Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &instrumentedTransport{next: next, metrics: m}
}

type instrumentedTransport struct {
	next    http.RoundTripper
	metrics *Metrics
}

// RoundTrip выполняет запрос, записывая длительность, статус и спан
func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	endpoint := NormalizePath(req.URL.Path)

	ctx, span := t.metrics.Tracer.Start(req.Context(), req.Method+" "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	resp, err := t.next.RoundTrip(req.WithContext(ctx))
	duration := time.Since(start).Seconds()

	t.metrics.RequestDuration.WithLabelValues(req.Method, endpoint).Observe(duration)

	span.SetAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL.String()),
		attribute.Float64("http.duration", duration),
	)

	if err != nil {
		t.metrics.RequestCount.WithLabelValues(req.Method, endpoint, "none").Inc()
		t.metrics.ErrorsCount.WithLabelValues(req.Method, endpoint, "transport_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	t.metrics.RequestCount.WithLabelValues(req.Method, endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		errorType := "client_error"
		if resp.StatusCode >= 500 {
			errorType = "server_error"
		}
		t.metrics.ErrorsCount.WithLabelValues(req.Method, endpoint, errorType).Inc()
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}

	return resp, nil
}

var idSegment = regexp.MustCompile(`^([0-9]+|[0-9a-fA-F-]{32,36}|.+\..+)$`)

// NormalizePath заменяет идентификаторы в пути на {id}, чтобы не раздувать метки
func NormalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if s != "" && idSegment.MatchString(s) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

// InitializeOpenTelemetry инициализирует глобальный провайдер трассировки
func InitializeOpenTelemetry(serviceName, version string) *tracesdk.TracerProvider {
	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		)),
	)

	otel.SetTracerProvider(tp)

	return tp
}

// ShutdownTracing завершает провайдер трассировки
func ShutdownTracing(ctx context.Context, tp *tracesdk.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}
