package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"ReqTrack/pkg/logger"
	"ReqTrack/pkg/rabbitmq"
)

// TerminalSink печатает уведомления в терминал
type TerminalSink struct {
	w io.Writer
}

// NewTerminalSink создает новый TerminalSink
func NewTerminalSink(w io.Writer) *TerminalSink {
	return &TerminalSink{w: w}
}

func (s *TerminalSink) Send(_ context.Context, notice Notice) error {
	_, err := fmt.Fprintf(s.w, "%s %s\n", icon(notice.Level), notice.Message)
	return err
}

func icon(level Level) string {
	switch level {
	case LevelSuccess:
		return "✅"
	case LevelWarning:
		return "⚠️"
	case LevelError:
		return "❌"
	default:
		return "ℹ️"
	}
}

// LogSink пишет уведомления в лог на уровне debug
type LogSink struct {
	logger logger.Logger
}

// NewLogSink создает новый LogSink
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Send(_ context.Context, notice Notice) error {
	fields := []logger.Field{
		logger.String("level", string(notice.Level)),
		logger.String("notice", notice.Message),
	}
	// Уведомление уже показано пользователю, в лог только на debug
	s.logger.Debug("Notice", fields...)
	return nil
}

// Publisher публикует сообщение в брокер
type Publisher interface {
	Publish(ctx context.Context, body []byte, options ...rabbitmq.PublishOption) error
}

// noticeTTL время жизни уведомления в очереди
const noticeTTL = 24 * time.Hour

// AMQPSink публикует уведомления в RabbitMQ с routing key notice.<level>
type AMQPSink struct {
	publisher Publisher
	source    string
}

// NewAMQPSink создает новый AMQPSink
func NewAMQPSink(publisher Publisher, source string) *AMQPSink {
	return &AMQPSink{publisher: publisher, source: source}
}

func (s *AMQPSink) Send(ctx context.Context, notice Notice) error {
	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}

	return s.publisher.Publish(ctx, body,
		rabbitmq.WithRoutingKey("notice."+string(notice.Level)),
		rabbitmq.WithHeaders(amqp091.Table{"source": s.source}),
		rabbitmq.WithAppID(s.source),
		rabbitmq.WithTTL(noticeTTL),
	)
}
