package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

var (
	// ErrNotConnected канал не открыт
	ErrNotConnected = errors.New("rabbitmq channel is not initialized")
	// ErrNacked брокер отказался принять сообщение
	ErrNacked = errors.New("message rejected by broker")
	// ErrConfirmTimeout подтверждение не пришло вовремя
	ErrConfirmTimeout = errors.New("timeout waiting for confirmation")
)

// Producer публикует JSON сообщения в exchange из конфигурации
type Producer struct {
	mu     sync.Mutex
	conn   *Connection
	config *Config
}

// NewProducer создает нового продюсера
func NewProducer(conn *Connection, config *Config) *Producer {
	return &Producer{conn: conn, config: config}
}

// PublishOptions параметры одной публикации
type PublishOptions struct {
	Exchange   string
	RoutingKey string
	Headers    amqp091.Table
	// TTL время жизни сообщения в очереди; 0 без ограничения
	TTL   time.Duration
	AppID string
}

// PublishOption настраивает публикацию
type PublishOption func(*PublishOptions)

// WithExchange переопределяет exchange
func WithExchange(exchange string) PublishOption {
	return func(opts *PublishOptions) {
		opts.Exchange = exchange
	}
}

// WithRoutingKey переопределяет routing key
func WithRoutingKey(routingKey string) PublishOption {
	return func(opts *PublishOptions) {
		opts.RoutingKey = routingKey
	}
}

// WithHeaders добавляет заголовки
func WithHeaders(headers amqp091.Table) PublishOption {
	return func(opts *PublishOptions) {
		opts.Headers = headers
	}
}

// WithTTL ограничивает время жизни сообщения
func WithTTL(ttl time.Duration) PublishOption {
	return func(opts *PublishOptions) {
		opts.TTL = ttl
	}
}

// WithAppID задает отправителя
func WithAppID(app string) PublishOption {
	return func(opts *PublishOptions) {
		opts.AppID = app
	}
}

func (p *Producer) publishing(body []byte, opts *PublishOptions) amqp091.Publishing {
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        opts.AppID,
		Timestamp:    time.Now().UTC(),
	}
	if len(opts.Headers) > 0 {
		msg.Headers = opts.Headers
	}
	if opts.TTL > 0 {
		msg.Expiration = strconv.FormatInt(opts.TTL.Milliseconds(), 10)
	}
	return msg
}

// Publish публикует body и ждет подтверждения брокера, если канал
// в confirm режиме
func (p *Producer) Publish(ctx context.Context, body []byte, options ...PublishOption) error {
	opts := &PublishOptions{
		Exchange:   p.config.Exchange,
		RoutingKey: p.config.RoutingKey,
	}
	for _, option := range options {
		option(opts)
	}

	if p.conn == nil || p.conn.Channel() == nil {
		return ErrNotConnected
	}

	// Подтверждения приходят по порядку публикаций
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := p.publishing(body, opts)
	if err := p.conn.Channel().PublishWithContext(ctx, opts.Exchange, opts.RoutingKey, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return p.awaitConfirm(ctx)
}

func (p *Producer) awaitConfirm(ctx context.Context) error {
	if p.conn.confirms == nil {
		return nil
	}

	timeout := p.config.ConfirmTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case confirm, ok := <-p.conn.confirms:
		if !ok {
			return fmt.Errorf("confirmation channel closed")
		}
		if !confirm.Ack {
			return ErrNacked
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for confirmation: %w", ctx.Err())
	case <-timer.C:
		return ErrConfirmTimeout
	}
}
