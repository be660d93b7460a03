// Package notify доставляет пользовательские уведомления в один или
// несколько приемников: терминал, лог, очередь RabbitMQ.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ReqTrack/pkg/logger"
)

// Level уровень уведомления
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice пользовательское уведомление
type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier принимает уведомления
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// Sink приемник уведомлений
type Sink interface {
	Send(ctx context.Context, notice Notice) error
}

// Dispatcher рассылает уведомление во все приемники.
// Ошибка одного приемника не мешает остальным.
type Dispatcher struct {
	mu     sync.Mutex
	sinks  []Sink
	logger logger.Logger
}

// NewDispatcher создает новый Dispatcher
func NewDispatcher(log logger.Logger, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{sinks: sinks, logger: log}
}

// AddSink добавляет приемник
func (d *Dispatcher) AddSink(sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, sink)
}

// Notify отправляет уведомление
func (d *Dispatcher) Notify(ctx context.Context, notice Notice) {
	if notice.Time.IsZero() {
		notice.Time = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sink := range d.sinks {
		if err := sink.Send(ctx, notice); err != nil {
			d.logger.Warn("Failed to deliver notice",
				logger.String("sink", fmt.Sprintf("%T", sink)),
				logger.Error(err))
		}
	}
}

// Success отправляет уведомление об успехе
func Success(ctx context.Context, n Notifier, message string) {
	n.Notify(ctx, Notice{Level: LevelSuccess, Message: message})
}

// Info отправляет информационное уведомление
func Info(ctx context.Context, n Notifier, message string) {
	n.Notify(ctx, Notice{Level: LevelInfo, Message: message})
}

// Warning отправляет предупреждение
func Warning(ctx context.Context, n Notifier, message string) {
	n.Notify(ctx, Notice{Level: LevelWarning, Message: message})
}

// Error отправляет уведомление об ошибке
func Error(ctx context.Context, n Notifier, message string) {
	n.Notify(ctx, Notice{Level: LevelError, Message: message})
}

// Discard отбрасывает уведомления
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(context.Context, Notice) {}
