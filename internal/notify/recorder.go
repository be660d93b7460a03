package notify

import (
	"context"
	"sync"
)

// Recorder запоминает уведомления, используется в тестах
type Recorder struct {
	mu      sync.Mutex
	notices []Notice
}

// NewRecorder создает новый Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, notice Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
}

// Send реализует Sink
func (r *Recorder) Send(ctx context.Context, notice Notice) error {
	r.Notify(ctx, notice)
	return nil
}

// Notices возвращает копию полученных уведомлений
func (r *Recorder) Notices() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, len(r.notices))
	copy(out, r.notices)
	return out
}

// Messages возвращает тексты уведомлений указанного уровня; пустой уровень означает все
func (r *Recorder) Messages(level Level) []string {
	var out []string
	for _, n := range r.Notices() {
		if level == "" || n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}

// Reset очищает список
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = nil
}
