package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReqTrack/pkg/logger"
	"ReqTrack/pkg/rabbitmq"
)

type failingSink struct{}

func (failingSink) Send(context.Context, Notice) error { return errors.New("broken") }

func TestDispatcher_FanOut(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder()
	d := NewDispatcher(logger.NewNop(), failingSink{}, NewTerminalSink(&buf), rec)

	Success(context.Background(), d, "Logged in")
	Error(context.Background(), d, "Connection error")

	assert.Equal(t, []string{"Logged in", "Connection error"}, rec.Messages(""))
	assert.Equal(t, []string{"Connection error"}, rec.Messages(LevelError))
	assert.Contains(t, buf.String(), "✅ Logged in")
	assert.Contains(t, buf.String(), "❌ Connection error")

	for _, n := range rec.Notices() {
		assert.False(t, n.Time.IsZero())
	}
}

func TestRecorder_Reset(t *testing.T) {
	rec := NewRecorder()
	Info(context.Background(), rec, "a")
	Warning(context.Background(), rec, "b")
	require.Len(t, rec.Notices(), 2)

	rec.Reset()
	assert.Empty(t, rec.Notices())
}

type fakePublisher struct {
	body []byte
	opts rabbitmq.PublishOptions
}

func (f *fakePublisher) Publish(_ context.Context, body []byte, options ...rabbitmq.PublishOption) error {
	f.body = body
	for _, o := range options {
		o(&f.opts)
	}
	return nil
}

func TestAMQPSink_Send(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewAMQPSink(pub, "reqtrack-cli")

	require.NoError(t, sink.Send(context.Background(), Notice{Level: LevelWarning, Message: "Field deactivated"}))

	assert.Equal(t, "notice.warning", pub.opts.RoutingKey)
	assert.Equal(t, "reqtrack-cli", pub.opts.Headers["source"])
	assert.Equal(t, "reqtrack-cli", pub.opts.AppID)
	assert.Equal(t, noticeTTL, pub.opts.TTL)

	var got Notice
	require.NoError(t, json.Unmarshal(pub.body, &got))
	assert.Equal(t, LevelWarning, got.Level)
	assert.Equal(t, "Field deactivated", got.Message)
}

func TestLogSink_Send(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.NewLoggerTo(&buf, "prod", "debug", "reqtrack")
	require.NoError(t, err)

	require.NoError(t, NewLogSink(log).Send(context.Background(), Notice{Level: LevelError, Message: "boom"}))
	assert.Contains(t, buf.String(), "boom")
}

func TestLogSink_ErrorNoticeHiddenAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.NewLoggerTo(&buf, "prod", "warn", "reqtrack")
	require.NoError(t, err)

	require.NoError(t, NewLogSink(log).Send(context.Background(), Notice{Level: LevelError, Message: "boom"}))
	require.NoError(t, log.Sync())
	assert.Empty(t, buf.String())
}
