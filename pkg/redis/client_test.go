package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	config := NewConfig()
	config.Addr = "127.0.0.1:1"
	config.MaxRetries = 0
	config.Timeout = 200 * time.Millisecond

	_, err := Connect(ctx, config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestConnect_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	config := NewConfig()
	config.Addr = "127.0.0.1:1"
	config.MaxRetries = 3
	config.RetryInterval = time.Hour
	config.Timeout = 200 * time.Millisecond

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := Connect(ctx, config)
	require.ErrorIs(t, err, context.Canceled)
}

func TestOptions(t *testing.T) {
	t.Run("host and port", func(t *testing.T) {
		config := NewConfig()
		config.Addr = "cache:6380"
		config.DB = 2
		config.Password = "secret"

		opts, err := config.options()
		require.NoError(t, err)
		assert.Equal(t, "cache:6380", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, "secret", opts.Password)
		assert.Equal(t, 3*time.Second, opts.ReadTimeout)
	})

	t.Run("url", func(t *testing.T) {
		config := NewConfig()
		config.Addr = "redis://:pw@cache:6379/5"

		opts, err := config.options()
		require.NoError(t, err)
		assert.Equal(t, "cache:6379", opts.Addr)
		assert.Equal(t, 5, opts.DB)
		assert.Equal(t, "pw", opts.Password)
	})

	t.Run("invalid url", func(t *testing.T) {
		config := NewConfig()
		config.Addr = "redis://cache:6379/notadb"

		_, err := config.options()
		assert.Error(t, err)
	})
}

func TestHealthCheck_NoClient(t *testing.T) {
	client := &Client{}
	assert.Error(t, client.HealthCheck(context.Background()))
	assert.NoError(t, client.Close())
}
