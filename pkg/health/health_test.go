package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHTTPChecker_Healthy проверяет ответ бэкенда
func TestHTTPChecker_Healthy(t *testing.T) {
	server := httptest.NewServer(Handler("Requirements Tracking System", "1.0.0"))
	defer server.Close()

	status := NewHTTPChecker(server.URL+"/", nil).Check(context.Background())

	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, "1.0.0", status.Version)
	assert.Equal(t, "Requirements Tracking System", status.Details)
}

// TestHTTPChecker_BadStatus проверяет ошибочный код ответа
func TestHTTPChecker_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	status := NewHTTPChecker(server.URL, nil).Check(context.Background())

	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Contains(t, status.Details, "503")
}

// TestHTTPChecker_Unreachable проверяет недоступный бэкенд
func TestHTTPChecker_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	status := NewHTTPChecker(url, nil).Check(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
}

// TestAggregator_Check проверяет сводный статус
func TestAggregator_Check(t *testing.T) {
	ok := CheckerFunc(func(ctx context.Context) error { return nil })
	fail := CheckerFunc(func(ctx context.Context) error { return errors.New("down") })

	tests := []struct {
		name     string
		checkers map[string]HealthChecker
		want     string
	}{
		{"all healthy", map[string]HealthChecker{"backend": ok, "storage": ok}, StatusHealthy},
		{"one failed", map[string]HealthChecker{"backend": fail, "storage": ok}, StatusDegraded},
		{"all failed", map[string]HealthChecker{"backend": fail, "storage": fail}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator("v1")
			for name, c := range tt.checkers {
				agg.Register(name, c)
			}

			result := agg.Check(context.Background())
			require.Len(t, result.Services, len(tt.checkers))
			assert.Equal(t, tt.want, result.Status)
			assert.Equal(t, "v1", result.Version)
			assert.False(t, result.Timestamp.IsZero())
		})
	}
}

// TestAggregator_Names проверяет порядок имен
func TestAggregator_Names(t *testing.T) {
	agg := NewAggregator("")
	agg.Register("storage", CheckerFunc(func(context.Context) error { return nil }))
	agg.Register("backend", CheckerFunc(func(context.Context) error { return nil }))

	assert.Equal(t, []string{"backend", "storage"}, agg.Names())
}
