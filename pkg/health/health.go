package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// HealthChecker интерфейс для проверки здоровья компонента
type HealthChecker interface {
	Check(ctx context.Context) Status
}

// HealthStatus представляет сводный статус
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]Status `json:"services,omitempty"`
	Version   string            `json:"version,omitempty"`
}

// Status представляет статус отдельного компонента
type Status struct {
	Status  string        `json:"status"`
	Details string        `json:"details,omitempty"`
	Version string        `json:"version,omitempty"`
	Latency time.Duration `json:"latency_ns,omitempty"`
}

// CheckerFunc адаптер функции к HealthChecker
type CheckerFunc func(ctx context.Context) error

// Check выполняет проверку
func (f CheckerFunc) Check(ctx context.Context) Status {
	start := time.Now()
	if err := f(ctx); err != nil {
		return Status{Status: StatusUnhealthy, Details: err.Error(), Latency: time.Since(start)}
	}
	return Status{Status: StatusHealthy, Latency: time.Since(start)}
}

// Aggregator опрашивает набор именованных проверок
type Aggregator struct {
	version  string
	checkers map[string]HealthChecker
}

// NewAggregator создает новый Aggregator
func NewAggregator(version string) *Aggregator {
	return &Aggregator{version: version, checkers: make(map[string]HealthChecker)}
}

// Register добавляет проверку
func (a *Aggregator) Register(name string, checker HealthChecker) {
	a.checkers[name] = checker
}

// Names возвращает имена проверок в алфавитном порядке
func (a *Aggregator) Names() []string {
	names := make([]string, 0, len(a.checkers))
	for name := range a.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check проверяет все зарегистрированные компоненты.
// Сводный статус unhealthy, если все компоненты недоступны, degraded, если часть.
func (a *Aggregator) Check(ctx context.Context) *HealthStatus {
	result := &HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Services:  make(map[string]Status, len(a.checkers)),
		Version:   a.version,
	}

	failed := 0
	for _, name := range a.Names() {
		status := a.checkers[name].Check(ctx)
		result.Services[name] = status
		if status.Status != StatusHealthy {
			failed++
		}
	}

	switch {
	case failed == 0:
	case failed == len(a.checkers):
		result.Status = StatusUnhealthy
	default:
		result.Status = StatusDegraded
	}

	return result
}

// BackendInfo ответ эндпоинта /health бэкенда
type BackendInfo struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Service string `json:"service"`
}

// HTTPChecker проверяет доступность бэкенда по GET {baseURL}/health
type HTTPChecker struct {
	baseURL string
	client  *http.Client
}

// NewHTTPChecker создает новый HTTPChecker
func NewHTTPChecker(baseURL string, client *http.Client) *HTTPChecker {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPChecker{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Check выполняет запрос к бэкенду
func (h *HTTPChecker) Check(ctx context.Context) Status {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/health", nil)
	if err != nil {
		return Status{Status: StatusUnhealthy, Details: err.Error()}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Status{Status: StatusUnhealthy, Details: err.Error(), Latency: time.Since(start)}
	}
	defer resp.Body.Close()

	latency := time.Since(start)
	if resp.StatusCode != http.StatusOK {
		return Status{Status: StatusUnhealthy, Details: fmt.Sprintf("status code %d", resp.StatusCode), Latency: latency}
	}

	var info BackendInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Status{Status: StatusUnhealthy, Details: "invalid health response: " + err.Error(), Latency: latency}
	}

	status := Status{Status: StatusHealthy, Version: info.Version, Details: info.Service, Latency: latency}
	if info.Status != "" && info.Status != StatusHealthy {
		status.Status = StatusUnhealthy
	}
	return status
}

// Handler создает HTTP обработчик для health эндпоинта в формате бэкенда
func Handler(service, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		json.NewEncoder(w).Encode(BackendInfo{
			Status:  StatusHealthy,
			Version: version,
			Service: service,
		})
	}
}
