// Package health отдаёт liveness и readiness пробы сервиса продаж.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const defaultCheckTimeout = 2 * time.Second

// Status — итоговое состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check хранит результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response описывает тело ответа /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// CheckFunc проверяет зависимость. Ошибка означает, что она недоступна.
type CheckFunc func(ctx context.Context) error

type registration struct {
	fn       CheckFunc
	critical bool
}

// Handler собирает проверки зависимостей.
type Handler struct {
	mu        sync.RWMutex
	checks    map[string]registration
	version   string
	timeout   time.Duration
	startTime time.Time
	now       func() time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		checks:    make(map[string]registration),
		version:   version,
		timeout:   defaultCheckTimeout,
		startTime: time.Now(),
		now:       time.Now,
	}
}

// Register добавляет критичную проверку: её отказ делает сервис unhealthy.
func (h *Handler) Register(name string, fn CheckFunc) {
	h.register(name, fn, true)
}

// RegisterOptional добавляет проверку, отказ которой переводит сервис в degraded.
func (h *Handler) RegisterOptional(name string, fn CheckFunc) {
	h.register(name, fn, false)
}

func (h *Handler) register(name string, fn CheckFunc, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = registration{fn: fn, critical: critical}
}

// Evaluate параллельно выполняет все проверки с общим таймаутом.
func (h *Handler) Evaluate(ctx context.Context) Response {
	h.mu.RLock()
	regs := make(map[string]registration, len(h.checks))
	for name, reg := range h.checks {
		regs[name] = reg
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]Check, len(regs))
	)
	for name, reg := range regs {
		wg.Add(1)
		go func(name string, reg registration) {
			defer wg.Done()
			check := run(ctx, name, reg)
			mu.Lock()
			checks[name] = check
			mu.Unlock()
		}(name, reg)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, check := range checks {
		switch {
		case check.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case check.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return Response{
		Status:        overall,
		Timestamp:     h.now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(h.now().Sub(h.startTime).Seconds()),
	}
}

func run(ctx context.Context, name string, reg registration) Check {
	start := time.Now()
	err := reg.fn(ctx)
	check := Check{Name: name, Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err == nil {
		return check
	}
	check.Message = err.Error()
	check.Status = StatusDegraded
	if reg.critical {
		check.Status = StatusUnhealthy
	}
	return check
}

// ServeHTTP отдаёт подробный отчёт; 503 при отказе критичной проверки.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := h.Evaluate(r.Context())

	code := http.StatusOK
	if response.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(response)
}

// ReadinessHandler отвечает "ready", пока все критичные проверки проходят.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler всегда отвечает 200.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
