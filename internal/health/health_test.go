package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func ok(context.Context) error { return nil }

func TestHandler_Healthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.Register("storage", ok)
	handler.Register("kafka", ok)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Status != StatusHealthy || response.Version != "v1.0.0" || len(response.Checks) != 2 {
		t.Fatalf("unexpected response: %+v", response)
	}
}

func TestHandler_CriticalFailure(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.Register("storage", func(context.Context) error { return errors.New("connection refused") })

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var response Response
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Checks["storage"].Message != "connection refused" {
		t.Fatalf("expected failure message, got %+v", response.Checks["storage"])
	}
}

func TestHandler_OptionalFailureDegrades(t *testing.T) {
	handler := NewHandler("dev")
	handler.Register("storage", ok)
	handler.RegisterOptional("execution-store", func(context.Context) error { return errors.New("redis down") })

	response := handler.Evaluate(context.Background())
	if response.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", response.Status)
	}

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("degraded service is still ready, got %d", w.Code)
	}
}

func TestHandler_CheckTimeout(t *testing.T) {
	handler := NewHandler("dev")
	handler.timeout = 10 * time.Millisecond
	handler.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	response := handler.Evaluate(context.Background())
	if time.Since(start) > time.Second {
		t.Fatal("evaluation must respect timeout")
	}
	if response.Checks["slow"].Status != StatusUnhealthy {
		t.Fatalf("timed out check must be unhealthy, got %+v", response.Checks["slow"])
	}
}

func TestReadinessHandler_NotReady(t *testing.T) {
	handler := NewHandler("dev")
	handler.Register("storage", func(context.Context) error { return errors.New("down") })

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable || w.Body.String() != "not ready" {
		t.Fatalf("unexpected readiness response: %d %q", w.Code, w.Body.String())
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected liveness response: %d %q", w.Code, w.Body.String())
	}
}
