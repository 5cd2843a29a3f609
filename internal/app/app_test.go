package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/health"
	"github.com/vladislavdragonenkov/autosales/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/autosales/internal/service/payment"
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "app-test")
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.PaymentPollInterval = 0
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func newTestRuntime(t *testing.T, cfg Config) *runtime {
	t.Helper()
	rt, err := newRuntime(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(rt.release)
	return rt
}

func call(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, reader))
	return w
}

func TestRuntime_PurchaseThroughAPI(t *testing.T) {
	rt := newTestRuntime(t, testConfig())

	w := call(t, rt.api, http.MethodPost, "/vehicles", map[string]any{
		"brand": "Toyota", "model": "Corolla", "year": 2024, "color": "white", "price": 20000,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var vehicle domain.Vehicle
	require.NoError(t, json.NewDecoder(w.Body).Decode(&vehicle))

	w = call(t, rt.api, http.MethodPost, "/clients", map[string]any{
		"fullName": "Ivan Petrov", "email": "ivan@example.com", "documentNumber": "1234567",
		"paymentKey": "pk-1", "address": "Lenina 1",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var client domain.Client
	require.NoError(t, json.NewDecoder(w.Body).Decode(&client))

	w = call(t, rt.api, http.MethodPost, "/purchases", map[string]any{
		"vehicleId":             vehicle.ID,
		"clientId":              client.ID,
		"reservationTtlMinutes": 15,
		"maxPaymentChecks":      3,
		"paymentApproved":       true,
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	var submission struct {
		SaleID          string `json:"saleId"`
		ExecutionHandle string `json:"executionHandle"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&submission))
	require.Equal(t, domain.ExecutionHandleFor(submission.SaleID), submission.ExecutionHandle)

	rt.initiator.Wait()

	w = call(t, rt.api, http.MethodGet, "/sales/"+submission.SaleID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sale domain.Sale
	require.NoError(t, json.NewDecoder(w.Body).Decode(&sale))
	require.Equal(t, domain.SaleStatusCompleted, sale.Status)
	require.EqualValues(t, 20000, sale.TotalPrice)

	w = call(t, rt.api, http.MethodGet, "/executions/"+submission.ExecutionHandle, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var exec domain.Execution
	require.NoError(t, json.NewDecoder(w.Body).Decode(&exec))
	require.Equal(t, domain.ExecutionStatusSucceeded, exec.Status)

	w = call(t, rt.api, http.MethodGet, "/vehicles/sold", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), vehicle.ID)

	stats, err := rt.storage.outbox.Stats(context.Background())
	require.NoError(t, err)
	require.Positive(t, stats.PendingCount, "without a broker events stay in outbox")
	require.Nil(t, rt.worker)
	require.Nil(t, rt.cleanup)
}

func TestRuntime_MetricsAndHealth(t *testing.T) {
	rt := newTestRuntime(t, testConfig())
	h := rt.metricsHandler()

	w := call(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "autosales_saga_started_total")
	require.Contains(t, w.Body.String(), "go_goroutines")

	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/healthz", nil).Code)
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/readyz", nil).Code)
	require.Equal(t, http.StatusOK, call(t, h, http.MethodGet, "/livez", nil).Code)
}

func TestRuntime_RedisExecutionStore(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.ExecutionStore = ExecutionStoreRedis
	cfg.RedisAddr = mr.Addr()
	rt := newTestRuntime(t, cfg)

	require.NoError(t, rt.storage.executions.Save(context.Background(), domain.Execution{
		Handle: "sale-abc",
		SaleID: "abc",
		Status: domain.ExecutionStatusRunning,
	}))
	require.True(t, mr.Exists("autosales:execution:sale-abc"))

	w := call(t, rt.api, http.MethodGet, "/executions/sale-abc", nil)
	require.Equal(t, http.StatusOK, w.Code)

	response := rt.health.Evaluate(context.Background())
	require.Contains(t, response.Checks, "redis")
	require.Equal(t, health.StatusHealthy, response.Status)
}

func TestApplyCallback(t *testing.T) {
	applier := &recordingApplier{}
	apply := applyCallback(applier)

	err := apply(context.Background(), kafka.PaymentCallbackEvent{
		SaleID:            "s-1",
		PaymentStatus:     "PAID",
		ProviderReference: "psp-1",
	})
	require.NoError(t, err)
	require.Equal(t, payment.CallbackRequest{
		SaleID:            "s-1",
		PaymentStatus:     domain.PaymentStatusPaid,
		ProviderReference: "psp-1",
	}, applier.got)

	applier.err = domain.ErrNotFound
	require.ErrorIs(t, apply(context.Background(), kafka.PaymentCallbackEvent{SaleID: "x"}), domain.ErrNotFound)
}

type recordingApplier struct {
	got payment.CallbackRequest
	err error
}

func (r *recordingApplier) Handle(_ context.Context, req payment.CallbackRequest) (payment.CallbackResult, error) {
	r.got = req
	return payment.CallbackResult{}, r.err
}

func TestRun_GracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, testConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := testConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestRun_PortInUse(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	cfg := testConfig()
	cfg.HTTPAddr = strings.TrimPrefix(busy.URL, "http://")

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "listen http") {
		t.Fatalf("expected listen error, got %v", err)
	}
}
