package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewSagaMetricsWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewSagaMetricsWithRegisterer(reg)

	if metrics == nil {
		t.Fatal("NewSagaMetricsWithRegisterer should not return nil")
	}
	if metrics.sagaStarted == nil || metrics.sagaCompensated == nil || metrics.compensationSteps == nil {
		t.Fatal("collectors must be initialised")
	}

	// Повторная регистрация в том же registry возвращает существующие коллекторы.
	again := NewSagaMetricsWithRegisterer(reg)
	if again.sagaStarted != metrics.sagaStarted {
		t.Fatal("expected existing counter on re-registration")
	}
}

func TestSagaLifecycleCounters(t *testing.T) {
	metrics := NewSagaMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordSagaStarted()
	metrics.RecordSagaStarted()
	metrics.RecordSagaStarted()
	metrics.RecordSagaCompleted(time.Second)
	metrics.RecordSagaCompensated(2 * time.Second)

	if got := counterValue(t, metrics.sagaStarted); got != 3 {
		t.Fatalf("expected started=3, got %v", got)
	}
	if got := counterValue(t, metrics.sagaCompleted); got != 1 {
		t.Fatalf("expected completed=1, got %v", got)
	}
	if got := counterValue(t, metrics.sagaCompensated); got != 1 {
		t.Fatalf("expected compensated=1, got %v", got)
	}
	if got := gaugeValue(t, metrics.activeSagas); got != 1 {
		t.Fatalf("expected one active saga, got %v", got)
	}

	metric := &dto.Metric{}
	if err := metrics.sagaDuration.Write(metric); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if metric.GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("expected 2 duration samples, got %d", metric.GetHistogram().GetSampleCount())
	}
}

func TestLabelledCounters(t *testing.T) {
	metrics := NewSagaMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordCompensationOutcome("vehicle", "applied")
	metrics.RecordCompensationOutcome("vehicle", "applied")
	metrics.RecordCompensationOutcome("reservation", "skipped")
	metrics.RecordPaymentCheck("PENDING")
	metrics.RecordStepFailure("ReserveVehicle", "precondition_failed")
	metrics.RecordPaymentCallback("PAID")

	if got := counterValue(t, metrics.compensationSteps.WithLabelValues("vehicle", "applied")); got != 2 {
		t.Fatalf("expected vehicle/applied=2, got %v", got)
	}
	if got := counterValue(t, metrics.compensationSteps.WithLabelValues("reservation", "skipped")); got != 1 {
		t.Fatalf("expected reservation/skipped=1, got %v", got)
	}
	if got := counterValue(t, metrics.paymentChecks.WithLabelValues("PENDING")); got != 1 {
		t.Fatalf("expected one PENDING check, got %v", got)
	}
	if got := counterValue(t, metrics.stepFailures.WithLabelValues("ReserveVehicle", "precondition_failed")); got != 1 {
		t.Fatalf("expected one step failure, got %v", got)
	}
	if got := counterValue(t, metrics.paymentCallbacks.WithLabelValues("PAID")); got != 1 {
		t.Fatalf("expected one PAID callback, got %v", got)
	}
}

func TestRecordStepDuration(t *testing.T) {
	metrics := NewSagaMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordStepDuration("ReserveVehicle", 10*time.Millisecond)
	metrics.RecordStepDuration("ReserveVehicle", 20*time.Millisecond)

	observer, err := metrics.stepDuration.GetMetricWithLabelValues("ReserveVehicle")
	if err != nil {
		t.Fatalf("get observer: %v", err)
	}
	metric := &dto.Metric{}
	if err := observer.(prometheus.Histogram).Write(metric); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if metric.GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("expected 2 samples, got %d", metric.GetHistogram().GetSampleCount())
	}
}

func TestNilSagaMetricsIsNoop(t *testing.T) {
	var metrics *SagaMetrics

	metrics.RecordSagaStarted()
	metrics.RecordSagaCompleted(time.Second)
	metrics.RecordSagaCompensated(time.Second)
	metrics.RecordSagaFailed(time.Second)
	metrics.RecordStepDuration("ValidateClient", time.Millisecond)
	metrics.RecordStepFailure("ValidateClient", "not_found")
	metrics.RecordPaymentCheck("PAID")
	metrics.RecordCompensationOutcome("sale", "failed")
	metrics.RecordPaymentCallback("FAILED")
	metrics.RecordTimelineEvent()
	metrics.RecordOutboxEvent()
}

func counterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()

	metric := &dto.Metric{}
	if err := gauge.Write(metric); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return metric.GetGauge().GetValue()
}
