package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics содержит метрики саги покупки автомобиля.
// Все методы допускают nil-получатель: без метрик оркестратор работает так же.
type SagaMetrics struct {
	// Счётчики исходов саги
	sagaStarted     prometheus.Counter
	sagaCompleted   prometheus.Counter
	sagaCompensated prometheus.Counter
	sagaFailed      prometheus.Counter

	// Гистограммы времени выполнения
	sagaDuration prometheus.Histogram
	stepDuration *prometheus.HistogramVec

	stepFailures      *prometheus.CounterVec
	paymentChecks     *prometheus.CounterVec
	compensationSteps *prometheus.CounterVec
	paymentCallbacks  *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	activeSagas prometheus.Gauge
}

// NewSagaMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewSagaMetrics() *SagaMetrics {
	return NewSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewSagaMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		sagaStarted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "autosales_saga_started_total",
			Help: "Total number of purchase sagas started",
		}),
		sagaCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "autosales_saga_completed_total",
			Help: "Total number of purchase sagas that completed the sale",
		}),
		sagaCompensated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "autosales_saga_compensated_total",
			Help: "Total number of purchase sagas rolled back by compensation",
		}),
		sagaFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "autosales_saga_failed_total",
			Help: "Total number of purchase sagas whose compensation did not reach CANCELLED",
		}),
		sagaDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "autosales_saga_duration_seconds",
			Help:    "Duration of purchase sagas in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "autosales_saga_step_duration_seconds",
			Help:    "Duration of individual saga steps in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		stepFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "autosales_saga_step_failures_total",
			Help: "Total number of saga step failures by step and error kind",
		}, []string{"step", "kind"}),
		paymentChecks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "autosales_payment_checks_total",
			Help: "Total number of payment status checks by resulting payment status",
		}, []string{"payment_status"}),
		compensationSteps: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "autosales_compensation_steps_total",
			Help: "Compensation sub-step outcomes",
		}, []string{"target", "outcome"}),
		paymentCallbacks: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "autosales_payment_callbacks_total",
			Help: "Total number of payment provider callbacks by reported status",
		}, []string{"payment_status"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "autosales_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "autosales_outbox_events_total",
			Help: "Total number of events enqueued to the outbox",
		}),
		activeSagas: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "autosales_active_sagas",
			Help: "Number of purchase sagas currently running",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordSagaStarted увеличивает счётчик запущенных саг и число активных.
func (m *SagaMetrics) RecordSagaStarted() {
	if m == nil {
		return
	}
	m.sagaStarted.Inc()
	m.activeSagas.Inc()
}

// RecordSagaCompleted фиксирует успешную продажу.
func (m *SagaMetrics) RecordSagaCompleted(duration time.Duration) {
	if m == nil {
		return
	}
	m.sagaCompleted.Inc()
	m.finish(duration)
}

// RecordSagaCompensated фиксирует сагу, откаченную компенсацией.
func (m *SagaMetrics) RecordSagaCompensated(duration time.Duration) {
	if m == nil {
		return
	}
	m.sagaCompensated.Inc()
	m.finish(duration)
}

// RecordSagaFailed фиксирует сагу, компенсация которой не завершилась.
func (m *SagaMetrics) RecordSagaFailed(duration time.Duration) {
	if m == nil {
		return
	}
	m.sagaFailed.Inc()
	m.finish(duration)
}

func (m *SagaMetrics) finish(duration time.Duration) {
	m.activeSagas.Dec()
	m.sagaDuration.Observe(duration.Seconds())
}

// RecordStepDuration записывает время выполнения шага саги.
func (m *SagaMetrics) RecordStepDuration(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordStepFailure считает ошибку шага. kind задаёт класс ошибки (not_found, precondition_failed, ...).
func (m *SagaMetrics) RecordStepFailure(step, kind string) {
	if m == nil {
		return
	}
	m.stepFailures.WithLabelValues(step, kind).Inc()
}

// RecordPaymentCheck считает проверку оплаты по статусу после проверки.
func (m *SagaMetrics) RecordPaymentCheck(paymentStatus string) {
	if m == nil {
		return
	}
	m.paymentChecks.WithLabelValues(paymentStatus).Inc()
}

// RecordCompensationOutcome считает исход подшага компенсации (vehicle, reservation, sale).
func (m *SagaMetrics) RecordCompensationOutcome(target, outcome string) {
	if m == nil {
		return
	}
	m.compensationSteps.WithLabelValues(target, outcome).Inc()
}

// RecordPaymentCallback считает callback платёжного провайдера.
func (m *SagaMetrics) RecordPaymentCallback(paymentStatus string) {
	if m == nil {
		return
	}
	m.paymentCallbacks.WithLabelValues(paymentStatus).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *SagaMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *SagaMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
