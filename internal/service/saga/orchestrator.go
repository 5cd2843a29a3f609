package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/metrics"
)

const (
	aggregateTypeSale = "sale"

	// compensationTimeout ограничивает откат, запущенный после отмены ctx.
	compensationTimeout = 30 * time.Second
)

var (
	// ErrCustomerCancelled — покупатель отказался от покупки до оплаты.
	ErrCustomerCancelled = errors.New("purchase cancelled by customer")
	// ErrPaymentNotConfirmed — проверки оплаты закончились без статуса PAID.
	ErrPaymentNotConfirmed = errors.New("payment not confirmed")
)

// Типы событий саги в outbox и timeline.
const (
	EventSagaStarted          = "SagaStarted"
	EventClientValidated      = "ClientValidated"
	EventVehicleReserved      = "VehicleReserved"
	EventPaymentCodeGenerated = "PaymentCodeGenerated"
	EventPaymentChecked       = "PaymentChecked"
	EventSaleCompleted        = "SaleCompleted"
	EventSaleCancelled        = "SaleCancelled"
	EventStepFailed           = "SagaStepFailed"
	EventCompensationFailed   = "CompensationFailed"
)

var stepEvents = map[StepName]string{
	StepValidateClient:      EventClientValidated,
	StepReserveVehicle:      EventVehicleReserved,
	StepGeneratePaymentCode: EventPaymentCodeGenerated,
	StepCheckPaymentStatus:  EventPaymentChecked,
	StepCompleteSale:        EventSaleCompleted,
	StepCancelSale:          EventSaleCancelled,
}

// Orchestrator выполняет сагу покупки от проверки клиента до продажи или отката.
type Orchestrator interface {
	Execute(ctx context.Context, in Input) Result
}

// Result описывает итог одного запуска саги.
type Result struct {
	Input        Input
	Status       domain.ExecutionStatus
	FailedStep   StepName
	Err          error
	Compensation *CompensationReport
}

// Options содержит необязательные зависимости оркестратора.
type Options struct {
	Executions domain.ExecutionRepository
	Outbox     domain.OutboxRepository
	Timeline   domain.TimelineRepository
	Logger     *log.Entry
	Metrics    *metrics.SagaMetrics
	Now        func() time.Time
}

type orchestrator struct {
	steps      Steps
	cfg        Config
	executions domain.ExecutionRepository
	outbox     domain.OutboxRepository
	timeline   domain.TimelineRepository
	logger     *log.Entry
	metrics    *metrics.SagaMetrics
	now        func() time.Time
}

// NewOrchestrator создаёт оркестратор над набором шагов.
func NewOrchestrator(steps Steps, cfg Config, opts Options) Orchestrator {
	if opts.Logger == nil {
		opts.Logger = log.New().WithField("component", "saga")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &orchestrator{
		steps:      steps,
		cfg:        cfg.withDefaults(),
		executions: opts.Executions,
		outbox:     opts.Outbox,
		timeline:   opts.Timeline,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}
}

// Execute проходит шаги по порядку. Любая ошибка шага запускает CancelSale
// с накопленным входом.
func (o *orchestrator) Execute(ctx context.Context, in Input) Result {
	started := time.Now()
	if in.RequestedAt.IsZero() {
		in.RequestedAt = o.now()
	}
	if in.MaxPaymentChecks < 1 {
		in.MaxPaymentChecks = o.cfg.MaxPaymentChecks
	}

	logger := o.logger.WithFields(log.Fields{
		"sale_id":    in.SaleID,
		"vehicle_id": in.VehicleID,
	})
	o.metrics.RecordSagaStarted()

	exec := domain.Execution{
		Handle:    domain.ExecutionHandleFor(in.SaleID),
		SaleID:    in.SaleID,
		Status:    domain.ExecutionStatusRunning,
		StartedAt: in.RequestedAt,
	}
	o.saveExecution(ctx, &exec, in)
	o.emitEvent(ctx, in.SaleID, EventSagaStarted, "", "")

	result := o.run(ctx, in, &exec, logger)

	finishedAt := o.now()
	exec.Status = result.Status
	exec.FinishedAt = &finishedAt
	if result.Err != nil {
		exec.Error = result.Err.Error()
	}
	o.saveExecution(ctx, &exec, result.Input)

	duration := time.Since(started)
	entry := logger.WithFields(log.Fields{
		"status":   result.Status,
		"duration": duration,
	})
	switch result.Status {
	case domain.ExecutionStatusSucceeded:
		o.metrics.RecordSagaCompleted(duration)
		entry.Info("saga completed successfully")
	case domain.ExecutionStatusCompensated:
		o.metrics.RecordSagaCompensated(duration)
		entry.WithError(result.Err).WithField("step", result.FailedStep).Warn("saga compensated")
	default:
		o.metrics.RecordSagaFailed(duration)
		entry.WithError(result.Err).WithField("step", result.FailedStep).Error("saga compensation failed")
	}

	return result
}

func (o *orchestrator) run(ctx context.Context, in Input, exec *domain.Execution, logger *log.Entry) Result {
	for _, step := range []Step{o.steps.ValidateClient, o.steps.ReserveVehicle, o.steps.GeneratePaymentCode} {
		next, err := o.runStep(ctx, step, in, exec, logger)
		if err != nil {
			return o.compensate(ctx, in, step.Name(), err, exec, logger)
		}
		in = next
	}

	if in.CustomerCancelled {
		logger.Info("customer cancelled purchase, compensating")
		return o.compensate(ctx, in, StepGeneratePaymentCode, ErrCustomerCancelled, exec, logger)
	}

	in, err := o.pollPayment(ctx, in, exec, logger)
	if err != nil {
		return o.compensate(ctx, in, StepCheckPaymentStatus, err, exec, logger)
	}

	next, err := o.runStep(ctx, o.steps.CompleteSale, in, exec, logger)
	if err != nil {
		return o.compensate(ctx, in, StepCompleteSale, err, exec, logger)
	}

	return Result{Input: next, Status: domain.ExecutionStatusSucceeded}
}

// pollPayment повторяет CheckPaymentStatus с фиксированной паузой, пока шаг
// возвращает shouldRetry. Итог без PAID считается ошибкой.
func (o *orchestrator) pollPayment(ctx context.Context, in Input, exec *domain.Execution, logger *log.Entry) (Input, error) {
	for {
		next, err := o.runStep(ctx, o.steps.CheckPaymentStatus, in, exec, logger)
		if err != nil {
			return in, err
		}
		in = next
		o.metrics.RecordPaymentCheck(string(in.PaymentStatus))

		if !in.ShouldRetry {
			break
		}
		if err := o.wait(ctx); err != nil {
			return in, fmt.Errorf("payment polling interrupted after %d checks: %w", in.PaymentCheckAttempt, err)
		}
	}

	if in.PaymentStatus != domain.PaymentStatusPaid {
		return in, fmt.Errorf("sale %s payment is %s after %d checks: %w",
			in.SaleID, in.PaymentStatus, in.PaymentCheckAttempt, ErrPaymentNotConfirmed)
	}
	return in, nil
}

func (o *orchestrator) wait(ctx context.Context) error {
	if o.cfg.PaymentPollInterval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(o.cfg.PaymentPollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *orchestrator) runStep(ctx context.Context, step Step, in Input, exec *domain.Execution, logger *log.Entry) (Input, error) {
	name := step.Name()
	exec.Step = string(name)

	started := time.Now()
	delta, err := step.Execute(ctx, in)
	o.metrics.RecordStepDuration(string(name), time.Since(started))

	if err != nil {
		o.metrics.RecordStepFailure(string(name), errorKind(err))
		logger.WithError(err).WithField("step", name).Warn("saga step failed")
		o.emitEvent(ctx, in.SaleID, EventStepFailed, name, err.Error())
		return in, err
	}

	in = delta.Apply(in)
	o.saveExecution(ctx, exec, in)
	o.emitEvent(ctx, in.SaleID, stepEvents[name], name, "")
	return in, nil
}

// compensate запускает CancelSale. Если ctx уже отменён, откат выполняется
// в отдельном контексте с таймаутом, чтобы автомобиль не остался в резерве.
func (o *orchestrator) compensate(ctx context.Context, in Input, failed StepName, cause error, exec *domain.Execution, logger *log.Entry) Result {
	compCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		compCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
		defer cancel()
	}

	step := o.steps.CancelSale
	exec.Step = string(step.Name())

	var report *CompensationReport
	out := in
	err := retryWithBackoff(compCtx, o.cfg.Compensation, logger, string(step.Name()), func(c context.Context) error {
		started := time.Now()
		delta, err := step.Execute(c, in)
		o.metrics.RecordStepDuration(string(step.Name()), time.Since(started))
		report = mergeReports(report, delta.Compensation)
		if err != nil {
			o.metrics.RecordStepFailure(string(step.Name()), errorKind(err))
			return err
		}
		out = delta.Apply(in)
		return nil
	})

	if report != nil {
		for target, res := range report.Results() {
			o.metrics.RecordCompensationOutcome(target, string(res.Outcome))
		}
	}

	if err != nil {
		o.emitEvent(compCtx, in.SaleID, EventCompensationFailed, step.Name(), err.Error())
		return Result{
			Input:        out,
			Status:       domain.ExecutionStatusFailed,
			FailedStep:   failed,
			Err:          fmt.Errorf("%s failed: %w; compensation failed: %v", failed, cause, err),
			Compensation: report,
		}
	}

	o.saveExecution(compCtx, exec, out)
	o.emitEvent(compCtx, in.SaleID, EventSaleCancelled, step.Name(), cause.Error())
	return Result{
		Input:        out,
		Status:       domain.ExecutionStatusCompensated,
		FailedStep:   failed,
		Err:          fmt.Errorf("%s failed: %w", failed, cause),
		Compensation: report,
	}
}

// mergeReports сохраняет applied из прошлых попыток: повторный откат
// того же автомобиля вернёт skipped, хотя откат уже выполнен.
func mergeReports(prev, next *CompensationReport) *CompensationReport {
	if next == nil {
		return prev
	}
	if prev == nil {
		return next
	}
	merged := *next
	merged.Vehicle = mergeResult(prev.Vehicle, next.Vehicle)
	merged.Reservation = mergeResult(prev.Reservation, next.Reservation)
	merged.Sale = mergeResult(prev.Sale, next.Sale)
	return &merged
}

func mergeResult(prev, next SubStepResult) SubStepResult {
	if prev.Outcome == OutcomeApplied {
		return prev
	}
	return next
}

func (o *orchestrator) saveExecution(ctx context.Context, exec *domain.Execution, in Input) {
	if o.executions == nil {
		return
	}

	exec.UpdatedAt = o.now()
	if snapshot, err := json.Marshal(in); err == nil {
		exec.Input = snapshot
	}
	if err := o.executions.Save(context.WithoutCancel(ctx), *exec); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"sale_id": exec.SaleID,
			"handle":  exec.Handle,
		}).Warn("save execution failed")
	}
}

func (o *orchestrator) emitEvent(ctx context.Context, saleID, eventType string, step StepName, reason string) {
	ctx = context.WithoutCancel(ctx)
	occurred := o.now()

	if o.outbox != nil {
		payload := map[string]any{
			"sale_id": saleID,
			"ts":      occurred.Format(time.RFC3339Nano),
		}
		if step != "" {
			payload["step"] = string(step)
		}
		if reason != "" {
			payload["reason"] = reason
		}
		data, err := json.Marshal(payload)
		if err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"sale_id": saleID,
				"event":   eventType,
			}).Error("marshal event failed")
			return
		}

		if _, err := o.outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: aggregateTypeSale,
			AggregateID:   saleID,
			EventType:     eventType,
			Payload:       data,
			CreatedAt:     occurred,
		}); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"sale_id": saleID,
				"event":   eventType,
			}).Error("enqueue event failed")
		} else {
			o.metrics.RecordOutboxEvent()
		}
	}

	if o.timeline != nil {
		if err := o.timeline.Append(ctx, domain.TimelineEvent{
			SaleID:   saleID,
			Type:     eventType,
			Step:     string(step),
			Reason:   reason,
			Occurred: occurred,
		}); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"sale_id": saleID,
				"event":   eventType,
			}).Warn("append timeline event failed")
		} else {
			o.metrics.RecordTimelineEvent()
		}
	}
}

func errorKind(err error) string {
	switch {
	case domain.IsInvalidInput(err):
		return "invalid_input"
	case domain.IsNotFound(err):
		return "not_found"
	case domain.IsInvalidState(err):
		return "invalid_state"
	case domain.IsPreconditionFailed(err):
		return "precondition_failed"
	case domain.IsAlreadyExists(err):
		return "already_exists"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}

var _ Orchestrator = (*orchestrator)(nil)
