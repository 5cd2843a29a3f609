package saga

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

// ErrInitiatorClosed возвращается после начала остановки.
var ErrInitiatorClosed = errors.New("saga initiator is shutting down")

// PurchaseRequest описывает запрос на покупку автомобиля.
// ReservationTTLMinutes приходит как есть: нечисловое или меньше 1 значение
// заменяется значением по умолчанию.
type PurchaseRequest struct {
	VehicleID             string
	ClientID              string
	BuyerID               string
	CustomerCancelled     bool
	ReservationTTLMinutes string
	MaxPaymentChecks      int
	PaymentApproved       *bool
}

// Submission — то, что получает вызывающий сразу после запуска саги.
type Submission struct {
	SaleID          string `json:"saleId"`
	ExecutionHandle string `json:"executionHandle"`
}

// Initiator создаёт saleId и запускает сагу асинхронно.
type Initiator struct {
	orchestrator Orchestrator
	executions   domain.ExecutionRepository
	cfg          Config
	logger       *log.Entry
	now          func() time.Time
	newID        func() string

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewInitiator создаёт инициатор. executions может быть nil.
func NewInitiator(orchestrator Orchestrator, executions domain.ExecutionRepository, cfg Config, logger *log.Entry) *Initiator {
	if logger == nil {
		logger = log.New().WithField("component", "saga-initiator")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Initiator{
		orchestrator: orchestrator,
		executions:   executions,
		cfg:          cfg.withDefaults(),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
		baseCtx:      ctx,
		cancel:       cancel,
	}
}

// Initiate проверяет запрос, фиксирует запуск и возвращается, не дожидаясь саги.
func (i *Initiator) Initiate(ctx context.Context, req PurchaseRequest) (Submission, error) {
	in, err := i.buildInput(req)
	if err != nil {
		return Submission{}, err
	}

	submission := Submission{
		SaleID:          in.SaleID,
		ExecutionHandle: domain.ExecutionHandleFor(in.SaleID),
	}

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return Submission{}, ErrInitiatorClosed
	}
	i.wg.Add(1)
	i.mu.Unlock()

	if i.executions != nil {
		if err := i.executions.Save(ctx, domain.Execution{
			Handle:    submission.ExecutionHandle,
			SaleID:    in.SaleID,
			Status:    domain.ExecutionStatusRunning,
			StartedAt: in.RequestedAt,
			UpdatedAt: in.RequestedAt,
		}); err != nil {
			i.wg.Done()
			return Submission{}, fmt.Errorf("register execution: %w", err)
		}
	}

	go func() {
		defer i.wg.Done()
		i.orchestrator.Execute(i.baseCtx, in)
	}()

	i.logger.WithFields(log.Fields{
		"sale_id":    in.SaleID,
		"vehicle_id": in.VehicleID,
		"handle":     submission.ExecutionHandle,
	}).Info("purchase saga submitted")

	return submission, nil
}

// Run выполняет сагу синхронно. Используется нагрузочным тестом и CLI.
func (i *Initiator) Run(ctx context.Context, req PurchaseRequest) (Result, error) {
	in, err := i.buildInput(req)
	if err != nil {
		return Result{}, err
	}
	return i.orchestrator.Execute(ctx, in), nil
}

func (i *Initiator) buildInput(req PurchaseRequest) (Input, error) {
	vehicleID := strings.TrimSpace(req.VehicleID)
	if vehicleID == "" {
		return Input{}, domain.ErrVehicleIDRequired
	}
	in := Input{
		VehicleID: vehicleID,
		ClientID:  strings.TrimSpace(req.ClientID),
		BuyerID:   strings.TrimSpace(req.BuyerID),
	}
	if in.CustomerID() == "" {
		return Input{}, domain.ErrClientIDRequired
	}

	in.SaleID = i.newID()
	in.RequestedAt = i.now()
	in.CustomerCancelled = req.CustomerCancelled
	in.ReservationTTLMinutes = parseReservationTTL(req.ReservationTTLMinutes, i.cfg.ReservationTTLMinutes)
	in.MaxPaymentChecks = req.MaxPaymentChecks
	if in.MaxPaymentChecks < 1 {
		in.MaxPaymentChecks = i.cfg.MaxPaymentChecks
	}
	in.PaymentCheckAttempt = 0
	in.PaymentApproved = req.PaymentApproved
	return in, nil
}

func parseReservationTTL(raw string, fallback int) int {
	minutes, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || minutes < 1 {
		return fallback
	}
	return minutes
}

// Wait блокируется, пока не завершатся все запущенные саги.
func (i *Initiator) Wait() {
	i.wg.Wait()
}

// Shutdown перестаёт принимать запросы и ждёт запущенные саги. Когда ctx
// истекает, ожидание оплаты прерывается, и саги откатываются.
func (i *Initiator) Shutdown(ctx context.Context) error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		i.cancel()
		return nil
	case <-ctx.Done():
		i.cancel()
		<-done
		return ctx.Err()
	}
}
