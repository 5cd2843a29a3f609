package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/metrics"
)

const (
	// EventPaymentCallback — тип записи в timeline продажи.
	EventPaymentCallback = "PaymentCallbackReceived"
	// DefaultProviderReference подставляется, если провайдер не прислал ссылку.
	DefaultProviderReference = "N/A"
)

// CallbackRequest — уведомление платёжного провайдера.
type CallbackRequest struct {
	SaleID            string               `json:"saleId"`
	PaymentStatus     domain.PaymentStatus `json:"paymentStatus"`
	ProviderReference string               `json:"providerReference,omitempty"`
}

// CallbackResult — итоговое состояние оплаты после записи.
type CallbackResult struct {
	SaleID            string               `json:"saleId"`
	PaymentStatus     domain.PaymentStatus `json:"paymentStatus"`
	Status            domain.SaleStatus    `json:"status"`
	ProviderReference string               `json:"providerReference"`
	PaidAt            *time.Time           `json:"paidAt,omitempty"`
}

// CallbackHandler записывает терминальный статус оплаты, пришедший от провайдера.
// Запись безусловная: с шагом опроса действует правило «последний записавший прав».
type CallbackHandler struct {
	sales    domain.SaleRepository
	timeline domain.TimelineRepository
	metrics  *metrics.SagaMetrics
	logger   *log.Entry
	now      func() time.Time
}

// NewCallbackHandler создаёт обработчик. timeline и m могут быть nil.
func NewCallbackHandler(sales domain.SaleRepository, timeline domain.TimelineRepository, m *metrics.SagaMetrics, logger *log.Entry) *CallbackHandler {
	if logger == nil {
		logger = log.New().WithField("component", "payment-callback")
	}
	return &CallbackHandler{
		sales:    sales,
		timeline: timeline,
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle применяет callback к продаже. Неизвестная продажа даёт ErrNotFound.
func (h *CallbackHandler) Handle(ctx context.Context, req CallbackRequest) (CallbackResult, error) {
	saleID := strings.TrimSpace(req.SaleID)
	if saleID == "" {
		return CallbackResult{}, domain.ErrSaleIDRequired
	}

	status := domain.PaymentStatus(strings.ToUpper(strings.TrimSpace(string(req.PaymentStatus))))
	if !status.IsTerminal() {
		return CallbackResult{}, fmt.Errorf("paymentStatus %q must be one of PAID, FAILED, CANCELLED: %w",
			req.PaymentStatus, domain.ErrInvalidInput)
	}

	reference := strings.TrimSpace(req.ProviderReference)
	if reference == "" {
		reference = DefaultProviderReference
	}

	now := h.now()
	result := CallbackResult{
		SaleID:            saleID,
		PaymentStatus:     status,
		Status:            domain.SaleStatusPaymentFailed,
		ProviderReference: reference,
	}
	if status == domain.PaymentStatusPaid {
		result.Status = domain.SaleStatusPaid
		result.PaidAt = &now
	}

	if err := h.sales.UpdatePayment(ctx, saleID, domain.SalePayment{
		PaymentStatus:     result.PaymentStatus,
		Status:            result.Status,
		ProviderReference: reference,
		PaidAt:            result.PaidAt,
		UpdatedAt:         now,
	}); err != nil {
		return CallbackResult{}, err
	}

	h.metrics.RecordPaymentCallback(string(status))
	h.appendTimeline(ctx, saleID, status, now)

	h.logger.WithFields(log.Fields{
		"sale_id":            saleID,
		"payment_status":     status,
		"provider_reference": reference,
	}).Info("payment callback applied")

	return result, nil
}

func (h *CallbackHandler) appendTimeline(ctx context.Context, saleID string, status domain.PaymentStatus, at time.Time) {
	if h.timeline == nil {
		return
	}
	if err := h.timeline.Append(ctx, domain.TimelineEvent{
		SaleID:   saleID,
		Type:     EventPaymentCallback,
		Reason:   string(status),
		Occurred: at,
	}); err != nil {
		h.logger.WithError(err).WithField("sale_id", saleID).Warn("append timeline event failed")
		return
	}
	h.metrics.RecordTimelineEvent()
}
