package domain

import (
	"strings"
	"time"
)

// SaleStatus отражает бизнес-статус продажи.
type SaleStatus string

const (
	// SaleStatusReserved — продажа создана, ждём оплату.
	SaleStatusReserved SaleStatus = "RESERVED"
	// SaleStatusPaid — платёж подтверждён опросом статуса.
	SaleStatusPaid SaleStatus = "PAID"
	// SaleStatusPaymentTimeout — исчерпаны проверки или платёж отклонён при опросе.
	SaleStatusPaymentTimeout SaleStatus = "PAYMENT_TIMEOUT"
	// SaleStatusPaymentFailed — провайдер сообщил о неуспешном платеже через callback.
	SaleStatusPaymentFailed SaleStatus = "PAYMENT_FAILED"
	// SaleStatusCompleted — автомобиль продан.
	SaleStatusCompleted SaleStatus = "COMPLETED"
	// SaleStatusCancelled — сага откатилась.
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// PaymentStatus отражает статус платежа по продаже.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusPaid      PaymentStatus = "PAID"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// PaymentCodePrefix — префикс платёжного кода.
const PaymentCodePrefix = "PAY-"

var saleTransitions = map[SaleStatus][]SaleStatus{
	SaleStatusReserved: {
		SaleStatusPaid,
		SaleStatusPaymentTimeout,
		SaleStatusPaymentFailed,
		SaleStatusCompleted,
		SaleStatusCancelled,
	},
	SaleStatusPaid:           {SaleStatusCompleted, SaleStatusCancelled},
	SaleStatusPaymentTimeout: {SaleStatusCancelled},
	SaleStatusPaymentFailed:  {SaleStatusCancelled},
	SaleStatusCompleted:      nil,
	SaleStatusCancelled:      nil,
}

// IsValid сообщает, известен ли статус продажи.
func (s SaleStatus) IsValid() bool {
	_, ok := saleTransitions[s]
	return ok
}

// CanTransitionTo проверяет переход по таблице состояний. Записи продажи
// безусловные, поэтому таблица описывает ожидаемый поток, а не блокирует запись.
func (s SaleStatus) CanTransitionTo(next SaleStatus) bool {
	for _, allowed := range saleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsValid сообщает, известен ли статус платежа.
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// IsTerminal сообщает, что платёж больше не ожидается.
func (s PaymentStatus) IsTerminal() bool {
	return s.IsValid() && s != PaymentStatusPending
}

// PaymentCodeFor детерминированно выводит платёжный код из saleId:
// "PAY-" + первые 10 символов saleId без дефисов в верхнем регистре.
func PaymentCodeFor(saleID string) string {
	compact := strings.ReplaceAll(saleID, "-", "")
	if len(compact) > 10 {
		compact = compact[:10]
	}
	return PaymentCodePrefix + strings.ToUpper(compact)
}

// Sale — запись о продаже автомобиля.
type Sale struct {
	ID                string        `json:"saleId"`
	ReservationID     string        `json:"reservationId,omitempty"`
	VehicleID         string        `json:"vehicleId,omitempty"`
	ClientID          string        `json:"clientId,omitempty"`
	PaymentCode       string        `json:"paymentCode,omitempty"`
	PaymentStatus     PaymentStatus `json:"paymentStatus,omitempty"`
	Status            SaleStatus    `json:"status"`
	TotalPrice        int64         `json:"totalPrice"`
	ProviderReference string        `json:"providerReference,omitempty"`
	CancelReason      string        `json:"cancelReason,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
	PaidAt            *time.Time    `json:"paidAt,omitempty"`
	CompletedAt       *time.Time    `json:"completedAt,omitempty"`
}

// SalePayment — изменение платёжной части продажи (опрос или callback).
type SalePayment struct {
	PaymentStatus     PaymentStatus
	Status            SaleStatus
	ProviderReference string
	PaidAt            *time.Time
	UpdatedAt         time.Time
}

// Validate проверяет обязательные поля новой продажи.
func (s *Sale) Validate() []error {
	var errs []error

	if s.ID == "" {
		errs = append(errs, ErrSaleIDRequired)
	}
	if s.VehicleID == "" {
		errs = append(errs, ErrVehicleIDRequired)
	}
	if s.ClientID == "" {
		errs = append(errs, ErrClientIDRequired)
	}
	if s.ReservationID == "" {
		errs = append(errs, ErrReservationIDRequired)
	}

	return errs
}
