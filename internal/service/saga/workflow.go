package saga

import (
	"strings"
	"time"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

// Input накапливает состояние одного запуска саги.
// Оркестратор передаёт его каждому шагу и вливает в него Delta шага.
type Input struct {
	SaleID    string `json:"saleId"`
	VehicleID string `json:"vehicleId"`
	ClientID  string `json:"clientId,omitempty"`
	// BuyerID: устаревший синоним ClientID.
	BuyerID string `json:"buyerId,omitempty"`

	ReservationID         string                   `json:"reservationId,omitempty"`
	ReservationStatus     domain.ReservationStatus `json:"reservationStatus,omitempty"`
	ReservationTTLMinutes int                      `json:"reservationTtlMinutes"`

	CustomerCancelled bool  `json:"customerCancelled"`
	PaymentApproved   *bool `json:"paymentApproved,omitempty"`

	PaymentCode         string               `json:"paymentCode,omitempty"`
	PaymentStatus       domain.PaymentStatus `json:"paymentStatus,omitempty"`
	PaymentCheckAttempt int                  `json:"paymentCheckAttempt"`
	MaxPaymentChecks    int                  `json:"maxPaymentChecks"`
	ShouldRetry         bool                 `json:"shouldRetry"`

	TotalPrice  int64             `json:"totalPrice,omitempty"`
	Status      domain.SaleStatus `json:"status,omitempty"`
	RequestedAt time.Time         `json:"requestedAt"`
}

// CustomerID возвращает первый непустой из clientId и buyerId.
func (in Input) CustomerID() string {
	if id := strings.TrimSpace(in.ClientID); id != "" {
		return id
	}
	return strings.TrimSpace(in.BuyerID)
}

// Delta — результат шага. Пустые поля не меняют Input.
type Delta struct {
	ClientID            string
	ReservationID       string
	ReservationStatus   domain.ReservationStatus
	PaymentCode         string
	PaymentStatus       domain.PaymentStatus
	PaymentCheckAttempt int
	ShouldRetry         *bool
	TotalPrice          int64
	Status              domain.SaleStatus

	// Compensation заполняет только CancelSale.
	Compensation *CompensationReport
}

// Apply возвращает копию in с применёнными изменениями.
func (d Delta) Apply(in Input) Input {
	if d.ClientID != "" {
		in.ClientID = d.ClientID
	}
	if d.ReservationID != "" {
		in.ReservationID = d.ReservationID
	}
	if d.ReservationStatus != "" {
		in.ReservationStatus = d.ReservationStatus
	}
	if d.PaymentCode != "" {
		in.PaymentCode = d.PaymentCode
	}
	if d.PaymentStatus != "" {
		in.PaymentStatus = d.PaymentStatus
	}
	if d.PaymentCheckAttempt != 0 {
		in.PaymentCheckAttempt = d.PaymentCheckAttempt
	}
	if d.ShouldRetry != nil {
		in.ShouldRetry = *d.ShouldRetry
	}
	if d.TotalPrice != 0 {
		in.TotalPrice = d.TotalPrice
	}
	if d.Status != "" {
		in.Status = d.Status
	}
	return in
}
