package domain

import "time"

// ReservationStatus отражает этап удержания автомобиля под продажу.
type ReservationStatus string

const (
	// ReservationStatusReserved — резерв создан, код оплаты ещё не выдан.
	ReservationStatusReserved ReservationStatus = "RESERVED"
	// ReservationStatusAwaitingPayment — код оплаты выдан, ждём платёж.
	ReservationStatusAwaitingPayment ReservationStatus = "AWAITING_PAYMENT"
	// ReservationStatusConfirmed — продажа завершена.
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	// ReservationStatusCancelled — резерв снят компенсацией.
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

const (
	// DefaultReservationTTLMinutes применяется, если TTL не задан или вне диапазона.
	DefaultReservationTTLMinutes = 15
	MinReservationTTLMinutes     = 1
	MaxReservationTTLMinutes     = 120

	// CompensationCancelReason пишется в резерв и продажу при откате саги.
	CompensationCancelReason = "Saga compensation triggered"
)

var reservationTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusReserved: {
		ReservationStatusAwaitingPayment,
		ReservationStatusConfirmed,
		ReservationStatusCancelled,
	},
	ReservationStatusAwaitingPayment: {
		ReservationStatusConfirmed,
		ReservationStatusCancelled,
	},
	ReservationStatusConfirmed: nil,
	ReservationStatusCancelled: nil,
}

var reservationStatusOrder = []ReservationStatus{
	ReservationStatusReserved,
	ReservationStatusAwaitingPayment,
	ReservationStatusConfirmed,
	ReservationStatusCancelled,
}

// IsValid сообщает, известен ли статус.
func (s ReservationStatus) IsValid() bool {
	_, ok := reservationTransitions[s]
	return ok
}

// CanTransitionTo проверяет переход по таблице состояний.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range reservationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal сообщает, что из статуса нет исходящих переходов.
func (s ReservationStatus) IsTerminal() bool {
	return s.IsValid() && len(reservationTransitions[s]) == 0
}

// ReservationSourcesFor возвращает статусы, из которых разрешён переход в target.
// Результат служит условием conditional update.
func ReservationSourcesFor(target ReservationStatus) []ReservationStatus {
	var sources []ReservationStatus
	for _, from := range reservationStatusOrder {
		if from.CanTransitionTo(target) {
			sources = append(sources, from)
		}
	}
	return sources
}

// NormalizeReservationTTL возвращает TTL в минутах, подставляя значение
// по умолчанию для значений вне [1, 120].
func NormalizeReservationTTL(minutes int) int {
	if minutes < MinReservationTTLMinutes || minutes > MaxReservationTTLMinutes {
		return DefaultReservationTTLMinutes
	}
	return minutes
}

// Reservation удерживает автомобиль за конкретной продажей.
type Reservation struct {
	ID           string            `json:"reservationId"`
	SaleID       string            `json:"saleId"`
	VehicleID    string            `json:"vehicleId"`
	ClientID     string            `json:"clientId"`
	Status       ReservationStatus `json:"status"`
	PaymentCode  string            `json:"paymentCode,omitempty"`
	ReservedAt   time.Time         `json:"reservedAt"`
	ExpiresAt    time.Time         `json:"expiresAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	ConfirmedAt  *time.Time        `json:"confirmedAt,omitempty"`
	CancelledAt  *time.Time        `json:"cancelledAt,omitempty"`
	CancelReason string            `json:"cancelReason,omitempty"`
}

// NewReservation создаёт резерв в статусе RESERVED со сроком действия reservedAt + TTL.
func NewReservation(id, saleID, vehicleID, clientID string, reservedAt time.Time, ttlMinutes int) Reservation {
	ttl := time.Duration(NormalizeReservationTTL(ttlMinutes)) * time.Minute
	return Reservation{
		ID:         id,
		SaleID:     saleID,
		VehicleID:  vehicleID,
		ClientID:   clientID,
		Status:     ReservationStatusReserved,
		ReservedAt: reservedAt,
		ExpiresAt:  reservedAt.Add(ttl),
		UpdatedAt:  reservedAt,
	}
}

// Validate проверяет, корректно ли заполнены ключевые поля резерва.
func (r *Reservation) Validate() []error {
	var errs []error

	if r.ID == "" {
		errs = append(errs, ErrReservationIDRequired)
	}
	if r.SaleID == "" {
		errs = append(errs, ErrSaleIDRequired)
	}
	if r.VehicleID == "" {
		errs = append(errs, ErrVehicleIDRequired)
	}
	if r.ClientID == "" {
		errs = append(errs, ErrClientIDRequired)
	}

	return errs
}
