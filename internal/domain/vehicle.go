package domain

import (
	"errors"
	"strings"
	"time"
)

// VehicleStatus отражает положение автомобиля в каталоге.
type VehicleStatus string

const (
	// VehicleStatusAvailable — автомобиль можно зарезервировать.
	VehicleStatusAvailable VehicleStatus = "AVAILABLE"
	// VehicleStatusReserved — автомобиль удерживается одной продажей.
	VehicleStatusReserved VehicleStatus = "RESERVED"
	// VehicleStatusSold — продажа завершена, статус терминальный.
	VehicleStatusSold VehicleStatus = "SOLD"
)

// vehicleTransitions описывает допустимые переходы. RESERVED → AVAILABLE
// используется только компенсацией.
var vehicleTransitions = map[VehicleStatus][]VehicleStatus{
	VehicleStatusAvailable: {VehicleStatusReserved},
	VehicleStatusReserved:  {VehicleStatusSold, VehicleStatusAvailable},
	VehicleStatusSold:      nil,
}

// IsValid сообщает, известен ли статус.
func (s VehicleStatus) IsValid() bool {
	_, ok := vehicleTransitions[s]
	return ok
}

// CanTransitionTo проверяет переход по таблице состояний.
func (s VehicleStatus) CanTransitionTo(next VehicleStatus) bool {
	for _, allowed := range vehicleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// VehicleSourcesFor возвращает статусы, из которых разрешён переход в target.
func VehicleSourcesFor(target VehicleStatus) []VehicleStatus {
	var sources []VehicleStatus
	for _, from := range []VehicleStatus{VehicleStatusAvailable, VehicleStatusReserved, VehicleStatusSold} {
		if from.CanTransitionTo(target) {
			sources = append(sources, from)
		}
	}
	return sources
}

// Vehicle — запись каталога. Поля SaleID/ClientID/ReservationID/ReservedAt
// заполнены только пока автомобиль зарезервирован или продан.
type Vehicle struct {
	ID            string        `json:"vehicleId"`
	Brand         string        `json:"brand"`
	Model         string        `json:"model"`
	Year          int           `json:"year"`
	Color         string        `json:"color"`
	Price         int64         `json:"price"`
	Status        VehicleStatus `json:"status"`
	SaleID        string        `json:"saleId,omitempty"`
	ClientID      string        `json:"clientId,omitempty"`
	ReservationID string        `json:"reservationId,omitempty"`
	ReservedAt    *time.Time    `json:"reservedAt,omitempty"`
	SoldAt        *time.Time    `json:"soldAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// VehicleReservation — поля, которые ReserveVehicle записывает вместе с переходом в RESERVED.
type VehicleReservation struct {
	SaleID        string
	ClientID      string
	ReservationID string
	ReservedAt    time.Time
}

// VehicleDetails — частичное обновление карточки автомобиля; nil означает «не менять».
type VehicleDetails struct {
	Brand *string `json:"brand,omitempty"`
	Model *string `json:"model,omitempty"`
	Year  *int    `json:"year,omitempty"`
	Color *string `json:"color,omitempty"`
	Price *int64  `json:"price,omitempty"`
}

var (
	errVehicleBrandRequired = errors.New("brand is required")
	errVehicleModelRequired = errors.New("model is required")
	errVehicleColorRequired = errors.New("color is required")
	errVehicleYearInvalid   = errors.New("year must be greater than zero")
)

// NewAvailableVehicle собирает новую карточку в статусе AVAILABLE.
func NewAvailableVehicle(id, brand, model string, year int, color string, price int64, now time.Time) Vehicle {
	return Vehicle{
		ID:        id,
		Brand:     strings.TrimSpace(brand),
		Model:     strings.TrimSpace(model),
		Year:      year,
		Color:     strings.TrimSpace(color),
		Price:     price,
		Status:    VehicleStatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate проверяет карточку автомобиля перед сохранением.
func (v *Vehicle) Validate() []error {
	var errs []error

	if strings.TrimSpace(v.ID) == "" {
		errs = append(errs, ErrVehicleIDRequired)
	}
	if v.Brand == "" {
		errs = append(errs, errVehicleBrandRequired)
	}
	if v.Model == "" {
		errs = append(errs, errVehicleModelRequired)
	}
	if v.Color == "" {
		errs = append(errs, errVehicleColorRequired)
	}
	if v.Year <= 0 {
		errs = append(errs, errVehicleYearInvalid)
	}
	if v.Price <= 0 {
		errs = append(errs, ErrPriceInvalid)
	}

	return errs
}

// Apply переносит заданные поля details в карточку.
func (d VehicleDetails) Apply(v *Vehicle) {
	if d.Brand != nil {
		v.Brand = strings.TrimSpace(*d.Brand)
	}
	if d.Model != nil {
		v.Model = strings.TrimSpace(*d.Model)
	}
	if d.Year != nil {
		v.Year = *d.Year
	}
	if d.Color != nil {
		v.Color = strings.TrimSpace(*d.Color)
	}
	if d.Price != nil {
		v.Price = *d.Price
	}
}

// IsEmpty сообщает, что обновлять нечего.
func (d VehicleDetails) IsEmpty() bool {
	return d.Brand == nil && d.Model == nil && d.Year == nil && d.Color == nil && d.Price == nil
}
