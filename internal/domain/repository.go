package domain

import (
	"context"
	"time"
)

// Репозитории работают только с одной записью за вызов: putIfAbsent,
// conditional update (ErrPreconditionFailed, если условие не выполнено или
// записи нет) и безусловная запись. Межзаписных транзакций нет.

// VehicleRepository хранит каталог автомобилей.
type VehicleRepository interface {
	// Create сохраняет автомобиль, если ID свободен; иначе ErrAlreadyExists.
	Create(ctx context.Context, vehicle Vehicle) error
	// Get возвращает автомобиль или ErrNotFound.
	Get(ctx context.Context, id string) (Vehicle, error)
	// Reserve переводит AVAILABLE → RESERVED и записывает поля резерва.
	Reserve(ctx context.Context, id string, reservation VehicleReservation) error
	// MarkSold переводит RESERVED → SOLD при совпадении saleId.
	MarkSold(ctx context.Context, id, saleID, clientID string, soldAt time.Time) error
	// Release возвращает RESERVED → AVAILABLE при совпадении saleId и очищает поля резерва.
	Release(ctx context.Context, id, saleID string, at time.Time) error
	// UpdateDetails меняет карточку, если автомобиль не продан.
	// ErrNotFound означает отсутствие записи, ErrInvalidState означает, что автомобиль уже SOLD.
	UpdateDetails(ctx context.Context, id string, details VehicleDetails, at time.Time) (Vehicle, error)
	// ListByStatus возвращает автомобили в статусе, отсортированные по цене по возрастанию.
	ListByStatus(ctx context.Context, status VehicleStatus) ([]Vehicle, error)
}

// ReservationRepository хранит резервы.
type ReservationRepository interface {
	// Create сохраняет резерв, если ID свободен; иначе ErrAlreadyExists.
	Create(ctx context.Context, reservation Reservation) error
	// Get возвращает резерв или ErrNotFound.
	Get(ctx context.Context, id string) (Reservation, error)
	// AwaitPayment переводит RESERVED → AWAITING_PAYMENT и сохраняет платёжный код.
	AwaitPayment(ctx context.Context, id, paymentCode string, at time.Time) error
	// Confirm переводит {RESERVED, AWAITING_PAYMENT} → CONFIRMED.
	Confirm(ctx context.Context, id string, at time.Time) error
	// Cancel переводит {RESERVED, AWAITING_PAYMENT} → CANCELLED с причиной.
	Cancel(ctx context.Context, id, reason string, at time.Time) error
}

// SaleRepository хранит продажи. Все записи продажи безусловные.
type SaleRepository interface {
	// Put создаёт или полностью перезаписывает продажу.
	Put(ctx context.Context, sale Sale) error
	// Get возвращает продажу или ErrNotFound.
	Get(ctx context.Context, id string) (Sale, error)
	// UpdatePayment записывает платёжный статус; ErrNotFound, если продажи нет.
	UpdatePayment(ctx context.Context, id string, payment SalePayment) error
	// Complete переводит продажу в COMPLETED; ErrNotFound, если продажи нет.
	Complete(ctx context.Context, id string, at time.Time) error
	// Cancel переводит продажу в CANCELLED. Если записи нет, создаётся
	// заглушка в статусе CANCELLED, чтобы откат всегда завершался.
	Cancel(ctx context.Context, id, reason string, at time.Time) error
}

// ClientRepository хранит покупателей.
type ClientRepository interface {
	Create(ctx context.Context, client Client) error
	Get(ctx context.Context, id string) (Client, error)
}

// ExecutionRepository хранит состояние запущенных саг по execution handle.
type ExecutionRepository interface {
	Save(ctx context.Context, execution Execution) error
	Get(ctx context.Context, handle string) (Execution, error)
}
