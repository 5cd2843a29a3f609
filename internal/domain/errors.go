package domain

import (
	"errors"
	"fmt"
)

// Базовые категории ошибок. Конкретные ошибки оборачивают их через %w,
// поэтому транспорт и оркестратор классифицируют сбои через errors.Is.
var (
	// ErrInvalidInput — обязательное поле отсутствует или имеет неверный формат.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound — запись не найдена в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState — сущность существует, но её состояние не допускает операцию.
	ErrInvalidState = errors.New("invalid state")
	// ErrPreconditionFailed — условие conditional update не выполнено (проигранная гонка).
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrAlreadyExists — putIfAbsent обнаружил существующую запись.
	ErrAlreadyExists = errors.New("already exists")
)

var (
	// Ошибка отсутствующего идентификатора автомобиля.
	ErrVehicleIDRequired = fmt.Errorf("vehicleId is required: %w", ErrInvalidInput)
	// Ошибка отсутствующего идентификатора клиента.
	ErrClientIDRequired = fmt.Errorf("clientId is required: %w", ErrInvalidInput)
	// Ошибка отсутствующего идентификатора продажи.
	ErrSaleIDRequired = fmt.Errorf("saleId is required: %w", ErrInvalidInput)
	// Ошибка отсутствующего идентификатора резерва.
	ErrReservationIDRequired = fmt.Errorf("reservationId is required: %w", ErrInvalidInput)
	// Ошибка неположительной цены автомобиля.
	ErrPriceInvalid = fmt.Errorf("price must be greater than zero: %w", ErrInvalidInput)
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsInvalidInput проверяет, относится ли ошибка к некорректному вводу.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsNotFound проверяет, что запись не найдена.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidState проверяет, что операция запрещена текущим состоянием сущности.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsPreconditionFailed проверяет, что conditional update проиграл гонку.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrPreconditionFailed)
}

// IsAlreadyExists проверяет, что запись с таким ключом уже создана.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsConflict объединяет ошибки, которые для вызывающей стороны означают конфликт состояния.
func IsConflict(err error) bool {
	return IsInvalidState(err) || IsPreconditionFailed(err) || IsAlreadyExists(err)
}
