package saga

import (
	"time"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

const (
	// DefaultMaxPaymentChecks — сколько раз проверяется оплата до таймаута.
	DefaultMaxPaymentChecks = 6
	// DefaultPaymentPollInterval — фиксированная пауза между проверками оплаты.
	DefaultPaymentPollInterval = 10 * time.Second
)

// Config — параметры саги. Передаётся шагам при создании, шаги не читают окружение.
type Config struct {
	ReservationTTLMinutes int
	MaxPaymentChecks      int
	PaymentPollInterval   time.Duration
	Compensation          RetryConfig
}

// DefaultConfig возвращает параметры по умолчанию.
func DefaultConfig() Config {
	return Config{
		ReservationTTLMinutes: domain.DefaultReservationTTLMinutes,
		MaxPaymentChecks:      DefaultMaxPaymentChecks,
		PaymentPollInterval:   DefaultPaymentPollInterval,
		Compensation:          DefaultRetryConfig(),
	}
}

// withDefaults заменяет некорректные значения значениями по умолчанию.
func (c Config) withDefaults() Config {
	c.ReservationTTLMinutes = domain.NormalizeReservationTTL(c.ReservationTTLMinutes)
	if c.MaxPaymentChecks < 1 {
		c.MaxPaymentChecks = DefaultMaxPaymentChecks
	}
	if c.PaymentPollInterval < 0 {
		c.PaymentPollInterval = DefaultPaymentPollInterval
	}
	c.Compensation = c.Compensation.withDefaults()
	return c
}
