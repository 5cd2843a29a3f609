package domain

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// ClientStatus отражает возможность клиента совершать покупки.
type ClientStatus string

const (
	ClientStatusActive   ClientStatus = "ACTIVE"
	ClientStatusInactive ClientStatus = "INACTIVE"
)

var (
	errClientNameRequired     = errors.New("fullName is required")
	errClientEmailRequired    = errors.New("email is required")
	errClientDocumentRequired = errors.New("documentNumber is required")
	errClientPaymentKeyEmpty  = errors.New("paymentKey is required")
	errClientAddressRequired  = errors.New("address is required")
)

// Client — покупатель. Сага только читает эту запись.
type Client struct {
	ID             string       `json:"clientId"`
	FullName       string       `json:"fullName"`
	Email          string       `json:"email,omitempty"`
	DocumentNumber string       `json:"documentNumber,omitempty"`
	PaymentKey     string       `json:"-"`
	Address        string       `json:"address,omitempty"`
	Status         ClientStatus `json:"status"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// NewActiveClient нормализует профиль и создаёт клиента в статусе ACTIVE.
// Email приводится к нижнему регистру, в номере документа остаются только цифры.
func NewActiveClient(id, fullName, email, documentNumber, paymentKey, address string, now time.Time) Client {
	return Client{
		ID:             id,
		FullName:       strings.TrimSpace(fullName),
		Email:          strings.ToLower(strings.TrimSpace(email)),
		DocumentNumber: digitsOnly(documentNumber),
		PaymentKey:     strings.TrimSpace(paymentKey),
		Address:        strings.TrimSpace(address),
		Status:         ClientStatusActive,
		CreatedAt:      now,
	}
}

// IsActive сообщает, может ли клиент покупать.
func (c *Client) IsActive() bool {
	return c.Status == ClientStatusActive
}

// Validate проверяет обязательные поля профиля.
func (c *Client) Validate() []error {
	var errs []error

	if c.ID == "" {
		errs = append(errs, ErrClientIDRequired)
	}
	if c.FullName == "" {
		errs = append(errs, errClientNameRequired)
	}
	if c.Email == "" {
		errs = append(errs, errClientEmailRequired)
	}
	if c.DocumentNumber == "" {
		errs = append(errs, errClientDocumentRequired)
	}
	if c.PaymentKey == "" {
		errs = append(errs, errClientPaymentKeyEmpty)
	}
	if c.Address == "" {
		errs = append(errs, errClientAddressRequired)
	}

	return errs
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
