package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ExecutionStatus отражает состояние запуска саги.
type ExecutionStatus string

const (
	ExecutionStatusRunning     ExecutionStatus = "RUNNING"
	ExecutionStatusSucceeded   ExecutionStatus = "SUCCEEDED"
	ExecutionStatusCompensated ExecutionStatus = "COMPENSATED"
	// ExecutionStatusFailed — даже компенсация не дошла до CANCELLED.
	ExecutionStatusFailed ExecutionStatus = "FAILED"
)

// IsTerminal сообщает, что сага завершилась.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSucceeded || s == ExecutionStatusCompensated || s == ExecutionStatusFailed
}

// Execution хранит состояние одного запуска саги покупки.
type Execution struct {
	Handle     string          `json:"executionHandle"`
	SaleID     string          `json:"saleId"`
	Status     ExecutionStatus `json:"status"`
	Step       string          `json:"step,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"startedAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`

	// Input содержит снимок входа саги после последнего выполненного шага.
	Input json.RawMessage `json:"input,omitempty"`
}

// ExecutionHandleFor строит имя запуска: "sale-" + saleId без дефисов.
func ExecutionHandleFor(saleID string) string {
	return "sale-" + strings.ReplaceAll(saleID, "-", "")
}
