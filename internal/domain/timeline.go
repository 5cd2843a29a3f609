package domain

import "time"

// TimelineEvent фиксирует, какой шаг саги что сделал с продажей.
type TimelineEvent struct {
	SaleID   string    `json:"saleId"`
	Type     string    `json:"type"`
	Step     string    `json:"step,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}
