package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		invalidInput bool
		notFound     bool
		conflict     bool
	}{
		{
			name:         "required field",
			err:          ErrVehicleIDRequired,
			invalidInput: true,
		},
		{
			name:     "wrapped not found",
			err:      fmt.Errorf("get sale s-1: %w", ErrNotFound),
			notFound: true,
		},
		{
			name:     "precondition failed",
			err:      fmt.Errorf("reserve vehicle: %w", ErrPreconditionFailed),
			conflict: true,
		},
		{
			name:     "inactive client",
			err:      errors.Join(ErrInvalidState, errors.New("client is inactive")),
			conflict: true,
		},
		{
			name:     "duplicate record",
			err:      ErrAlreadyExists,
			conflict: true,
		},
		{
			name: "unclassified",
			err:  errors.New("boom"),
		},
		{
			name: "nil error",
			err:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsInvalidInput(tt.err); got != tt.invalidInput {
				t.Errorf("IsInvalidInput() = %v, want %v", got, tt.invalidInput)
			}
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.notFound)
			}
			if got := IsConflict(tt.err); got != tt.conflict {
				t.Errorf("IsConflict() = %v, want %v", got, tt.conflict)
			}
		})
	}
}
