package saga

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

type reserveVehicle struct {
	sealedStep
	deps Dependencies
	ttl  int
}

// NewReserveVehicle создаёт шаг резервирования автомобиля.
// Параллельные покупки исключают друг друга только через условное
// обновление AVAILABLE → RESERVED.
func NewReserveVehicle(deps Dependencies, cfg Config) Step {
	return &reserveVehicle{
		deps: deps.withDefaults(),
		ttl:  cfg.withDefaults().ReservationTTLMinutes,
	}
}

func (s *reserveVehicle) Name() StepName { return StepReserveVehicle }

func (s *reserveVehicle) Execute(ctx context.Context, in Input) (Delta, error) {
	vehicleID := strings.TrimSpace(in.VehicleID)
	if vehicleID == "" {
		return Delta{}, domain.ErrVehicleIDRequired
	}
	clientID := in.CustomerID()
	if clientID == "" {
		return Delta{}, domain.ErrClientIDRequired
	}
	if in.SaleID == "" {
		return Delta{}, domain.ErrSaleIDRequired
	}

	ttl := in.ReservationTTLMinutes
	if ttl == 0 {
		ttl = s.ttl
	}

	now := s.deps.Now()
	reservationID := "res-" + s.deps.NewID()

	if err := s.deps.Vehicles.Reserve(ctx, vehicleID, domain.VehicleReservation{
		SaleID:        in.SaleID,
		ClientID:      clientID,
		ReservationID: reservationID,
		ReservedAt:    now,
	}); err != nil {
		return Delta{}, err
	}

	reservation := domain.NewReservation(reservationID, in.SaleID, vehicleID, clientID, now, ttl)
	if err := s.deps.Reservations.Create(ctx, reservation); err != nil {
		return Delta{}, fmt.Errorf("create reservation: %w", err)
	}

	s.deps.Logger.WithFields(log.Fields{
		"sale_id":        in.SaleID,
		"vehicle_id":     vehicleID,
		"reservation_id": reservationID,
		"expires_at":     reservation.ExpiresAt,
	}).Info("vehicle reserved")

	return Delta{
		ClientID:          clientID,
		ReservationID:     reservationID,
		ReservationStatus: domain.ReservationStatusReserved,
	}, nil
}
