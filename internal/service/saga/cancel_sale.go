package saga

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

// Outcome — исход одного подшага компенсации.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// SubStepResult хранит результат отката одной записи.
type SubStepResult struct {
	Outcome Outcome
	Err     error
}

// CompensationReport собирает исходы отката автомобиля, резерва и продажи.
type CompensationReport struct {
	Vehicle     SubStepResult
	Reservation SubStepResult
	Sale        SubStepResult
}

// Err объединяет ошибки всех неудавшихся подшагов.
func (r CompensationReport) Err() error {
	var result *multierror.Error
	for _, res := range []SubStepResult{r.Vehicle, r.Reservation, r.Sale} {
		if res.Outcome == OutcomeFailed && res.Err != nil {
			result = multierror.Append(result, res.Err)
		}
	}
	return result.ErrorOrNil()
}

// Results возвращает исходы по именам целей (для логов и метрик).
func (r CompensationReport) Results() map[string]SubStepResult {
	return map[string]SubStepResult{
		"vehicle":     r.Vehicle,
		"reservation": r.Reservation,
		"sale":        r.Sale,
	}
}

type cancelSale struct {
	sealedStep
	deps Dependencies
}

// NewCancelSale создаёт компенсирующий шаг. Откат автомобиля и резерва
// выполняется по возможности, ошибка записи продажи возвращается вызывающему.
func NewCancelSale(deps Dependencies) Step {
	return &cancelSale{deps: deps.withDefaults()}
}

func (s *cancelSale) Name() StepName { return StepCancelSale }

func (s *cancelSale) Execute(ctx context.Context, in Input) (Delta, error) {
	if in.SaleID == "" {
		return Delta{}, domain.ErrSaleIDRequired
	}

	now := s.deps.Now()
	report := CompensationReport{
		Vehicle:     s.releaseVehicle(ctx, in),
		Reservation: s.cancelReservation(ctx, in),
	}

	if err := s.deps.Sales.Cancel(ctx, in.SaleID, domain.CompensationCancelReason, now); err != nil {
		report.Sale = SubStepResult{Outcome: OutcomeFailed, Err: fmt.Errorf("cancel sale %s: %w", in.SaleID, err)}
	} else {
		report.Sale = SubStepResult{Outcome: OutcomeApplied}
	}

	entry := s.deps.Logger.WithFields(log.Fields{
		"sale_id":             in.SaleID,
		"vehicle_id":          in.VehicleID,
		"reservation_id":      in.ReservationID,
		"vehicle_outcome":     report.Vehicle.Outcome,
		"reservation_outcome": report.Reservation.Outcome,
		"sale_outcome":        report.Sale.Outcome,
	})
	if err := report.Err(); err != nil {
		entry.WithError(err).Warn("compensation finished with errors")
	} else {
		entry.Info("compensation finished")
	}

	if report.Sale.Outcome == OutcomeFailed {
		return Delta{Compensation: &report}, report.Sale.Err
	}
	return Delta{
		Status:       domain.SaleStatusCancelled,
		Compensation: &report,
	}, nil
}

func (s *cancelSale) releaseVehicle(ctx context.Context, in Input) SubStepResult {
	if in.VehicleID == "" {
		return SubStepResult{Outcome: OutcomeSkipped}
	}
	err := s.deps.Vehicles.Release(ctx, in.VehicleID, in.SaleID, s.deps.Now())
	return bestEffort(err)
}

func (s *cancelSale) cancelReservation(ctx context.Context, in Input) SubStepResult {
	if in.ReservationID == "" {
		return SubStepResult{Outcome: OutcomeSkipped}
	}
	err := s.deps.Reservations.Cancel(ctx, in.ReservationID, domain.CompensationCancelReason, s.deps.Now())
	return bestEffort(err)
}

// bestEffort: невыполненное условие значит, что откатывать нечего.
func bestEffort(err error) SubStepResult {
	switch {
	case err == nil:
		return SubStepResult{Outcome: OutcomeApplied}
	case errors.Is(err, domain.ErrPreconditionFailed), errors.Is(err, domain.ErrNotFound):
		return SubStepResult{Outcome: OutcomeSkipped, Err: err}
	default:
		return SubStepResult{Outcome: OutcomeFailed, Err: err}
	}
}
