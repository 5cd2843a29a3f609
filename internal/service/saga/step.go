package saga

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

// StepName — имя шага саги.
type StepName string

const (
	StepValidateClient      StepName = "ValidateClient"
	StepReserveVehicle      StepName = "ReserveVehicle"
	StepGeneratePaymentCode StepName = "GeneratePaymentCode"
	StepCheckPaymentStatus  StepName = "CheckPaymentStatus"
	StepCompleteSale        StepName = "CompleteSale"
	StepCancelSale          StepName = "CancelSale"
)

// Step — один шаг саги покупки. Набор шагов закрыт: реализовать Step можно
// только внутри пакета.
type Step interface {
	Name() StepName
	Execute(ctx context.Context, in Input) (Delta, error)
	sealed()
}

type sealedStep struct{}

func (sealedStep) sealed() {}

// Dependencies — хранилища и источники времени/идентификаторов для шагов.
type Dependencies struct {
	Vehicles     domain.VehicleRepository
	Reservations domain.ReservationRepository
	Sales        domain.SaleRepository
	Clients      domain.ClientRepository
	Logger       *log.Entry

	// Now и NewID подменяются в тестах.
	Now   func() time.Time
	NewID func() string
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Logger == nil {
		d.Logger = log.New().WithField("component", "saga")
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

// Steps собирает полный набор шагов саги.
type Steps struct {
	ValidateClient      Step
	ReserveVehicle      Step
	GeneratePaymentCode Step
	CheckPaymentStatus  Step
	CompleteSale        Step
	CancelSale          Step
}

// NewSteps создаёт все шаги с общими зависимостями и конфигурацией.
func NewSteps(deps Dependencies, cfg Config) Steps {
	deps = deps.withDefaults()
	cfg = cfg.withDefaults()
	return Steps{
		ValidateClient:      NewValidateClient(deps),
		ReserveVehicle:      NewReserveVehicle(deps, cfg),
		GeneratePaymentCode: NewGeneratePaymentCode(deps),
		CheckPaymentStatus:  NewCheckPaymentStatus(deps, cfg),
		CompleteSale:        NewCompleteSale(deps),
		CancelSale:          NewCancelSale(deps),
	}
}
