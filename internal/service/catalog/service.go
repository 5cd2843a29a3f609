package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

// CreateVehicleRequest — карточка нового автомобиля.
type CreateVehicleRequest struct {
	Brand string `json:"brand"`
	Model string `json:"model"`
	Year  int    `json:"year"`
	Color string `json:"color"`
	Price int64  `json:"price"`
}

// CreateClientRequest — профиль нового покупателя.
type CreateClientRequest struct {
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	DocumentNumber string `json:"documentNumber"`
	PaymentKey     string `json:"paymentKey"`
	Address        string `json:"address"`
}

// Repositories перечисляет хранилища, с которыми работает каталог.
type Repositories struct {
	Vehicles     domain.VehicleRepository
	Reservations domain.ReservationRepository
	Sales        domain.SaleRepository
	Clients      domain.ClientRepository
	Executions   domain.ExecutionRepository
	Timeline     domain.TimelineRepository
}

// Service обслуживает каталог автомобилей, клиентов и чтение состояния продаж.
// Сага не зависит от этого сервиса.
type Service struct {
	repos  Repositories
	logger *log.Entry
	now    func() time.Time
	newID  func() string
}

// NewService создаёт сервис каталога.
func NewService(repos Repositories, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	return &Service{
		repos:  repos,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// CreateVehicle добавляет автомобиль в статусе AVAILABLE.
func (s *Service) CreateVehicle(ctx context.Context, req CreateVehicleRequest) (domain.Vehicle, error) {
	vehicle := domain.NewAvailableVehicle(s.newID(), req.Brand, req.Model, req.Year, req.Color, req.Price, s.now())
	if err := invalid("vehicle", vehicle.Validate()); err != nil {
		return domain.Vehicle{}, err
	}
	if err := s.repos.Vehicles.Create(ctx, vehicle); err != nil {
		return domain.Vehicle{}, err
	}

	s.logger.WithFields(log.Fields{
		"vehicle_id": vehicle.ID,
		"price":      vehicle.Price,
	}).Info("vehicle created")
	return vehicle, nil
}

// UpdateVehicle меняет карточку. Проданный автомобиль не редактируется (ErrInvalidState).
func (s *Service) UpdateVehicle(ctx context.Context, id string, details domain.VehicleDetails) (domain.Vehicle, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Vehicle{}, domain.ErrVehicleIDRequired
	}
	if details.IsEmpty() {
		return domain.Vehicle{}, fmt.Errorf("nothing to update: %w", domain.ErrInvalidInput)
	}
	if err := invalid("vehicle details", validateDetails(details)); err != nil {
		return domain.Vehicle{}, err
	}

	vehicle, err := s.repos.Vehicles.UpdateDetails(ctx, id, details, s.now())
	if err != nil {
		return domain.Vehicle{}, err
	}
	s.logger.WithField("vehicle_id", id).Info("vehicle updated")
	return vehicle, nil
}

// GetVehicle возвращает автомобиль по ID.
func (s *Service) GetVehicle(ctx context.Context, id string) (domain.Vehicle, error) {
	return s.repos.Vehicles.Get(ctx, id)
}

// ListSoldVehicles возвращает проданные автомобили по возрастанию цены.
func (s *Service) ListSoldVehicles(ctx context.Context) ([]domain.Vehicle, error) {
	return s.repos.Vehicles.ListByStatus(ctx, domain.VehicleStatusSold)
}

// CreateClient регистрирует покупателя в статусе ACTIVE.
func (s *Service) CreateClient(ctx context.Context, req CreateClientRequest) (domain.Client, error) {
	client := domain.NewActiveClient(s.newID(), req.FullName, req.Email, req.DocumentNumber, req.PaymentKey, req.Address, s.now())
	if err := invalid("client", client.Validate()); err != nil {
		return domain.Client{}, err
	}
	if err := s.repos.Clients.Create(ctx, client); err != nil {
		return domain.Client{}, err
	}

	s.logger.WithField("client_id", client.ID).Info("client registered")
	return client, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	return s.repos.Sales.Get(ctx, id)
}

func (s *Service) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	return s.repos.Reservations.Get(ctx, id)
}

// GetExecution возвращает состояние запуска саги по execution handle.
func (s *Service) GetExecution(ctx context.Context, handle string) (domain.Execution, error) {
	if s.repos.Executions == nil {
		return domain.Execution{}, fmt.Errorf("execution %s: %w", handle, domain.ErrNotFound)
	}
	return s.repos.Executions.Get(ctx, handle)
}

// SaleTimeline возвращает журнал продажи; для неизвестной продажи ErrNotFound.
func (s *Service) SaleTimeline(ctx context.Context, saleID string) ([]domain.TimelineEvent, error) {
	if _, err := s.repos.Sales.Get(ctx, saleID); err != nil {
		return nil, err
	}
	if s.repos.Timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	return s.repos.Timeline.List(ctx, saleID)
}

func validateDetails(d domain.VehicleDetails) []error {
	var errs []error
	blank := func(field string, v *string) {
		if v != nil && strings.TrimSpace(*v) == "" {
			errs = append(errs, fmt.Errorf("%s must not be blank", field))
		}
	}
	blank("brand", d.Brand)
	blank("model", d.Model)
	blank("color", d.Color)
	if d.Year != nil && *d.Year <= 0 {
		errs = append(errs, fmt.Errorf("year must be greater than zero"))
	}
	if d.Price != nil && *d.Price <= 0 {
		errs = append(errs, domain.ErrPriceInvalid)
	}
	return errs
}

// invalid собирает ошибки валидации в одну, классифицируемую как ErrInvalidInput.
func invalid(subject string, errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	merged := multierror.Append(nil, errs...)
	merged.ErrorFormat = func(es []error) string {
		parts := make([]string, len(es))
		for i, e := range es {
			parts[i] = e.Error()
		}
		return strings.Join(parts, "; ")
	}
	return fmt.Errorf("%s is invalid: %w: %w", subject, merged, domain.ErrInvalidInput)
}
