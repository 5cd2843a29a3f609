package saga

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/storage/memory"
)

var fixtureNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	vehicles     domain.VehicleRepository
	reservations domain.ReservationRepository
	sales        domain.SaleRepository
	clients      domain.ClientRepository
	executions   domain.ExecutionRepository
	timeline     domain.TimelineRepository
	outbox       *memory.OutboxRepository
	deps         Dependencies
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		vehicles:     memory.NewVehicleRepository(),
		reservations: memory.NewReservationRepository(),
		sales:        memory.NewSaleRepository(),
		clients:      memory.NewClientRepository(),
		executions:   memory.NewExecutionRepository(),
		timeline:     memory.NewTimelineRepository(),
		outbox:       memory.NewOutboxRepository(),
	}

	var seq atomic.Int64
	f.deps = Dependencies{
		Vehicles:     f.vehicles,
		Reservations: f.reservations,
		Sales:        f.sales,
		Clients:      f.clients,
		Logger:       quietLogger(),
		Now:          func() time.Time { return fixtureNow },
		NewID:        func() string { return fmt.Sprintf("id-%d", seq.Add(1)) },
	}

	ctx := context.Background()
	if err := f.vehicles.Create(ctx, domain.NewAvailableVehicle("v1", "Toyota", "Corolla", 2024, "white", 20000, fixtureNow)); err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	if err := f.clients.Create(ctx, domain.NewActiveClient("c1", "Ana Souza", "ana@example.com", "12345678900", "pix-c1", "Rua A, 1", fixtureNow)); err != nil {
		t.Fatalf("seed client: %v", err)
	}
	inactive := domain.NewActiveClient("c-off", "Bruno Lima", "bruno@example.com", "98765432100", "pix-off", "Rua B, 2", fixtureNow)
	inactive.Status = domain.ClientStatusInactive
	if err := f.clients.Create(ctx, inactive); err != nil {
		t.Fatalf("seed inactive client: %v", err)
	}

	return f
}

func (f *fixture) testConfig() Config {
	return Config{
		ReservationTTLMinutes: 15,
		MaxPaymentChecks:      3,
		PaymentPollInterval:   0,
		Compensation: RetryConfig{
			MaxAttempts:   2,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
			BackoffFactor: 1,
		},
	}
}

func (f *fixture) orchestrator(cfg Config) Orchestrator {
	return NewOrchestrator(NewSteps(f.deps, cfg), cfg, Options{
		Executions: f.executions,
		Outbox:     f.outbox,
		Timeline:   f.timeline,
		Logger:     quietLogger(),
		Now:        func() time.Time { return fixtureNow },
	})
}

func (f *fixture) vehicle(t *testing.T, id string) domain.Vehicle {
	t.Helper()
	v, err := f.vehicles.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get vehicle %s: %v", id, err)
	}
	return v
}

func (f *fixture) sale(t *testing.T, id string) domain.Sale {
	t.Helper()
	s, err := f.sales.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get sale %s: %v", id, err)
	}
	return s
}

func (f *fixture) reservation(t *testing.T, id string) domain.Reservation {
	t.Helper()
	r, err := f.reservations.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get reservation %s: %v", id, err)
	}
	return r
}

// reserved проводит сагу до AWAITING_PAYMENT и возвращает накопленный вход.
func (f *fixture) reserved(t *testing.T, saleID string) Input {
	t.Helper()

	steps := NewSteps(f.deps, f.testConfig())
	in := Input{SaleID: saleID, VehicleID: "v1", ClientID: "c1", ReservationTTLMinutes: 15, MaxPaymentChecks: 3}
	for _, step := range []Step{steps.ValidateClient, steps.ReserveVehicle, steps.GeneratePaymentCode} {
		delta, err := step.Execute(context.Background(), in)
		if err != nil {
			t.Fatalf("%s: %v", step.Name(), err)
		}
		in = delta.Apply(in)
	}
	return in
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "saga-test")
}

func boolPtr(v bool) *bool {
	return &v
}
