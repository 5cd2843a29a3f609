package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/health"
	"github.com/vladislavdragonenkov/autosales/internal/storage/memory"
	"github.com/vladislavdragonenkov/autosales/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/autosales/internal/storage/redis"
)

// storage собирает хранилища записей саги и их проверки готовности.
type storage struct {
	vehicles     domain.VehicleRepository
	reservations domain.ReservationRepository
	sales        domain.SaleRepository
	clients      domain.ClientRepository
	executions   domain.ExecutionRepository
	timeline     domain.TimelineRepository
	outbox       domain.OutboxRepository

	checks   map[string]health.CheckFunc
	optional map[string]health.CheckFunc
	closers  []func() error
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storage, error) {
	st := &storage{
		checks:   make(map[string]health.CheckFunc),
		optional: make(map[string]health.CheckFunc),
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory:
		st.vehicles = memory.NewVehicleRepository()
		st.reservations = memory.NewReservationRepository()
		st.sales = memory.NewSaleRepository()
		st.clients = memory.NewClientRepository()
		st.timeline = memory.NewTimelineRepository()
		st.outbox = memory.NewOutboxRepository()
		logger.Info("using in-memory record store")
	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.PoolOptions{})
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, store.Close)
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = st.close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		st.vehicles = postgres.NewVehicleRepository(store)
		st.reservations = postgres.NewReservationRepository(store)
		st.sales = postgres.NewSaleRepository(store)
		st.clients = postgres.NewClientRepository(store)
		st.timeline = postgres.NewTimelineRepository(store)
		st.outbox = postgres.NewOutboxRepository(store)
		st.checks["postgres"] = store.Ping
		logger.Info("using postgres record store")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	switch cfg.ExecutionStore {
	case ExecutionStoreRedis:
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		st.closers = append(st.closers, client.Close)
		st.executions = redisstore.NewExecutionRepository(client, cfg.ExecutionTTL)
		// Без Redis продажи идут, теряется только статус по handle.
		st.optional["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		logger.WithField("addr", cfg.RedisAddr).Info("using redis execution store")
	default:
		st.executions = memory.NewExecutionRepository()
	}

	return st, nil
}

func (s *storage) close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}
