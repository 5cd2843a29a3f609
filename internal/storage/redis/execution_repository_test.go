package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
)

func newTestRepository(t *testing.T, ttl time.Duration) (*ExecutionRepository, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return NewExecutionRepository(client, ttl), server
}

func TestExecutionRepository_SaveAndGet(t *testing.T) {
	repo, server := newTestRepository(t, time.Hour)
	ctx := context.Background()

	startedAt := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	execution := domain.Execution{
		Handle:    domain.ExecutionHandleFor("0b7e-44aa"),
		SaleID:    "0b7e-44aa",
		Status:    domain.ExecutionStatusRunning,
		Step:      "ReserveVehicle",
		StartedAt: startedAt,
		UpdatedAt: startedAt,
	}
	if err := repo.Save(ctx, execution); err != nil {
		t.Fatalf("save: %v", err)
	}

	finishedAt := startedAt.Add(time.Minute)
	execution.Status = domain.ExecutionStatusSucceeded
	execution.FinishedAt = &finishedAt
	if err := repo.Save(ctx, execution); err != nil {
		t.Fatalf("save finished: %v", err)
	}

	got, err := repo.Get(ctx, "sale-0b7e44aa")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.ExecutionStatusSucceeded || got.FinishedAt == nil || !got.FinishedAt.Equal(finishedAt) {
		t.Fatalf("unexpected execution: %+v", got)
	}

	ttl := server.TTL(defaultKeyPrefix + "sale-0b7e44aa")
	if ttl != time.Hour {
		t.Fatalf("expected ttl 1h, got %s", ttl)
	}
}

func TestExecutionRepository_GetMissingAndExpired(t *testing.T) {
	repo, server := newTestRepository(t, time.Minute)
	ctx := context.Background()

	if _, err := repo.Get(ctx, "sale-missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.Save(ctx, domain.Execution{Handle: "sale-short", Status: domain.ExecutionStatusRunning}); err != nil {
		t.Fatalf("save: %v", err)
	}
	server.FastForward(2 * time.Minute)

	if _, err := repo.Get(ctx, "sale-short"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after ttl, got %v", err)
	}
}

func TestExecutionRepository_RejectsEmptyHandle(t *testing.T) {
	repo, _ := newTestRepository(t, 0)

	err := repo.Save(context.Background(), domain.Execution{})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if repo.ttl != defaultExecutionTTL {
		t.Fatalf("expected default ttl, got %s", repo.ttl)
	}
}

func TestExecutionRepository_CorruptedPayload(t *testing.T) {
	repo, server := newTestRepository(t, time.Hour)

	if err := server.Set(defaultKeyPrefix+"sale-bad", "{not-json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := repo.Get(context.Background(), "sale-bad"); err == nil || domain.IsNotFound(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
