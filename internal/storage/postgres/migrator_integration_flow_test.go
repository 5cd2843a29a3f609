package postgres

import (
	"context"
	"testing"
	"time"
)

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Reset migration state first.
	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("migrate down reset: %v", err)
	}

	requireMigrationState(t, store, 0, 2)

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate up all: %v", err)
	}
	requireMigrationState(t, store, 2, 0)

	// Idempotent up should keep state unchanged.
	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("idempotent migrate up: %v", err)
	}
	requireMigrationState(t, store, 2, 0)

	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("migrate down 1: %v", err)
	}
	requireMigrationState(t, store, 1, 1)

	if err := store.MigrateDown(ctx, 0); err != nil {
		t.Fatalf("migrate down default step: %v", err)
	}
	requireMigrationState(t, store, 0, 2)

	// No-op down on empty state.
	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("migrate down on empty should be no-op: %v", err)
	}
}

func TestMigrator_Guards(t *testing.T) {
	var nilStore *Store
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := nilStore.MigrateUp(ctx, 0); err == nil {
		t.Fatal("expected error for nil store MigrateUp")
	}
	if err := nilStore.MigrateDown(ctx, 1); err == nil {
		t.Fatal("expected error for nil store MigrateDown")
	}
	if _, err := nilStore.MigrationStatus(ctx); err == nil {
		t.Fatal("expected error for nil store MigrationStatus")
	}

	store := openRawPostgresStoreForIntegrationTest(t)
	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, `INSERT INTO schema_versions (version, name) VALUES (9999, 'foreign')`); err != nil {
		t.Fatalf("insert foreign version: %v", err)
	}
	t.Cleanup(func() {
		_, _ = store.db.ExecContext(context.Background(), `DELETE FROM schema_versions WHERE version = 9999`)
	})

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("migration status: %v", err)
	}
	if len(state.Unknown) != 1 || state.Unknown[0] != 9999 {
		t.Fatalf("expected foreign version in unknown, got %+v", state)
	}
	if err := store.MigrateDown(ctx, 1); err == nil {
		t.Fatal("rollback of a version without files must fail")
	}
}

func requireMigrationState(t *testing.T, store *Store, version int64, pending int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("migration status: %v", err)
	}
	if state.Version != version || len(state.Pending) != pending {
		t.Fatalf("unexpected migration state: version=%d applied=%d pending=%v", state.Version, state.Applied, state.Pending)
	}
}
