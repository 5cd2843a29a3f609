package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var schemaFiles embed.FS

const (
	schemaDir = "sql/migrations"

	// schemaLockKey — ключ advisory lock, под которым меняется схема автосалона.
	schemaLockKey = int64(0x4155544f53414c45)

	schemaStatusTimeout = 5 * time.Second

	schemaVersionsDDL = `
CREATE TABLE IF NOT EXISTS schema_versions (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	// <версия>_<имя>.<up|down>.sql
	schemaFileName = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

	errStoreNotInitialized = errors.New("postgres store is not initialized")
)

// schemaStep — пара скриптов одной версии схемы.
type schemaStep struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (s schemaStep) label() string {
	return fmt.Sprintf("%04d_%s", s.Version, s.Name)
}

// MigrationState описывает состояние схемы относительно встроенных миграций.
// Unknown перечисляет применённые версии, которых нет среди встроенных файлов.
type MigrationState struct {
	Version int64
	Applied int
	Pending []string
	Unknown []int64
}

// MigrateUp применяет до steps ожидающих миграций; 0 означает все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withSchemaLock(ctx, func(sess schemaSession, known []schemaStep, applied []int64) error {
		for _, step := range planUp(known, applied, steps) {
			if err := sess.exec(ctx, step.label()+" up", step.Up,
				`INSERT INTO schema_versions (version, name) VALUES ($1, $2)`, step.Version, step.Name); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrateDown откатывает последние steps миграций; steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.withSchemaLock(ctx, func(sess schemaSession, known []schemaStep, applied []int64) error {
		plan, err := planDown(known, applied, steps)
		if err != nil {
			return err
		}
		for _, step := range plan {
			if err := sess.exec(ctx, step.label()+" down", step.Down,
				`DELETE FROM schema_versions WHERE version = $1`, step.Version); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus возвращает текущую версию схемы и список ещё не применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	if s == nil || s.db == nil {
		return MigrationState{}, errStoreNotInitialized
	}
	known, err := readSchemaSteps(schemaFiles)
	if err != nil {
		return MigrationState{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, schemaStatusTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schemaVersionsDDL); err != nil {
		return MigrationState{}, fmt.Errorf("ensure schema_versions: %w", err)
	}
	applied, err := appliedVersions(ctx, s.db)
	if err != nil {
		return MigrationState{}, err
	}
	return describeSchema(known, applied), nil
}

// schemaSession — выделенное соединение, держащее advisory lock.
type schemaSession struct {
	conn *sql.Conn
}

// exec выполняет скрипт и запись в schema_versions одной транзакцией.
func (s schemaSession) exec(ctx context.Context, what, script, bookkeeping string, args ...any) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", what, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("migration %s: %w", what, err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("migration %s: record version: %w", what, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: commit: %w", what, err)
	}
	return nil
}

func (s *Store) withSchemaLock(ctx context.Context, fn func(schemaSession, []schemaStep, []int64) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	known, err := readSchemaSteps(schemaFiles)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire schema connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	// lock снимается и при отменённом ctx: соединение вернётся в пул.
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, schemaLockKey)
	}()

	if _, err := conn.ExecContext(ctx, schemaVersionsDDL); err != nil {
		return fmt.Errorf("ensure schema_versions: %w", err)
	}
	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	return fn(schemaSession{conn: conn}, known, applied)
}

type rowsQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// appliedVersions возвращает применённые версии по возрастанию.
func appliedVersions(ctx context.Context, q rowsQuerier) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT version FROM schema_versions ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query schema_versions: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_versions: %w", err)
	}
	return versions, nil
}

// planUp выбирает неприменённые шаги по возрастанию версии, не больше limit (0 — без ограничения).
func planUp(known []schemaStep, applied []int64, limit int) []schemaStep {
	var plan []schemaStep
	for _, step := range known {
		if slices.Contains(applied, step.Version) {
			continue
		}
		plan = append(plan, step)
		if limit > 0 && len(plan) == limit {
			break
		}
	}
	return plan
}

// planDown выбирает последние применённые шаги в порядке отката.
// Версия без встроенного down-скрипта останавливает откат целиком.
func planDown(known []schemaStep, applied []int64, limit int) ([]schemaStep, error) {
	if limit <= 0 {
		limit = 1
	}
	byVersion := make(map[int64]schemaStep, len(known))
	for _, step := range known {
		byVersion[step.Version] = step
	}

	var plan []schemaStep
	for i := len(applied) - 1; i >= 0 && len(plan) < limit; i-- {
		step, ok := byVersion[applied[i]]
		if !ok {
			return nil, fmt.Errorf("schema version %d is applied but has no migration files", applied[i])
		}
		plan = append(plan, step)
	}
	return plan, nil
}

func describeSchema(known []schemaStep, applied []int64) MigrationState {
	state := MigrationState{Applied: len(applied), Pending: []string{}}
	if len(applied) > 0 {
		state.Version = slices.Max(applied)
	}
	for _, step := range known {
		if !slices.Contains(applied, step.Version) {
			state.Pending = append(state.Pending, step.label())
		}
	}
	for _, v := range applied {
		if !slices.ContainsFunc(known, func(step schemaStep) bool { return step.Version == v }) {
			state.Unknown = append(state.Unknown, v)
		}
	}
	return state
}

// readSchemaSteps собирает пары up/down из fsys и сортирует их по версии.
func readSchemaSteps(fsys fs.FS) ([]schemaStep, error) {
	entries, err := fs.ReadDir(fsys, schemaDir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", schemaDir, err)
	}

	steps := make(map[int64]*schemaStep)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		m := schemaFileName.FindStringSubmatch(entry.Name())
		if m == nil {
			return nil, fmt.Errorf("unexpected migration file %q", entry.Name())
		}
		version, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration file %q: version: %w", entry.Name(), err)
		}

		raw, err := fs.ReadFile(fsys, path.Join(schemaDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		script := strings.TrimSpace(string(raw))
		if script == "" {
			return nil, fmt.Errorf("migration file %q is empty", entry.Name())
		}

		step := steps[version]
		if step == nil {
			step = &schemaStep{Version: version, Name: m[2]}
			steps[version] = step
		}
		if step.Name != m[2] {
			return nil, fmt.Errorf("version %d is named both %q and %q", version, step.Name, m[2])
		}
		target := &step.Up
		if m[3] == "down" {
			target = &step.Down
		}
		if *target != "" {
			return nil, fmt.Errorf("version %d has two %s scripts", version, m[3])
		}
		*target = script
	}

	if len(steps) == 0 {
		return nil, fmt.Errorf("no migrations in %s", schemaDir)
	}

	result := make([]schemaStep, 0, len(steps))
	for _, step := range steps {
		if step.Up == "" || step.Down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down scripts", step.label())
		}
		result = append(result, *step)
	}
	slices.SortFunc(result, func(a, b schemaStep) int { return cmp.Compare(a.Version, b.Version) })
	return result, nil
}
