package postgres

import (
	"slices"
	"strings"
	"testing"
	"testing/fstest"
)

func TestReadSchemaSteps_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0002_more.up.sql":   {Data: []byte("CREATE TABLE test_b (id INT);")},
		"sql/migrations/0002_more.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_b;")},
		"sql/migrations/0001_init.up.sql":   {Data: []byte("CREATE TABLE test_a (id INT);\n")},
		"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_a;")},
		"sql/migrations/README.md":          {Data: []byte("ignored")},
	}

	steps, err := readSchemaSteps(fsys)
	if err != nil {
		t.Fatalf("readSchemaSteps failed: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Version != 1 || steps[0].Name != "init" || steps[0].Up != "CREATE TABLE test_a (id INT);" {
		t.Fatalf("unexpected first step: %+v", steps[0])
	}
	if steps[1].Version != 2 || steps[1].label() != "0002_more" {
		t.Fatalf("unexpected second step: %+v", steps[1])
	}
}

func TestReadSchemaSteps_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		fsys    fstest.MapFS
		wantErr string
	}{
		{
			name:    "missing down",
			fsys:    fstest.MapFS{"sql/migrations/0001_init.up.sql": {Data: []byte("SELECT 1;")}},
			wantErr: "both up and down",
		},
		{
			name:    "invalid file name",
			fsys:    fstest.MapFS{"sql/migrations/not_a_migration.sql": {Data: []byte("SELECT 1;")}},
			wantErr: "unexpected migration file",
		},
		{
			name: "empty script",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   {Data: []byte("   \n")},
				"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE IF EXISTS test;")},
			},
			wantErr: "is empty",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    {Data: []byte("SELECT 1;")},
				"sql/migrations/0001_other.down.sql": {Data: []byte("SELECT 1;")},
			},
			wantErr: "is named both",
		},
		{
			name:    "no files",
			fsys:    fstest.MapFS{"sql/migrations/notes.txt": {Data: []byte("-")}},
			wantErr: "no migrations",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := readSchemaSteps(tc.fsys)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestReadSchemaSteps_Embedded(t *testing.T) {
	t.Parallel()

	steps, err := readSchemaSteps(schemaFiles)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("expected 2 embedded migrations, got %d", len(steps))
	}
	if !strings.Contains(steps[0].Up, "CREATE TABLE IF NOT EXISTS vehicles") {
		t.Fatalf("first migration should create vehicles table")
	}
	if !strings.Contains(steps[1].Up, "outbox") {
		t.Fatalf("second migration should create outbox table")
	}
}

var schemaFixture = []schemaStep{
	{Version: 1, Name: "catalog_and_sales"},
	{Version: 2, Name: "outbox_and_timeline"},
	{Version: 3, Name: "extra"},
}

func versionsOf(steps []schemaStep) []int64 {
	out := make([]int64, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.Version)
	}
	return out
}

func TestPlanUp(t *testing.T) {
	t.Parallel()

	if got := versionsOf(planUp(schemaFixture, nil, 0)); !slices.Equal(got, []int64{1, 2, 3}) {
		t.Fatalf("all pending expected, got %v", got)
	}
	if got := versionsOf(planUp(schemaFixture, []int64{1}, 1)); !slices.Equal(got, []int64{2}) {
		t.Fatalf("one step after version 1 expected, got %v", got)
	}
	if got := planUp(schemaFixture, []int64{1, 2, 3}, 0); len(got) != 0 {
		t.Fatalf("nothing to apply expected, got %v", versionsOf(got))
	}
}

func TestPlanDown(t *testing.T) {
	t.Parallel()

	plan, err := planDown(schemaFixture, []int64{1, 2, 3}, 0)
	if err != nil || !slices.Equal(versionsOf(plan), []int64{3}) {
		t.Fatalf("default rollback must take one step, got %v err=%v", versionsOf(plan), err)
	}
	plan, err = planDown(schemaFixture, []int64{1, 2}, 100)
	if err != nil || !slices.Equal(versionsOf(plan), []int64{2, 1}) {
		t.Fatalf("rollback must go newest first, got %v err=%v", versionsOf(plan), err)
	}
	if plan, err = planDown(schemaFixture, nil, 1); err != nil || len(plan) != 0 {
		t.Fatalf("empty schema must be a no-op, got %v err=%v", versionsOf(plan), err)
	}
	if _, err := planDown(schemaFixture, []int64{1, 7}, 1); err == nil || !strings.Contains(err.Error(), "version 7") {
		t.Fatalf("unknown applied version must fail, got %v", err)
	}
}

func TestDescribeSchema(t *testing.T) {
	t.Parallel()

	state := describeSchema(schemaFixture, []int64{2, 9})
	if state.Version != 9 || state.Applied != 2 {
		t.Fatalf("unexpected version/applied: %+v", state)
	}
	if !slices.Equal(state.Pending, []string{"0001_catalog_and_sales", "0003_extra"}) {
		t.Fatalf("unexpected pending: %v", state.Pending)
	}
	if !slices.Equal(state.Unknown, []int64{9}) {
		t.Fatalf("unexpected unknown: %v", state.Unknown)
	}

	empty := describeSchema(schemaFixture[:1], nil)
	if empty.Version != 0 || len(empty.Pending) != 1 || empty.Unknown != nil {
		t.Fatalf("unexpected empty state: %+v", empty)
	}
}
