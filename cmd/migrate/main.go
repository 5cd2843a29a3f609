package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/autosales/internal/storage/postgres"
)

const defaultTimeout = 30 * time.Second

func newCLI() *cli.App {
	dsnFlag := &cli.StringFlag{
		Name:     "dsn",
		Usage:    "PostgreSQL DSN",
		EnvVars:  []string{"AUTOSALES_POSTGRES_DSN"},
		Required: true,
	}
	stepsFlag := &cli.IntFlag{Name: "steps", Usage: "number of migrations (up: 0 = all, down: default 1)"}

	return &cli.App{
		Name:  "migrate",
		Usage: "apply embedded sales schema migrations",
		Flags: []cli.Flag{
			dsnFlag,
			&cli.DurationFlag{Name: "timeout", Value: defaultTimeout, Usage: "overall timeout"},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Flags: []cli.Flag{stepsFlag},
				Action: withStore(func(ctx context.Context, store *postgres.Store, c *cli.Context) error {
					if err := store.MigrateUp(ctx, c.Int("steps")); err != nil {
						return fmt.Errorf("migrate up: %w", err)
					}
					return printStatus(ctx, store, c.App.Writer, "migrate up ok")
				}),
			},
			{
				Name:  "down",
				Usage: "roll back applied migrations",
				Flags: []cli.Flag{stepsFlag},
				Action: withStore(func(ctx context.Context, store *postgres.Store, c *cli.Context) error {
					if err := store.MigrateDown(ctx, c.Int("steps")); err != nil {
						return fmt.Errorf("migrate down: %w", err)
					}
					return printStatus(ctx, store, c.App.Writer, "migrate down ok")
				}),
			},
			{
				Name:  "status",
				Usage: "show schema version and pending migrations",
				Action: withStore(func(ctx context.Context, store *postgres.Store, c *cli.Context) error {
					return printStatus(ctx, store, c.App.Writer, "migration status")
				}),
			},
		},
	}
}

type storeAction func(ctx context.Context, store *postgres.Store, c *cli.Context) error

func withStore(fn storeAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
		defer cancel()

		store, err := postgres.Open(ctx, strings.TrimSpace(c.String("dsn")), postgres.PoolOptions{MaxOpenConns: 2})
		if err != nil {
			return cli.Exit(fmt.Sprintf("open postgres store: %v", err), 1)
		}
		defer store.Close()

		if err := fn(ctx, store, c); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		return nil
	}
}

func printStatus(ctx context.Context, store *postgres.Store, w io.Writer, prefix string) error {
	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	_, err = fmt.Fprintln(w, formatStatus(prefix, state))
	return err
}

func formatStatus(prefix string, state postgres.MigrationState) string {
	line := fmt.Sprintf("%s: version=%d applied=%d", prefix, state.Version, state.Applied)
	if len(state.Pending) > 0 {
		line += " pending=" + strings.Join(state.Pending, ",")
	}
	if len(state.Unknown) > 0 {
		line += fmt.Sprintf(" unknown=%v", state.Unknown)
	}
	return line
}

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
