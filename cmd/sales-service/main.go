package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/autosales/internal/app"
	"github.com/vladislavdragonenkov/autosales/internal/version"
)

func newCLI() *cli.App {
	return &cli.App{
		Name:    "sales-service",
		Usage:   "vehicle purchase saga service",
		Version: version.String(),
		Description: "Reads configuration from AUTOSALES_* environment variables. " +
			"Flags override the listen addresses.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "http-addr", Usage: "purchase API listen address"},
			&cli.StringFlag{Name: "grpc-addr", Usage: "gRPC health listen address"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "metrics and health probes listen address"},
			&cli.BoolFlag{Name: "check-config", Usage: "validate configuration and exit"},
		},
		Action: run,
	}
}

func readConfig(c *cli.Context) (app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, err
	}
	if v := c.String("http-addr"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := c.String("grpc-addr"); v != "" {
		cfg.GRPCAddr = v
	}
	if v := c.String("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
	return cfg, nil
}

func run(c *cli.Context) error {
	cfg, err := readConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("configuration: %v", err), 2)
	}
	if c.Bool("check-config") {
		_, _ = fmt.Fprintln(c.App.Writer, "configuration ok")
		return nil
	}

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"broker":       cfg.EventBroker,
	}).Info("starting sales service")

	if err := app.Run(c.Context, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return cli.Exit(fmt.Sprintf("sales service failed: %v", err), 1)
	}
	log.Info("sales service stopped")
	return nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		log.WithError(err).Fatal("sales service exited")
	}
}
