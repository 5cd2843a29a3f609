package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

type loadMode string

const (
	modeApprove loadMode = "approve"
	modeDecline loadMode = "decline"
)

type config struct {
	baseURL      string
	total        int
	concurrency  int
	timeout      time.Duration
	waitTimeout  time.Duration
	pollInterval time.Duration
	mode         loadMode
	cancelRate   int
	price        int64
	customerTag  string
	outputPath   string
}

func newCLI(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:   "loadtest",
		Usage:  "drive concurrent vehicle purchases through the HTTP API",
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "http://localhost:8080", EnvVars: []string{"AUTOSALES_LOADTEST_ADDR"}, Usage: "base URL of the sales API"},
			&cli.IntFlag{Name: "total", Value: 200, Usage: "number of purchase scenarios"},
			&cli.IntFlag{Name: "concurrency", Value: 16, Usage: "parallel workers"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "per-request timeout"},
			&cli.DurationFlag{Name: "wait-timeout", Value: time.Minute, Usage: "max time to wait for a saga to finish"},
			&cli.DurationFlag{Name: "poll-interval", Value: 100 * time.Millisecond, Usage: "execution status poll interval"},
			&cli.StringFlag{Name: "mode", Value: string(modeApprove), Usage: "payment outcome: approve or decline"},
			&cli.IntFlag{Name: "cancel-rate", Usage: "percent of scenarios cancelled by the customer (0-100)"},
			&cli.Int64Flag{Name: "price", Value: 1_500_000, Usage: "vehicle price"},
			&cli.StringFlag{Name: "customer-tag", Value: "lt", Usage: "prefix for generated client data"},
			&cli.StringFlag{Name: "output", Usage: "write JSON report to this path"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := readConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}

			result := execute(c.Context, cfg, newAPIClient(cfg.baseURL, cfg.timeout))
			printReport(c.App.Writer, result, cfg)

			if cfg.outputPath != "" {
				if err := writeJSONReport(cfg.outputPath, result); err != nil {
					return cli.Exit(err.Error(), 1)
				}
			}
			if result.FailedScenarios > 0 {
				return cli.Exit(fmt.Sprintf("%d of %d scenarios failed", result.FailedScenarios, result.TotalScenarios), 1)
			}
			return nil
		},
	}
}

func readConfig(c *cli.Context) (config, error) {
	cfg := config{
		baseURL:      strings.TrimSpace(c.String("addr")),
		total:        c.Int("total"),
		concurrency:  c.Int("concurrency"),
		timeout:      c.Duration("timeout"),
		waitTimeout:  c.Duration("wait-timeout"),
		pollInterval: c.Duration("poll-interval"),
		mode:         loadMode(strings.ToLower(strings.TrimSpace(c.String("mode")))),
		cancelRate:   c.Int("cancel-rate"),
		price:        c.Int64("price"),
		customerTag:  strings.TrimSpace(c.String("customer-tag")),
		outputPath:   strings.TrimSpace(c.String("output")),
	}

	switch {
	case cfg.baseURL == "":
		return config{}, fmt.Errorf("addr is required")
	case cfg.total <= 0:
		return config{}, fmt.Errorf("total must be > 0")
	case cfg.concurrency <= 0:
		return config{}, fmt.Errorf("concurrency must be > 0")
	case cfg.timeout <= 0 || cfg.waitTimeout <= 0 || cfg.pollInterval <= 0:
		return config{}, fmt.Errorf("timeouts must be > 0")
	case cfg.mode != modeApprove && cfg.mode != modeDecline:
		return config{}, fmt.Errorf("unsupported mode %q", cfg.mode)
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return config{}, fmt.Errorf("cancel-rate must be in [0,100]")
	case cfg.price <= 0:
		return config{}, fmt.Errorf("price must be > 0")
	}
	if cfg.customerTag == "" {
		cfg.customerTag = "lt"
	}
	if cfg.concurrency > cfg.total {
		cfg.concurrency = cfg.total
	}
	return cfg, nil
}

// execute раздаёт сценарии воркерам и собирает отчёт.
func execute(ctx context.Context, cfg config, api *apiClient) report {
	runner := &scenarioRunner{api: api, cfg: cfg, collector: newCollector(), sleep: sleepContext}

	jobs := make(chan int)
	var wg sync.WaitGroup
	started := time.Now()

	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				runner.run(ctx, index)
			}
		}()
	}

dispatch:
	for i := range cfg.total {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return runner.collector.buildReport(started, time.Since(started))
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := newCLI(os.Stdout).Run(os.Args); err != nil {
		log.WithError(err).Error("load test failed")
		os.Exit(1)
	}
}
