package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/vladislavdragonenkov/autosales/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type saramaSource struct {
	consumer sarama.Consumer
}

func (s saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

func (s saramaSource) Close() error { return s.consumer.Close() }

// connect открывает клиента Kafka; producer нужен только в режиме execute.
var connect = func(cfg config) (offsetClient, partitionSource, replayProducer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	if !cfg.execute {
		return client, saramaSource{consumer: consumer}, nil, nil
	}

	producer, err := sarama.NewSyncProducer(cfg.brokers, kafka.NewProducerConfig())
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return client, saramaSource{consumer: consumer}, producer, nil
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "dlq-reprocess",
		Usage: "replay sale events and payment callbacks from the dead letter topic",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "brokers", EnvVars: []string{"AUTOSALES_KAFKA_BROKERS"}, Usage: "Kafka brokers"},
			&cli.StringFlag{Name: "source-topic", Value: kafka.TopicDeadLetterQueue, Usage: "DLQ topic to scan"},
			&cli.StringFlag{Name: "target-topic", Value: kafka.TopicSaleEvents, Usage: "topic for replayed outbox events"},
			&cli.IntFlag{Name: "limit", Value: defaultReplayLimit, Usage: "max messages to scan"},
			&cli.BoolFlag{Name: "execute", Usage: "publish messages; default is dry-run"},
			&cli.BoolFlag{Name: "from-newest", Usage: "scan the latest messages of each partition"},
			&cli.DurationFlag{Name: "idle-timeout", Value: defaultIdleTimeout, Usage: "stop a partition after this idle period"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := readConfig(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			if err := run(c, cfg); err != nil {
				return cli.Exit(fmt.Sprintf("dlq replay failed: %v", err), 1)
			}
			return nil
		},
	}
}

func readConfig(c *cli.Context) (config, error) {
	cfg := config{
		brokers:     parseBrokers(c.StringSlice("brokers")),
		sourceTopic: strings.TrimSpace(c.String("source-topic")),
		targetTopic: strings.TrimSpace(c.String("target-topic")),
		limit:       c.Int("limit"),
		execute:     c.Bool("execute"),
		fromNewest:  c.Bool("from-newest"),
		idleTimeout: c.Duration("idle-timeout"),
	}
	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (--brokers or AUTOSALES_KAFKA_BROKERS)")
	case cfg.sourceTopic == "":
		return config{}, fmt.Errorf("source-topic is required")
	case cfg.targetTopic == "":
		return config{}, fmt.Errorf("target-topic is required")
	case cfg.limit <= 0:
		return config{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}
	return cfg, nil
}

func parseBrokers(values []string) []string {
	brokers := make([]string, 0, len(values))
	for _, value := range values {
		for _, chunk := range strings.Split(value, ",") {
			if broker := strings.TrimSpace(chunk); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}
	return brokers
}

func run(c *cli.Context, cfg config) error {
	logger := log.WithField("component", "dlq-reprocess")
	logger.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
	}).Info("starting dlq replay")

	client, source, producer, err := connect(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		_ = source.Close()
		_ = client.Close()
	}()

	r := &replayer{
		cfg:      cfg,
		client:   client,
		source:   source,
		producer: producer,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	stats, err := r.run(c.Context)

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": stats.processed,
		"replayed":  stats.replayed,
		"skipped":   stats.skipped,
	}).Info("dlq replay finished")
	return err
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := newCLI().Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
