// Package nats публикует события продаж в NATS JetStream как альтернативу Kafka.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/messaging"
)

const (
	DefaultStream        = "AUTOSALES"
	DefaultSubjectPrefix = "autosales.sale."
)

// Config задаёт параметры подключения к JetStream.
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = natsgo.DefaultURL
	}
	if c.Stream == "" {
		c.Stream = DefaultStream
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = DefaultSubjectPrefix
	}
	return c
}

// jetStream повторяет часть nats.JetStreamContext, которой пользуется паблишер.
type jetStream interface {
	Publish(subj string, data []byte, opts ...natsgo.PubOpt) (*natsgo.PubAck, error)
	StreamInfo(stream string, opts ...natsgo.JSOpt) (*natsgo.StreamInfo, error)
	AddStream(cfg *natsgo.StreamConfig, opts ...natsgo.JSOpt) (*natsgo.StreamInfo, error)
}

// Publisher публикует события outbox в subject <prefix><eventType>.
// ID события передаётся как Nats-Msg-Id, поэтому повторная публикация
// в окне дедупликации не создаёт дубль.
type Publisher struct {
	js     jetStream
	conn   *natsgo.Conn
	cfg    Config
	logger *log.Entry
	now    func() time.Time
}

// Connect подключается к NATS и создаёт stream, если его нет.
func Connect(cfg Config, logger *log.Entry) (*Publisher, error) {
	cfg = cfg.withDefaults()

	conn, err := natsgo.Connect(cfg.URL, natsgo.Name("autosales-outbox"))
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open jetstream: %w", err)
	}

	p := newPublisher(js, cfg, logger)
	p.conn = conn
	if err := p.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(js jetStream, cfg Config, logger *log.Entry) *Publisher {
	if logger == nil {
		logger = log.WithField("component", "nats-publisher")
	}
	return &Publisher{
		js:     js,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) ensureStream() error {
	if _, err := p.js.StreamInfo(p.cfg.Stream); err == nil {
		return nil
	} else if !errors.Is(err, natsgo.ErrStreamNotFound) {
		return fmt.Errorf("stream %s info: %w", p.cfg.Stream, err)
	}

	if _, err := p.js.AddStream(&natsgo.StreamConfig{
		Name:       p.cfg.Stream,
		Subjects:   []string{p.cfg.SubjectPrefix + ">"},
		Retention:  natsgo.LimitsPolicy,
		Duplicates: 2 * time.Minute,
	}); err != nil {
		return fmt.Errorf("create stream %s: %w", p.cfg.Stream, err)
	}
	p.logger.WithField("stream", p.cfg.Stream).Info("nats stream created")
	return nil
}

// Publish отправляет событие и ждёт подтверждения JetStream.
func (p *Publisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.js == nil {
		return fmt.Errorf("nats publisher is not initialized")
	}

	data, err := json.Marshal(messaging.EnvelopeFor(event, p.now()))
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := p.subject(event.EventType)
	opts := []natsgo.PubOpt{natsgo.Context(ctx)}
	if event.ID != "" {
		opts = append(opts, natsgo.MsgId(event.ID))
	}

	ack, err := p.js.Publish(subject, data, opts...)
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	p.logger.WithFields(log.Fields{
		"subject":   subject,
		"sale_id":   event.AggregateID,
		"sequence":  ack.Sequence,
		"duplicate": ack.Duplicate,
	}).Debug("event published to nats")
	return nil
}

func (p *Publisher) subject(eventType string) string {
	if eventType == "" {
		eventType = "unknown"
	}
	return p.cfg.SubjectPrefix + strings.ToLower(eventType)
}

// Close закрывает соединение, если паблишер его открыл.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

var _ domain.OutboxPublisher = (*Publisher)(nil)
