package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/vladislavdragonenkov/autosales/internal/domain"
	"github.com/vladislavdragonenkov/autosales/internal/messaging"
)

type publishCall struct {
	subject string
	data    []byte
	opts    int
}

type stubJetStream struct {
	calls      []publishCall
	publishErr error
	infoErr    error
	added      *natsgo.StreamConfig
}

func (s *stubJetStream) Publish(subj string, data []byte, opts ...natsgo.PubOpt) (*natsgo.PubAck, error) {
	if s.publishErr != nil {
		return nil, s.publishErr
	}
	s.calls = append(s.calls, publishCall{subject: subj, data: data, opts: len(opts)})
	return &natsgo.PubAck{Stream: DefaultStream, Sequence: uint64(len(s.calls))}, nil
}

func (s *stubJetStream) StreamInfo(string, ...natsgo.JSOpt) (*natsgo.StreamInfo, error) {
	if s.infoErr != nil {
		return nil, s.infoErr
	}
	return &natsgo.StreamInfo{}, nil
}

func (s *stubJetStream) AddStream(cfg *natsgo.StreamConfig, _ ...natsgo.JSOpt) (*natsgo.StreamInfo, error) {
	s.added = cfg
	return &natsgo.StreamInfo{Config: *cfg}, nil
}

func TestPublisher_Publish(t *testing.T) {
	js := &stubJetStream{}
	publisher := newPublisher(js, Config{}, nil)
	publisher.now = func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) }

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "e1",
		AggregateType: "sale",
		AggregateID:   "s1",
		EventType:     "SaleCompleted",
		Payload:       []byte(`{"sale_id":"s1"}`),
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(js.calls) != 1 {
		t.Fatalf("expected one publish, got %d", len(js.calls))
	}

	call := js.calls[0]
	if call.subject != "autosales.sale.salecompleted" {
		t.Fatalf("unexpected subject %q", call.subject)
	}
	if call.opts != 2 {
		t.Fatalf("expected context and msg id options, got %d", call.opts)
	}

	var envelope messaging.Envelope
	if err := json.Unmarshal(call.data, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.AggregateID != "s1" || envelope.EventType != "SaleCompleted" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestPublisher_PublishError(t *testing.T) {
	publisher := newPublisher(&stubJetStream{publishErr: natsgo.ErrNoResponders}, Config{}, nil)
	err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "e1", EventType: "SagaStarted"})
	if !errors.Is(err, natsgo.ErrNoResponders) {
		t.Fatalf("expected wrapped nats error, got %v", err)
	}
}

func TestPublisher_NilIsNotInitialized(t *testing.T) {
	var publisher *Publisher
	if err := publisher.Publish(context.Background(), domain.OutboxMessage{}); err == nil {
		t.Fatal("expected error for nil publisher")
	}
}

func TestEnsureStream(t *testing.T) {
	existing := &stubJetStream{}
	if err := newPublisher(existing, Config{}, nil).ensureStream(); err != nil {
		t.Fatalf("ensure existing stream: %v", err)
	}
	if existing.added != nil {
		t.Fatal("existing stream must not be recreated")
	}

	missing := &stubJetStream{infoErr: natsgo.ErrStreamNotFound}
	if err := newPublisher(missing, Config{Stream: "SALES", SubjectPrefix: "sales."}, nil).ensureStream(); err != nil {
		t.Fatalf("create stream: %v", err)
	}
	if missing.added == nil || missing.added.Name != "SALES" || missing.added.Subjects[0] != "sales.>" {
		t.Fatalf("unexpected stream config: %+v", missing.added)
	}

	broken := &stubJetStream{infoErr: errors.New("timeout")}
	if err := newPublisher(broken, Config{}, nil).ensureStream(); err == nil {
		t.Fatal("expected stream info error")
	}
}
