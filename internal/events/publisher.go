// Package events publishes case transition events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ehs-platform/services/noncompliance/internal/model"
)

// TransitionEvent is the record emitted for every committed transition.
type TransitionEvent struct {
	CaseID     string           `json:"case_id"`
	CaseNumber string           `json:"case_number"`
	Action     string           `json:"action"`
	FromStatus model.CaseStatus `json:"from_status"`
	ToStatus   model.CaseStatus `json:"to_status"`
	Severity   model.Severity   `json:"severity"`
	Actor      string           `json:"actor"`
	Version    int64            `json:"version"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Publisher emits transition events. Implementations must never block the
// lifecycle commit path.
type Publisher interface {
	Publish(ctx context.Context, event *TransitionEvent)
	Close()
}

// NopPublisher discards events; used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event *TransitionEvent) {}
func (NopPublisher) Close()                                              {}

// KafkaConfig holds Kafka publisher configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher publishes transition events to a Kafka topic.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher creates a Kafka-backed publisher.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerLinger(10 * time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return &KafkaPublisher{
		client: client,
		topic:  cfg.Topic,
		logger: logger.With("component", "event-publisher"),
	}, nil
}

// Publish produces the event asynchronously. Keyed by case id so per-case
// ordering is preserved on the topic. Delivery failures are logged, never
// surfaced: transition commits do not depend on the event stream.
func (p *KafkaPublisher) Publish(ctx context.Context, event *TransitionEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal transition event", "case_id", event.CaseID, "error", err)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.CaseID),
		Value: data,
	}

	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("failed to publish transition event",
				"case_id", event.CaseID,
				"action", event.Action,
				"error", err,
			)
		}
	})
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Error("failed to flush event publisher", "error", err)
	}
	p.client.Close()
}
