// Package publisher ships audit events to Kafka. Kafka is the durable,
// append-only home for the audit trail; downstream consumers materialize it
// for querying.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "consentry/pkg/platform/audit"
)

// Kafka publishes audit events, keyed by record ID so all transitions of one
// record land on one partition in order.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka connects a producer to the given brokers and topic.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Kafka{client: client, topic: topic}, nil
}

// Append implements audit.Store. Publishing is synchronous: the worker
// already decouples the hot path, so waiting for the broker here keeps
// delivery ordering simple.
func (k *Kafka) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(event.RecordID),
		Value: payload,
		Topic: k.topic,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes and releases the producer.
func (k *Kafka) Close() {
	k.client.Close()
}
