// Package kafka publishes audit events to a Kafka topic. The topic is the
// compliance team's intake; reads go through their tooling, so ListBySubject
// is not supported here.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "stampgate/pkg/platform/audit"
)

// Store implements audit.Store as a fire-and-forget Kafka producer.
type Store struct {
	client *kgo.Client
	topic  string
}

// payload is the wire shape consumed downstream.
type payload struct {
	ID        string            `json:"id"`
	Action    string            `json:"action"`
	Subject   string            `json:"subject"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// New connects a producer to the given brokers.
func New(brokers []string, topic string) (*Store, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Store{client: client, topic: topic}, nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(payload{
		ID:        event.ID.String(),
		Action:    event.Action,
		Subject:   event.Subject,
		Detail:    event.Detail,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Subject),
		Value: value,
	}
	// Keyed by subject so one entity's trail stays ordered per partition.
	s.client.Produce(ctx, record, nil)
	return nil
}

func (s *Store) ListBySubject(context.Context, string) ([]audit.Event, error) {
	return nil, fmt.Errorf("kafka audit store is write-only")
}

// Close flushes outstanding records before releasing the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Flush(ctx); err != nil {
		s.client.Close()
		return err
	}
	s.client.Close()
	return nil
}
