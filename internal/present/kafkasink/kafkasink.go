// Package kafkasink publishes presentations to a Kafka topic, one message
// per row.
package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/RobertDonnan/ufo-notebook/internal/present"
)

// Config selects the brokers and topic.
type Config struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Sink implements present.Sink.
type Sink struct {
	w messageWriter
}

var _ present.Sink = (*Sink)(nil)

// New creates a producer for cfg.Topic.
func New(cfg Config) (*Sink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka sink: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka sink: topic is required")
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	log.Printf("kafka sink: brokers=%v topic=%s", cfg.Brokers, cfg.Topic)
	return &Sink{w: w}, nil
}

// Present publishes every row of p in a single WriteMessages call.
func (s *Sink) Present(ctx context.Context, p present.Presentation) error {
	if p.Table.Len() == 0 {
		return nil
	}
	msgs, err := Messages(p)
	if err != nil {
		return err
	}
	return s.w.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the producer.
func (s *Sink) Close() error {
	return s.w.Close()
}

// Messages serializes the rows of p. Each value is a JSON object keyed by
// column name; the key is the presentation name so rows of one presentation
// land on one partition in order.
func Messages(p present.Presentation) ([]kafkago.Message, error) {
	names := p.Table.Names()
	hint := string(present.Resolve(p))
	at := p.At.UTC().Format(time.RFC3339)

	msgs := make([]kafkago.Message, 0, p.Table.Len())
	for i, r := range p.Table.Rows() {
		obj := make(map[string]any, len(r))
		for j, v := range r {
			obj[names[j]] = present.JSONValue(v)
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("serialize row %d of %s: %w", i, p.Name, err)
		}
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(p.Name),
			Value: data,
			Headers: []kafkago.Header{
				{Key: "hint", Value: []byte(hint)},
				{Key: "run_id", Value: []byte(p.RunID)},
				{Key: "generated_at", Value: []byte(at)},
			},
		})
	}
	return msgs, nil
}
