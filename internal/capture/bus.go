package capture

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"hivetrap/internal/model"
)

// Bus publishes captured events to a kafka topic for live consumers such as
// the enrichment pipeline. Publishing is best effort; the store remains the
// durable record.
type Bus struct {
	writer *kafka.Writer
}

func NewBus(brokers []string, topic string) *Bus {
	return &Bus{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 100 * time.Millisecond,
			Async:        true,
		},
	}
}

func (b *Bus) Publish(ctx context.Context, ev model.AttackEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.IP),
		Value: data,
	})
}

func (b *Bus) Close() error {
	return b.writer.Close()
}
