package enrich

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"hivetrap/internal/config"
)

// StartKafkaSource consumes the capture bus topic and feeds raw lines into
// the pipeline.
func StartKafkaSource(ctx context.Context, cfg config.KafkaSourceConfig, out chan<- string, logger *slog.Logger) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	if logger != nil {
		logger.Info("kafka enrichment source enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	}
	go func() {
		defer reader.Close()
		defer close(out)
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			select {
			case out <- string(m.Value):
			case <-ctx.Done():
				return
			}
		}
	}()
}

type kafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink publishes enriched lines to a downstream topic.
func NewKafkaSink(cfg config.KafkaSourceConfig) Sink {
	return &kafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (k *kafkaSink) Write(line string) error {
	return k.writer.WriteMessages(context.Background(), kafka.Message{Value: []byte(line)})
}

func (k *kafkaSink) Close() error {
	return k.writer.Close()
}
