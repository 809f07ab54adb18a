package publisher

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/bilal/regionpulse/internal/config"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink is responsible ONLY for Kafka interactions.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink builds a writer for the configured topic. No connection is
// made until the first delivery.
func NewKafkaSink(cfg config.KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic not configured")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}

	log.Info().Strs("brokers", cfg.Brokers).Str("topic", cfg.Topic).Msg("kafka sink initialized")
	return &KafkaSink{writer: w}, nil
}

// Deliver writes one message per event, keyed by correlation id.
func (s *KafkaSink) Deliver(ctx context.Context, batch []ReportEvent) error {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, ev := range batch {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.CorrelationID),
			Value: data,
		})
	}
	return s.writer.WriteMessages(ctx, msgs...)
}

// Close shuts down the Kafka writer gracefully.
func (s *KafkaSink) Close() error {
	log.Info().Msg("closing kafka sink")
	return s.writer.Close()
}
