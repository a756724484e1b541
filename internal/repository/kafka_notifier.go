package repository

import (
	"context"

	"orderflow/internal/domain/repository"
	pkgkafka "orderflow/pkg/kafka"
)

// KafkaNotifier implements repository.Notifier on a Kafka producer. All
// notifications land on one configured topic; the per-candle routing key
// ({exchange}.{symbol}.{interval}.{openTimeMs}) becomes the message key, so
// consumers keep per-series ordering and can filter by prefix.
type KafkaNotifier struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaNotifier creates a Kafka-backed notifier.
func NewKafkaNotifier(producer *pkgkafka.Producer, topic string) repository.Notifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Publish(ctx context.Context, key string, payload interface{}) error {
	return n.producer.Publish(ctx, n.topic, []byte(key), payload)
}

func (n *KafkaNotifier) Close() error {
	if n.producer != nil {
		return n.producer.Close()
	}
	return nil
}
