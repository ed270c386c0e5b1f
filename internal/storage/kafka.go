package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// KafkaConfig configures the Kafka backend. Each object becomes one message
// keyed by its object key.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

type kafkaStore struct {
	producer   sarama.SyncProducer
	topic      string
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

func newKafkaStore(producer sarama.SyncProducer, topic string, tracer trace.Tracer) *kafkaStore {
	return &kafkaStore{
		producer:   producer,
		topic:      topic,
		tracer:     tracer,
		propagator: otel.GetTextMapPropagator(),
	}
}

// connectProducerWithRetry creates a sync producer, retrying with exponential
// backoff while the cluster is unreachable.
func connectProducerWithRetry(cfg KafkaConfig, maxElapsed time.Duration) (sarama.SyncProducer, error) {
	producerConfig := sarama.NewConfig()
	producerConfig.ClientID = cfg.ClientID
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Partitioner = sarama.NewHashPartitioner
	producerConfig.Producer.MaxMessageBytes = 8 << 20

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = maxElapsed
	expBackoff.InitialInterval = time.Second

	var producer sarama.SyncProducer
	operation := func() error {
		var err error
		producer, err = sarama.NewSyncProducer(cfg.Brokers, producerConfig)
		return err
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}
	return producer, nil
}

func (s *kafkaStore) name() string { return "kafka" }

func (s *kafkaStore) put(ctx context.Context, obj Object) error {
	ctx, span := startProducerSpan(ctx, s.tracer, s.topic)
	defer span.End()

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(obj.Key),
		Value: sarama.ByteEncoder(obj.Data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("content-encoding"), Value: []byte("gzip")},
			{Key: []byte("metric_type"), Value: []byte(obj.MetricType)},
			{Key: []byte("collection_id"), Value: []byte(obj.CollectionID)},
		},
	}
	injectTraceContext(ctx, s.propagator, msg)

	partition, offset, err := s.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return fmt.Errorf("failed to publish %s to %s: %w", obj.Key, s.topic, err)
	}
	span.SetAttributes(
		semconv.MessagingKafkaDestinationPartition(int(partition)),
		semconv.MessagingKafkaMessageOffset(int(offset)),
	)
	return nil
}

func (s *kafkaStore) close() error { return s.producer.Close() }
