package storage

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/config/credentials"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/logger"
)

// kafkaConnectTimeout bounds how long startup waits for the Kafka cluster.
const kafkaConnectTimeout = time.Minute

// New builds the Writer selected by the secrets storage key. An unknown
// storage type yields a Writer that drops every batch with a warning.
func New(
	secrets *credentials.Secrets,
	log *logger.Logger,
	tracer trace.Tracer,
	metrics WriterMetrics,
) (Writer, error) {
	var store objectStore
	switch secrets.Storage {
	case "", credentials.StorageLocal:
		store = &localStore{dir: secrets.LocalOutputDirectory}

	case credentials.StorageAWS:
		s, err := newS3Store(S3Config{
			Endpoint:  secrets.S3Endpoint,
			Region:    secrets.S3Region,
			Bucket:    secrets.S3Bucket,
			AccessKey: secrets.AWSAccessKey,
			SecretKey: secrets.AWSSecretKey,
			UseSSL:    secrets.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		store = s

	case credentials.StorageAzure:
		s, err := newAzureStore(secrets.AzureConnectionString, secrets.AzureContainerName)
		if err != nil {
			return nil, err
		}
		store = s

	case credentials.StorageKafka:
		if len(secrets.KafkaBrokers) == 0 {
			return nil, fmt.Errorf("kafka storage requires kafka_brokers")
		}
		producer, err := connectProducerWithRetry(KafkaConfig{
			Brokers:  secrets.KafkaBrokers,
			Topic:    secrets.KafkaTopic,
			ClientID: "nifi-collector",
		}, kafkaConnectTimeout)
		if err != nil {
			return nil, err
		}
		store = newKafkaStore(producer, secrets.KafkaTopic, tracer)

	default:
		return &discardWriter{storageType: secrets.Storage, logger: log}, nil
	}

	return newObjectWriter(store, log, tracer, metrics), nil
}

// discardWriter drops batches for an unrecognized storage type.
type discardWriter struct {
	storageType string
	logger      *logger.Logger
}

func (d *discardWriter) Write(ctx context.Context, b Batch) error {
	d.logger.Warn(ctx, "unknown storage type, dropping metrics",
		"storage", d.storageType,
		"collection_id", b.CollectionID,
	)
	return nil
}

func (d *discardWriter) Close() error { return nil }
