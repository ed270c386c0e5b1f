package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/logger"
)

// Object is one encoded metric type ready to be stored.
type Object struct {
	Key          string
	MetricType   string
	CollectionID string
	Data         []byte
}

// objectStore puts single objects into a backend.
type objectStore interface {
	put(ctx context.Context, obj Object) error
	name() string
	close() error
}

// objectWriter implements Writer on top of an objectStore. It owns stamping,
// encoding and per-metric-type failure isolation so backends only move bytes.
type objectWriter struct {
	store objectStore

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics WriterMetrics
}

func newObjectWriter(store objectStore, log *logger.Logger, tracer trace.Tracer, metrics WriterMetrics) *objectWriter {
	return &objectWriter{
		store:   store,
		logger:  log.With("component", "storage_writer", "backend", store.name()),
		tracer:  tracer,
		metrics: metrics,
	}
}

func (w *objectWriter) Write(ctx context.Context, b Batch) error {
	ctx, span := w.tracer.Start(ctx, "storage_writer.write",
		trace.WithAttributes(
			attribute.String("backend", w.store.name()),
			attribute.String("collection_id", b.CollectionID),
		))
	defer span.End()

	metricTypes := make([]string, 0, len(b.Metrics))
	for mt := range b.Metrics {
		metricTypes = append(metricTypes, mt)
	}
	sort.Strings(metricTypes)

	var errs []error
	for _, mt := range metricTypes {
		records := b.Metrics[mt]
		if len(records) == 0 {
			w.logger.Debug(ctx, "skipping empty metric collection", "metric_type", mt)
			continue
		}

		if err := w.writeOne(ctx, mt, records, b); err != nil {
			w.metrics.IncWriteErrors(ctx, w.store.name(), mt)
			w.logger.Error(ctx, "failed to write metrics",
				"metric_type", mt,
				"collection_id", b.CollectionID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", mt, err))
			continue
		}
		w.metrics.IncObjectsWritten(ctx, w.store.name(), mt)
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "some metric types failed to write")
		return err
	}
	span.SetStatus(codes.Ok, "batch written")
	return nil
}

func (w *objectWriter) writeOne(ctx context.Context, metricType string, records []Record, b Batch) error {
	data, err := encode(stamp(records, b))
	if err != nil {
		return err
	}

	obj := Object{
		Key:          ObjectKey(metricType, b.Hostname, b.CollectionID, b.Timestamp),
		MetricType:   metricType,
		CollectionID: b.CollectionID,
		Data:         data,
	}
	if err := w.store.put(ctx, obj); err != nil {
		return err
	}

	w.metrics.ObserveObjectSize(ctx, w.store.name(), len(data))
	w.logger.Info(ctx, "wrote metrics",
		"metric_type", metricType,
		"key", obj.Key,
		"records", len(records),
	)
	return nil
}

func (w *objectWriter) Close() error { return w.store.close() }
