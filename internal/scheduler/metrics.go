package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/collector"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/storage"
)

// CollectorMetrics defines every metric the collector process records.
type CollectorMetrics interface {
	// Scheduler metrics.
	Metrics

	// Dispatcher metrics.
	collector.Metrics

	// Storage metrics.
	storage.WriterMetrics
}

// collectorMetrics implements CollectorMetrics.
type collectorMetrics struct {
	// Config metrics
	configReloads      metric.Int64Counter
	configReloadErrors metric.Int64Counter

	// Token metrics
	tokenRenewals      metric.Int64Counter
	tokenRenewalErrors metric.Int64Counter

	// Cycle metrics
	cycles        metric.Int64Counter
	storageErrors metric.Int64Counter
	cycleDuration metric.Float64Histogram

	// Category metrics
	categoriesCollected metric.Int64Counter
	categoryFailures    metric.Int64Counter
	provenanceTimeouts  metric.Int64Counter

	// Storage metrics
	objectsWritten metric.Int64Counter
	writeErrors    metric.Int64Counter
	objectSize     metric.Int64Histogram
}

const namespace = "nifi_collector"

// NewCollectorMetrics creates the collector instruments on mp.
func NewCollectorMetrics(mp metric.MeterProvider) (*collectorMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(collectorMetrics)
	var err error

	if m.configReloads, err = meter.Int64Counter(
		"config_reloads_total",
		metric.WithDescription("Total number of successful configuration reloads"),
	); err != nil {
		return nil, err
	}

	if m.configReloadErrors, err = meter.Int64Counter(
		"config_reload_errors_total",
		metric.WithDescription("Total number of failed configuration reloads"),
	); err != nil {
		return nil, err
	}

	if m.tokenRenewals, err = meter.Int64Counter(
		"token_renewals_total",
		metric.WithDescription("Total number of access token renewals"),
	); err != nil {
		return nil, err
	}

	if m.tokenRenewalErrors, err = meter.Int64Counter(
		"token_renewal_errors_total",
		metric.WithDescription("Total number of failed access token renewals"),
	); err != nil {
		return nil, err
	}

	if m.cycles, err = meter.Int64Counter(
		"collection_cycles_total",
		metric.WithDescription("Total number of collection cycles dispatched"),
	); err != nil {
		return nil, err
	}

	if m.storageErrors, err = meter.Int64Counter(
		"collection_storage_errors_total",
		metric.WithDescription("Total number of collection cycles whose records could not be stored"),
	); err != nil {
		return nil, err
	}

	if m.cycleDuration, err = meter.Float64Histogram(
		"collection_cycle_duration_seconds",
		metric.WithDescription("Time taken to run a collection cycle"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.categoriesCollected, err = meter.Int64Counter(
		"categories_collected_total",
		metric.WithDescription("Total number of categories collected successfully"),
	); err != nil {
		return nil, err
	}

	if m.categoryFailures, err = meter.Int64Counter(
		"category_failures_total",
		metric.WithDescription("Total number of failed category collections"),
	); err != nil {
		return nil, err
	}

	if m.provenanceTimeouts, err = meter.Int64Counter(
		"provenance_query_timeouts_total",
		metric.WithDescription("Total number of provenance queries that did not finish in time"),
	); err != nil {
		return nil, err
	}

	if m.objectsWritten, err = meter.Int64Counter(
		"storage_objects_written_total",
		metric.WithDescription("Total number of metric objects written to storage"),
	); err != nil {
		return nil, err
	}

	if m.writeErrors, err = meter.Int64Counter(
		"storage_write_errors_total",
		metric.WithDescription("Total number of failed metric object writes"),
	); err != nil {
		return nil, err
	}

	if m.objectSize, err = meter.Int64Histogram(
		"storage_object_size_bytes",
		metric.WithDescription("Compressed size of written metric objects"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *collectorMetrics) IncConfigReloads(ctx context.Context) {
	m.configReloads.Add(ctx, 1)
}

func (m *collectorMetrics) IncConfigReloadErrors(ctx context.Context) {
	m.configReloadErrors.Add(ctx, 1)
}

func (m *collectorMetrics) IncTokenRenewals(ctx context.Context) {
	m.tokenRenewals.Add(ctx, 1)
}

func (m *collectorMetrics) IncTokenRenewalErrors(ctx context.Context) {
	m.tokenRenewalErrors.Add(ctx, 1)
}

func (m *collectorMetrics) IncCycles(ctx context.Context, scope string) {
	m.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
}

func (m *collectorMetrics) IncStorageErrors(ctx context.Context, scope string) {
	m.storageErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
}

func (m *collectorMetrics) ObserveCycleDuration(ctx context.Context, scope string, d time.Duration) {
	m.cycleDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("scope", scope)))
}

func (m *collectorMetrics) IncCategoryCollected(ctx context.Context, category string) {
	m.categoriesCollected.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

func (m *collectorMetrics) IncCategoryFailures(ctx context.Context, category string) {
	m.categoryFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category)))
}

func (m *collectorMetrics) IncProvenanceTimeouts(ctx context.Context) {
	m.provenanceTimeouts.Add(ctx, 1)
}

func (m *collectorMetrics) IncObjectsWritten(ctx context.Context, backend, metricType string) {
	m.objectsWritten.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("metric_type", metricType),
	))
}

func (m *collectorMetrics) IncWriteErrors(ctx context.Context, backend, metricType string) {
	m.writeErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("metric_type", metricType),
	))
}

func (m *collectorMetrics) ObserveObjectSize(ctx context.Context, backend string, bytes int) {
	m.objectSize.Record(ctx, int64(bytes), metric.WithAttributes(attribute.String("backend", backend)))
}
