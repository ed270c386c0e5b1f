// Package storage persists collected metric records. Every backend receives
// the same batch contract: records grouped by metric type plus the collection
// identifiers to stamp on each of them.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Record is one flat metric record.
type Record map[string]any

// Stamped record fields.
const (
	FieldCollectionID        = "collection_id"
	FieldHostname            = "hostname"
	FieldCollectionTimestamp = "collection_timestamp"
	FieldSchemaVersion       = "schema_version"
)

// Batch is the output of one collection cycle.
type Batch struct {
	CollectionID string
	Hostname     string
	Timestamp    time.Time
	// Metrics maps a metric type key to its records. Empty lists are skipped.
	Metrics map[string][]Record
}

// Empty reports whether the batch holds no records at all.
func (b Batch) Empty() bool {
	for _, recs := range b.Metrics {
		if len(recs) > 0 {
			return false
		}
	}
	return true
}

// Writer persists batches.
type Writer interface {
	// Write stores every non-empty metric type in b. A failure for one metric
	// type does not prevent the others from being written; the returned error
	// joins all failures.
	Write(ctx context.Context, b Batch) error
	Close() error
}

// WriterMetrics records storage outcomes.
type WriterMetrics interface {
	IncObjectsWritten(ctx context.Context, backend, metricType string)
	IncWriteErrors(ctx context.Context, backend, metricType string)
	ObserveObjectSize(ctx context.Context, backend string, bytes int)
}

// ObjectKey returns the location of one metric type's records for a cycle:
// {metric_type}-metrics/{YYYY-MM-DD}/{hostname}_{metric_type}_{collection_id}.json.gz.
func ObjectKey(metricType, hostname, collectionID string, ts time.Time) string {
	return fmt.Sprintf("%s-metrics/%s/%s_%s_%s.json.gz",
		metricType, ts.UTC().Format(time.DateOnly), hostname, metricType, collectionID)
}
