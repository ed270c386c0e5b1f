package storage

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/schema"
)

// stamp returns copies of records tagged with the batch identifiers and the
// schema version. The input records are not modified.
func stamp(records []Record, b Batch) []Record {
	ts := b.Timestamp.UTC().Format(time.RFC3339Nano)
	out := make([]Record, len(records))
	for i, rec := range records {
		cp := make(Record, len(rec)+4)
		for k, v := range rec {
			cp[k] = v
		}
		cp[FieldCollectionID] = b.CollectionID
		cp[FieldHostname] = b.Hostname
		cp[FieldCollectionTimestamp] = ts
		cp[FieldSchemaVersion] = schema.Version
		out[i] = cp
	}
	return out
}

// encode serializes records as a JSON array and gzip-compresses it.
func encode(records []Record) ([]byte, error) {
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal records: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress records: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish compression: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reverses encode. Consumers and tests use it to read stored objects.
func Decode(data []byte) ([]Record, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer zr.Close()

	var records []Record
	if err := json.NewDecoder(zr).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return records, nil
}
