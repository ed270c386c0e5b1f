package collector

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/nifi"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/storage"
)

// Extraction turns API documents into flat records. Missing keys become nil
// values rather than errors, so a successfully fetched category always yields
// complete records.

func object(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

func get(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

func extractProcessors(ents []nifi.ComponentEntity, keys []string, flowName string, nameFilter []string) []storage.Record {
	allowed := make(map[string]struct{}, len(nameFilter))
	for _, n := range nameFilter {
		allowed[n] = struct{}{}
	}

	records := make([]storage.Record, 0, len(ents))
	for _, ent := range ents {
		name, _ := ent.Component["name"].(string)
		if len(allowed) > 0 {
			if _, ok := allowed[name]; !ok {
				continue
			}
		}

		snapshot := object(ent.Status, "aggregateSnapshot")
		rec := storage.Record{
			"id":        get(ent.Component, "id"),
			"name":      get(ent.Component, "name"),
			"type":      get(ent.Component, "type"),
			"runStatus": get(snapshot, "runStatus"),
		}
		if flowName != "" {
			rec["flow_name"] = flowName
		}
		for _, k := range keys {
			rec[k] = get(snapshot, k)
		}
		records = append(records, rec)
	}
	return records
}

func extractConnections(ents []nifi.ComponentEntity, keys []string, flowName string) []storage.Record {
	records := make([]storage.Record, 0, len(ents))
	for _, ent := range ents {
		snapshot := object(ent.Status, "aggregateSnapshot")
		rec := storage.Record{
			"id":   get(ent.Component, "id"),
			"name": get(ent.Component, "name"),
		}
		if flowName != "" {
			rec["flow_name"] = flowName
		}
		for _, k := range keys {
			rec[k] = get(snapshot, k)
		}
		records = append(records, rec)
	}
	return records
}

// extractJVM prefers the aggregate snapshot and falls back to the first node
// snapshot. Only keys present in the snapshot are copied.
func extractJVM(diag map[string]any, keys []string) []storage.Record {
	snapshot := object(diag, "aggregateSnapshot")
	if snapshot == nil {
		if nodes, ok := diag["nodeSnapshots"].([]any); ok && len(nodes) > 0 {
			if first, ok := nodes[0].(map[string]any); ok {
				snapshot = object(first, "snapshot")
			}
		}
	}
	if snapshot == nil {
		return nil
	}

	rec := storage.Record{"id": "jvm_metrics"}
	for _, k := range keys {
		if v, ok := snapshot[k]; ok && v != nil {
			rec[k] = v
		}
	}
	return []storage.Record{rec}
}

// extractComponentStatus handles controller services and reporting tasks,
// whose metrics live directly under status.
func extractComponentStatus(ents []nifi.ComponentEntity, keys []string) []storage.Record {
	records := make([]storage.Record, 0, len(ents))
	for _, ent := range ents {
		rec := storage.Record{
			"id":   get(ent.Component, "id"),
			"name": get(ent.Component, "name"),
			"type": get(ent.Component, "type"),
		}
		for _, k := range keys {
			rec[k] = get(ent.Status, k)
		}
		records = append(records, rec)
	}
	return records
}

func extractBulletins(bulletins []map[string]any) []storage.Record {
	records := make([]storage.Record, 0, len(bulletins))
	for _, b := range bulletins {
		rec := make(storage.Record, len(b))
		for k, v := range b {
			rec[k] = v
		}
		records = append(records, rec)
	}
	return records
}

var clusterNodeFields = []string{
	"nodeId", "address", "apiPort", "status", "roles", "activeThreadCount",
	"queued", "flowFilesReceived", "bytesReceived", "flowFilesSent", "bytesSent",
	"flowFilesTransferred", "bytesTransferred", "bytesRead", "bytesWritten",
	"diskUsage", "heapUsage", "processorLoadAverage", "uptime",
}

// extractCluster emits one summary record plus one record per reported node.
func extractCluster(summary map[string]any) []storage.Record {
	records := []storage.Record{{
		"id":                    "cluster_summary",
		"clustered":             get(summary, "clustered"),
		"connectedToCluster":    get(summary, "connectedToCluster"),
		"totalNodeCount":        get(summary, "totalNodeCount"),
		"connectedNodeCount":    get(summary, "connectedNodeCount"),
		"disconnectedNodeCount": get(summary, "disconnectedNodeCount"),
		"heartbeatCount":        get(summary, "heartbeatCount"),
	}}

	nodes, _ := get(summary, "nodes").([]any)
	for _, n := range nodes {
		node, ok := n.(map[string]any)
		if !ok {
			continue
		}
		rec := storage.Record{"id": fmt.Sprintf("cluster_node_%v", node["nodeId"])}
		for _, f := range clusterNodeFields {
			rec[f] = node[f]
		}
		records = append(records, rec)
	}
	return records
}

// provenanceTimeLayout is the event time format the provenance endpoint
// returns.
const provenanceTimeLayout = "01/02/2006 15:04:05.000 MST"

type provenancePayload struct {
	Provenance struct {
		Results struct {
			ProvenanceEvents []map[string]any `json:"provenanceEvents"`
		} `json:"results"`
	} `json:"provenance"`
}

var provenanceFields = []struct{ from, to string }{
	{"eventId", "event_id"},
	{"eventType", "event_type"},
	{"componentId", "component_id"},
	{"componentName", "component_name"},
	{"componentType", "component_type"},
	{"groupId", "group_id"},
	{"flowFileUuid", "flowfile_uuid"},
	{"fileSizeBytes", "file_size_bytes"},
	{"details", "details"},
	{"transitUri", "transit_uri"},
	{"parentUuids", "parent_uuids"},
	{"childUuids", "child_uuids"},
	{"eventDuration", "event_duration"},
	{"lineageDuration", "lineage_duration"},
}

// extractProvenance normalizes the events of a finished query. event_time is
// converted to epoch milliseconds, or nil when it cannot be parsed.
func extractProvenance(payload []byte) ([]storage.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var p provenancePayload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode provenance results: %w", err)
	}

	events := p.Provenance.Results.ProvenanceEvents
	records := make([]storage.Record, 0, len(events))
	for _, ev := range events {
		rec := make(storage.Record, len(provenanceFields)+1)
		for _, f := range provenanceFields {
			rec[f.to] = ev[f.from]
		}
		rec["event_time"] = eventTimeMillis(ev["eventTime"])
		records = append(records, rec)
	}
	return records, nil
}

func eventTimeMillis(v any) any {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(provenanceTimeLayout, s)
	if err != nil {
		return nil
	}
	return t.UnixMilli()
}
