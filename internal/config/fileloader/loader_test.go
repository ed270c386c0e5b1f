package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/config"
)

const jsonConfig = `{
	"nifi_api_url": "https://{hostname}:8443/nifi-api",
	"nifi_token_url": "https://{hostname}:8443/nifi-api/access/token",
	"use_token_auth": true,
	"components_to_monitor": ["System", "Provenance"],
	"collection_intervals_seconds": {"global_default": 300, "Provenance": 60},
	"flows_to_monitor": [
		{
			"name": "ingest",
			"process_group_id": "abc-123",
			"interval_seconds": 60,
			"components_to_monitor": ["Processor", "Connection"],
			"monitored_processor_names": ["ListenHTTP"]
		}
	],
	"processor_metrics": ["flowFilesIn", "bytesOut"],
	"provenance": {"max_results": 50}
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileLoader_LoadJSONWithHostname(t *testing.T) {
	path := writeFile(t, "nifi-config.json", jsonConfig)

	cfg, err := NewFileLoader(path, "nifi-01.example.com").Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://nifi-01.example.com:8443/nifi-api", cfg.NiFiAPIURL)
	assert.Equal(t, "https://nifi-01.example.com:8443/nifi-api/access/token", cfg.NiFiTokenURL)
	assert.True(t, cfg.UseTokenAuth)
	assert.Equal(t, []config.Category{config.CategorySystem, config.CategoryProvenance}, cfg.Components)
	require.Len(t, cfg.Flows, 1)
	assert.Equal(t, "abc-123", cfg.Flows[0].ProcessGroupID)
	assert.Equal(t, []string{"ListenHTTP"}, cfg.Flows[0].MonitoredProcessorNames)
	assert.Equal(t, []string{"flowFilesIn", "bytesOut"}, cfg.ProcessorMetrics)

	// Absent keys keep their defaults.
	assert.Equal(t, 10, cfg.TimeoutSeconds)
	assert.Equal(t, 43200, cfg.TokenLifetimeSeconds)
	assert.True(t, cfg.RecursiveCollection)
	assert.Equal(t, 50, cfg.Provenance.MaxResults)
	assert.Equal(t, 5, cfg.Provenance.LookbackMinutes)
}

func TestFileLoader_LoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
nifi_api_url: http://{hostname}:8080/nifi-api
components_to_monitor: [Bulletins]
recursive_collection: false
`)

	cfg, err := NewFileLoader(path, "localhost").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/nifi-api", cfg.NiFiAPIURL)
	assert.False(t, cfg.RecursiveCollection)
}

func TestFileLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr error
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.json") },
		},
		{
			name: "malformed document",
			path: func(t *testing.T) string { return writeFile(t, "bad.json", "{invalid_json") },
		},
		{
			name:    "fails validation",
			path:    func(t *testing.T) string { return writeFile(t, "empty.json", "{}") },
			wantErr: config.ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewFileLoader(tt.path(t), "localhost").Load(context.Background())
			require.Error(t, err)
			assert.Nil(t, cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestFileLoader_RereadsEveryCall(t *testing.T) {
	path := writeFile(t, "c.yaml", "nifi_api_url: http://a/nifi-api\n")
	loader := NewFileLoader(path, "localhost")

	first, err := loader.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("nifi_api_url: http://b/nifi-api\n"), 0o600))
	second, err := loader.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "http://a/nifi-api", first.NiFiAPIURL)
	assert.Equal(t, "http://b/nifi-api", second.NiFiAPIURL)
}
