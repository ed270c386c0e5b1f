package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal(line, &m))
		out = append(out, m)
	}
	return out
}

func TestLogger_WritesServiceAndMetadata(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithMetadata(&buf, LevelInfo, "collector", nil, Events{}, map[string]string{"hostname": "nifi-1"})

	log.Info(context.Background(), "startup", "status", "ok")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "startup", lines[0]["msg"])
	assert.Equal(t, "collector", lines[0]["service"])
	assert.Equal(t, "nifi-1", lines[0]["hostname"])
	assert.Equal(t, "ok", lines[0]["status"])
	assert.Contains(t, lines[0]["file"], "logger_test.go")
}

func TestLogger_RespectsMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelWarn, "collector", nil)

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestLogger_ErrorEventFires(t *testing.T) {
	var buf bytes.Buffer
	var got Record
	events := Events{Error: func(ctx context.Context, r Record) { got = r }}
	log := NewWithEvents(&buf, LevelDebug, "collector", nil, events)

	log.Error(context.Background(), "boom", "category", "Processor")

	assert.Equal(t, "boom", got.Message)
	assert.Equal(t, LevelError, got.Level)
	assert.Equal(t, "Processor", got.Attributes["category"])
}

func TestLoggerContext_AddAccumulates(t *testing.T) {
	var buf bytes.Buffer
	lc := NewLoggerContext(New(&buf, LevelDebug, "collector", nil).With("component", "dispatcher"))
	lc.Add("collection_id", "abc")

	lc.Info(context.Background(), "cycle finished")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "dispatcher", lines[0]["component"])
	assert.Equal(t, "abc", lines[0]["collection_id"])
}

func TestNoop_DiscardsEverything(t *testing.T) {
	log := Noop().With("k", "v")
	assert.NotPanics(t, func() {
		log.Error(context.Background(), "nothing")
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "WARNING", want: LevelWarn},
		{in: "warn", want: LevelWarn},
		{in: "Error", want: LevelError},
		{in: "verbose", want: LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
