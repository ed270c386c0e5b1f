package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/config"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/nifi"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/provenance"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/storage"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/logger"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/timeutil"
)

// mockAPI serves canned responses and counts calls per method.
type mockAPI struct {
	mu    sync.Mutex
	calls map[string][]string

	processors  map[string][]nifi.ComponentEntity
	connections map[string][]nifi.ComponentEntity
	children    map[string][]nifi.ProcessGroupEntity
	errs        map[string]error

	diagnostics map[string]any
	bulletins   []map[string]any

	statusFn func(call int) (*nifi.ProvenanceQuery, error)
}

func newMockAPI() *mockAPI {
	return &mockAPI{
		calls:       map[string][]string{},
		processors:  map[string][]nifi.ComponentEntity{},
		connections: map[string][]nifi.ComponentEntity{},
		children:    map[string][]nifi.ProcessGroupEntity{},
		errs:        map[string]error{},
	}
}

func (m *mockAPI) record(method, arg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[method] = append(m.calls[method], arg)
	if err, ok := m.errs[method+":"+arg]; ok {
		return err
	}
	return m.errs[method]
}

func (m *mockAPI) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls[method])
}

func (m *mockAPI) Processors(_ context.Context, id string) ([]nifi.ComponentEntity, error) {
	if err := m.record("Processors", id); err != nil {
		return nil, err
	}
	return m.processors[id], nil
}

func (m *mockAPI) Connections(_ context.Context, id string) ([]nifi.ComponentEntity, error) {
	if err := m.record("Connections", id); err != nil {
		return nil, err
	}
	return m.connections[id], nil
}

func (m *mockAPI) ChildGroups(_ context.Context, id string) ([]nifi.ProcessGroupEntity, error) {
	if err := m.record("ChildGroups", id); err != nil {
		return nil, err
	}
	return m.children[id], nil
}

func (m *mockAPI) SystemDiagnostics(context.Context) (map[string]any, error) {
	if err := m.record("SystemDiagnostics", ""); err != nil {
		return nil, err
	}
	return m.diagnostics, nil
}

func (m *mockAPI) ControllerServices(context.Context) ([]nifi.ComponentEntity, error) {
	return nil, m.record("ControllerServices", "")
}

func (m *mockAPI) ReportingTasks(context.Context) ([]nifi.ComponentEntity, error) {
	return nil, m.record("ReportingTasks", "")
}

func (m *mockAPI) Bulletins(context.Context) ([]map[string]any, error) {
	if err := m.record("Bulletins", ""); err != nil {
		return nil, err
	}
	return m.bulletins, nil
}

func (m *mockAPI) ClusterSummary(context.Context) (map[string]any, error) {
	if err := m.record("ClusterSummary", ""); err != nil {
		return nil, err
	}
	return map[string]any{"clustered": false}, nil
}

func (m *mockAPI) SubmitProvenance(context.Context, nifi.ProvenanceRequest) (*nifi.ProvenanceQuery, error) {
	if err := m.record("SubmitProvenance", ""); err != nil {
		return nil, err
	}
	return &nifi.ProvenanceQuery{ID: "q"}, nil
}

func (m *mockAPI) ProvenanceStatus(_ context.Context, id string) (*nifi.ProvenanceQuery, error) {
	_ = m.record("ProvenanceStatus", id)
	return m.statusFn(m.count("ProvenanceStatus"))
}

func (m *mockAPI) DeleteProvenance(_ context.Context, id string) error {
	return m.record("DeleteProvenance", id)
}

type memorySink struct {
	batches []storage.Batch
	err     error
}

func (s *memorySink) Write(_ context.Context, b storage.Batch) error {
	s.batches = append(s.batches, b)
	return s.err
}

func (s *memorySink) Close() error { return nil }

type stubHost struct {
	rec storage.Record
	err error
}

func (h stubHost) Sample(context.Context) (storage.Record, error) { return h.rec, h.err }

type countingMetrics struct {
	collected          map[string]int
	failures           map[string]int
	provenanceTimeouts int
	cycles             map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{collected: map[string]int{}, failures: map[string]int{}, cycles: map[string]int{}}
}

func (c *countingMetrics) IncCategoryCollected(_ context.Context, cat string) { c.collected[cat]++ }
func (c *countingMetrics) IncCategoryFailures(_ context.Context, cat string) { c.failures[cat]++ }
func (c *countingMetrics) IncProvenanceTimeouts(context.Context) { c.provenanceTimeouts++ }
func (c *countingMetrics) ObserveCycleDuration(_ context.Context, scope string, _ time.Duration) {
	c.cycles[scope]++
}

var cycleTime = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

type fixture struct {
	api     *mockAPI
	sink    *memorySink
	metrics *countingMetrics
	d       *Dispatcher
}

func newFixture(t *testing.T, host HostSampler) *fixture {
	t.Helper()
	f := &fixture{api: newMockAPI(), sink: &memorySink{}, metrics: newCountingMetrics()}
	ids := 0
	f.d = NewDispatcher(
		func(*config.Config) API { return f.api },
		f.sink,
		host,
		f.metrics,
		logger.Noop(),
		noop.NewTracerProvider().Tracer("test"),
		WithTimeProvider(timeutil.NewMock(cycleTime)),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("cid-%d", ids)
		}),
		WithProvenanceOptions(provenance.WithPollInterval(time.Millisecond)),
	)
	return f
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.NiFiAPIURL = "https://nifi-01.example.com:8443/nifi-api"
	cfg.ProcessorMetrics = []string{"flowFilesIn"}
	cfg.JVMMetrics = []string{"heapUtilization"}
	return &cfg
}

func proc(id, name string) nifi.ComponentEntity {
	return nifi.ComponentEntity{
		ID:        id,
		Component: map[string]any{"id": id, "name": name, "type": "T"},
		Status:    map[string]any{"aggregateSnapshot": map[string]any{"runStatus": "Running", "flowFilesIn": 1.0}},
	}
}

func TestDispatch_GlobalCategoriesShareCollection(t *testing.T) {
	f := newFixture(t, stubHost{rec: storage.Record{"cpu_percent": 5.0}})
	f.api.diagnostics = map[string]any{"aggregateSnapshot": map[string]any{"heapUtilization": "40%"}}
	f.api.bulletins = []map[string]any{{"id": 1.0, "message": "warn"}}
	f.api.errs["ControllerServices"] = errors.New("boom")

	summary, err := f.d.Dispatch(context.Background(), testConfig(), Job{Categories: []config.Category{
		config.CategorySystem,
		config.CategorySystemDiagnostics,
		config.CategoryControllerServices,
		config.CategoryBulletins,
	}})
	require.NoError(t, err)

	assert.Equal(t, "cid-1", summary.CollectionID)
	assert.True(t, summary.Stored)
	require.Len(t, summary.Outcomes, 4)
	failures := summary.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, config.CategoryControllerServices, failures[0].Category)
	assert.Equal(t, 1, f.metrics.failures["ControllerServices"])

	require.Len(t, f.sink.batches, 1)
	batch := f.sink.batches[0]
	assert.Equal(t, "cid-1", batch.CollectionID)
	assert.Equal(t, "nifi-01.example.com", batch.Hostname)
	assert.Equal(t, cycleTime, batch.Timestamp)
	assert.ElementsMatch(t, []string{"system", "nifi_jvm", "nifi_bulletin"}, keys(batch.Metrics))
	assert.Equal(t, "40%", batch.Metrics["nifi_jvm"][0]["heapUtilization"])
}

func keys(m map[string][]storage.Record) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestDispatch_RecursiveWalksHierarchy(t *testing.T) {
	f := newFixture(t, stubHost{})
	f.api.children["root"] = []nifi.ProcessGroupEntity{{ID: "a"}, {ID: "b"}}
	f.api.children["a"] = []nifi.ProcessGroupEntity{{ID: "a1"}}
	f.api.processors["root"] = []nifi.ComponentEntity{proc("p0", "Root")}
	f.api.processors["a1"] = []nifi.ComponentEntity{proc("p1", "Deep")}

	_, err := f.d.Dispatch(context.Background(), testConfig(), Job{Categories: []config.Category{
		config.CategoryProcessor,
		config.CategoryConnection,
	}})
	require.NoError(t, err)

	assert.Equal(t, []string{"root", "a", "b", "a1"}, f.api.calls["Processors"])
	assert.Equal(t, []string{"root", "a", "b", "a1"}, f.api.calls["Connections"])
	// The hierarchy is walked once per cycle.
	assert.Equal(t, 4, f.api.count("ChildGroups"))

	require.Len(t, f.sink.batches, 1)
	recs := f.sink.batches[0].Metrics["nifi_processor"]
	require.Len(t, recs, 2)
	assert.Equal(t, "p1", recs[1]["id"])
}

func TestDispatch_RecursiveFailureFallsBackOnce(t *testing.T) {
	f := newFixture(t, stubHost{})
	f.api.errs["ChildGroups"] = errors.New("403")
	f.api.processors["root"] = []nifi.ComponentEntity{proc("p0", "Root")}

	summary, err := f.d.Dispatch(context.Background(), testConfig(), Job{Categories: []config.Category{config.CategoryProcessor}})
	require.NoError(t, err)

	assert.Empty(t, summary.Failures())
	assert.Equal(t, []string{"root"}, f.api.calls["Processors"])
	require.Len(t, f.sink.batches, 1)
	assert.Len(t, f.sink.batches[0].Metrics["nifi_processor"], 1)
}

func TestDispatch_BothStrategiesFailIsOneCategoryFailure(t *testing.T) {
	f := newFixture(t, stubHost{})
	f.api.errs["ChildGroups"] = errors.New("403")
	f.api.errs["Processors"] = errors.New("500")
	f.api.bulletins = []map[string]any{{"id": 1.0}}

	summary, err := f.d.Dispatch(context.Background(), testConfig(), Job{Categories: []config.Category{
		config.CategoryProcessor,
		config.CategoryBulletins,
	}})
	require.NoError(t, err)

	assert.Equal(t, 1, f.api.count("Processors"))
	failures := summary.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, config.CategoryProcessor, failures[0].Category)
	assert.Equal(t, 1, f.metrics.failures["Processor"])

	require.Len(t, f.sink.batches, 1)
	assert.Contains(t, f.sink.batches[0].Metrics, "nifi_bulletin")
	assert.NotContains(t, f.sink.batches[0].Metrics, "nifi_processor")
}

func TestDispatch_NonRecursiveListsDirectChildrenOnly(t *testing.T) {
	f := newFixture(t, stubHost{})
	cfg := testConfig()
	cfg.RecursiveCollection = false

	_, err := f.d.Dispatch(context.Background(), cfg, Job{Categories: []config.Category{config.CategoryProcessor}})
	require.NoError(t, err)
	assert.Equal(t, 0, f.api.count("ChildGroups"))
	assert.Equal(t, []string{"root"}, f.api.calls["Processors"])
}

func TestDispatch_FlowScope(t *testing.T) {
	f := newFixture(t, stubHost{rec: storage.Record{"cpu_percent": 1.0}})
	cfg := testConfig()
	cfg.RecursiveCollection = false
	flow := &config.FlowSpec{
		Name:                    "ingest",
		ProcessGroupID:          "pg-7",
		IntervalSeconds:         60,
		MonitoredProcessorNames: []string{"Keep"},
	}
	f.api.processors["pg-7"] = []nifi.ComponentEntity{proc("p1", "Keep"), proc("p2", "Drop")}

	_, err := f.d.Dispatch(context.Background(), cfg, Job{
		Categories: []config.Category{config.CategoryProcessor, config.CategorySystem, config.CategoryBulletins},
		Flow:       flow,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, f.api.count("Bulletins"), "engine-wide categories are not collected for flows")
	require.Len(t, f.sink.batches, 1)
	batch := f.sink.batches[0]
	assert.Equal(t, []string{"ingest_nifi_processor"}, keys(batch.Metrics))

	recs := batch.Metrics["ingest_nifi_processor"]
	require.Len(t, recs, 1)
	assert.Equal(t, "Keep", recs[0]["name"])
	assert.Equal(t, "ingest", recs[0]["flow_name"])
	assert.Equal(t, 1.0, recs[0]["flowFilesIn"])
}

func TestDispatch_EmptyCycleWritesNothing(t *testing.T) {
	f := newFixture(t, stubHost{})
	f.api.bulletins = nil

	summary, err := f.d.Dispatch(context.Background(), testConfig(), Job{Categories: []config.Category{
		config.CategoryBulletins,
		config.CategoryControllerServices,
		config.CategoryReportingTasks,
	}})
	require.NoError(t, err)

	assert.False(t, summary.Stored)
	assert.Empty(t, summary.Failures())
	assert.Empty(t, f.sink.batches)
}

func TestDispatch_NoCategoriesIsNoop(t *testing.T) {
	f := newFixture(t, stubHost{})
	summary, err := f.d.Dispatch(context.Background(), testConfig(), Job{})
	require.NoError(t, err)
	assert.Empty(t, summary.CollectionID)
	assert.Empty(t, f.sink.batches)
}

func TestDispatch_StorageErrorIsReturned(t *testing.T) {
	f := newFixture(t, stubHost{rec: storage.Record{"cpu_percent": 1.0}})
	f.sink.err = errors.New("bucket missing")

	summary, err := f.d.Dispatch(context.Background(), testConfig(), Job{Categories: []config.Category{config.CategorySystem}})
	require.Error(t, err)
	assert.True(t, summary.Stored)
}

func TestDispatch_ProvenanceEvents(t *testing.T) {
	f := newFixture(t, stubHost{})
	payload := json.RawMessage(`{"provenance":{"id":"q","finished":true,"results":{"provenanceEvents":[
		{"eventId":12,"eventType":"DROP","eventTime":"02/03/2025 04:00:00.500 UTC","componentId":"c1","flowFileUuid":"ff","fileSizeBytes":10,"parentUuids":[],"childUuids":["x"]}
	]}}}`)
	f.api.statusFn = func(call int) (*nifi.ProvenanceQuery, error) {
		if call < 3 {
			return &nifi.ProvenanceQuery{ID: "q"}, nil
		}
		return &nifi.ProvenanceQuery{ID: "q", Finished: true, Payload: payload}, nil
	}

	summary, err := f.d.Dispatch(context.Background(), testConfig(), Job{Categories: []config.Category{config.CategoryProvenance}})
	require.NoError(t, err)
	assert.Empty(t, summary.Failures())
	assert.Equal(t, 3, f.api.count("ProvenanceStatus"))
	assert.Equal(t, 1, f.api.count("DeleteProvenance"))

	require.Len(t, f.sink.batches, 1)
	recs := f.sink.batches[0].Metrics["nifi_provenance"]
	require.Len(t, recs, 1)
	assert.Equal(t, "DROP", recs[0]["event_type"])
	assert.Equal(t, "ff", recs[0]["flowfile_uuid"])
	assert.Equal(t, time.Date(2025, 2, 3, 4, 0, 0, 500000000, time.UTC).UnixMilli(), recs[0]["event_time"])
}

func TestDispatch_ProvenanceTimeoutIsCategoryFailure(t *testing.T) {
	f := newFixture(t, stubHost{})
	f.api.statusFn = func(int) (*nifi.ProvenanceQuery, error) {
		return &nifi.ProvenanceQuery{ID: "q", PercentCompleted: 10}, nil
	}

	summary, err := f.d.Dispatch(context.Background(), testConfig(), Job{Categories: []config.Category{config.CategoryProvenance}})
	require.NoError(t, err)

	failures := summary.Failures()
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0].Err, provenance.ErrQueryTimeout)
	assert.Equal(t, 1, f.metrics.provenanceTimeouts)
	assert.Equal(t, provenance.DefaultMaxAttempts, f.api.count("ProvenanceStatus"))
	assert.Equal(t, 1, f.api.count("DeleteProvenance"))
	assert.Empty(t, f.sink.batches)
}

func TestCycle_ProvenanceRequestWindow(t *testing.T) {
	cfg := testConfig()
	cfg.Provenance = config.ProvenanceSettings{LookbackMinutes: 5, MaxResults: 200, EventType: "RECEIVE"}
	c := &cycle{cfg: cfg, now: cycleTime}

	req := c.provenanceRequest()
	assert.Equal(t, 200, req.MaxResults)
	assert.Equal(t, "RECEIVE", req.EventType)
	require.NotNil(t, req.StartDate)
	require.NotNil(t, req.EndDate)
	assert.Equal(t, cycleTime.Add(-5*time.Minute), *req.StartDate)
	assert.Equal(t, cycleTime, *req.EndDate)

	cfg.Provenance.LookbackMinutes = 0
	req = c.provenanceRequest()
	assert.Nil(t, req.StartDate)
	assert.Nil(t, req.EndDate)
}

func TestHostnameOf(t *testing.T) {
	assert.Equal(t, "nifi.local", hostnameOf("https://nifi.local:8443/nifi-api"))
	assert.Equal(t, "unknown", hostnameOf("::not a url"))
}
