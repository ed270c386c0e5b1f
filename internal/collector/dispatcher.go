// Package collector runs collection cycles: for a resolved set of categories
// and an optional flow scope it calls the REST API, extracts records and hands
// the non-empty results to storage under one collection id.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/config"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/nifi"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/provenance"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/storage"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/logger"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/timeutil"
)

// API is the REST surface a collection cycle uses.
type API interface {
	provenance.API

	Processors(ctx context.Context, groupID string) ([]nifi.ComponentEntity, error)
	Connections(ctx context.Context, groupID string) ([]nifi.ComponentEntity, error)
	ChildGroups(ctx context.Context, groupID string) ([]nifi.ProcessGroupEntity, error)
	SystemDiagnostics(ctx context.Context) (map[string]any, error)
	ControllerServices(ctx context.Context) ([]nifi.ComponentEntity, error)
	ReportingTasks(ctx context.Context) ([]nifi.ComponentEntity, error)
	Bulletins(ctx context.Context) ([]map[string]any, error)
	ClusterSummary(ctx context.Context) (map[string]any, error)
}

// APIFactory binds an API to a configuration snapshot.
type APIFactory func(cfg *config.Config) API

// Metrics records dispatch outcomes.
type Metrics interface {
	IncCategoryCollected(ctx context.Context, category string)
	IncCategoryFailures(ctx context.Context, category string)
	IncProvenanceTimeouts(ctx context.Context)
	ObserveCycleDuration(ctx context.Context, scope string, d time.Duration)
}

// Job is one collection request: a category set and an optional flow scope.
// A nil Flow means the global scope.
type Job struct {
	Categories []config.Category
	Flow       *config.FlowSpec
}

// Scope names the job for logs and metrics.
func (j Job) Scope() string {
	if j.Flow == nil {
		return "global"
	}
	return "flow"
}

func (j Job) flowName() string {
	if j.Flow == nil {
		return ""
	}
	return j.Flow.Name
}

func (j Job) rootGroup() string {
	if j.Flow == nil {
		return config.RootProcessGroup
	}
	return j.Flow.ProcessGroupID
}

// metricKey prefixes flow-scoped metric types with the flow name.
func (j Job) metricKey(metricType string) string {
	if j.Flow == nil {
		return metricType
	}
	return j.Flow.Name + "_" + metricType
}

// Outcome is the tagged result of one category handler: either Records or
// Err is meaningful.
type Outcome struct {
	Category   config.Category
	MetricType string
	Records    []storage.Record
	Err        error
}

// Failed reports whether the handler failed.
func (o Outcome) Failed() bool { return o.Err != nil }

// Summary describes a completed cycle.
type Summary struct {
	CollectionID string
	Timestamp    time.Time
	Outcomes     []Outcome
	// Stored is false when there was nothing to write.
	Stored bool
}

// Failures returns the failed outcomes.
func (s Summary) Failures() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if o.Failed() {
			out = append(out, o)
		}
	}
	return out
}

// Dispatcher runs collection cycles.
type Dispatcher struct {
	apiFor APIFactory
	sink   storage.Writer
	host   HostSampler

	newID          func() string
	timeProvider   timeutil.Provider
	provenanceOpts []provenance.Option

	metrics    Metrics
	logger     *logger.Logger
	baseLogger *logger.Logger
	tracer     trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithIDGenerator replaces the random collection id generator.
func WithIDGenerator(fn func() string) Option {
	return func(d *Dispatcher) { d.newID = fn }
}

// WithTimeProvider replaces the wall clock.
func WithTimeProvider(tp timeutil.Provider) Option {
	return func(d *Dispatcher) { d.timeProvider = tp }
}

// WithProvenanceOptions passes options to every provenance query.
func WithProvenanceOptions(opts ...provenance.Option) Option {
	return func(d *Dispatcher) { d.provenanceOpts = append(d.provenanceOpts, opts...) }
}

// NewDispatcher creates a Dispatcher writing to sink.
func NewDispatcher(
	apiFor APIFactory,
	sink storage.Writer,
	host HostSampler,
	metrics Metrics,
	logger *logger.Logger,
	tracer trace.Tracer,
	opts ...Option,
) *Dispatcher {
	d := &Dispatcher{
		apiFor:       apiFor,
		sink:         sink,
		host:         host,
		newID:        uuid.NewString,
		timeProvider: timeutil.Default(),
		metrics:      metrics,
		logger:       logger.With("component", "dispatcher"),
		baseLogger:   logger,
		tracer:       tracer,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one cycle for job against the cfg snapshot. Category failures
// are contained in the returned Summary; the error is reserved for storage
// failures. A cycle without any records writes nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg *config.Config, job Job) (Summary, error) {
	if len(job.Categories) == 0 {
		return Summary{}, nil
	}

	start := d.timeProvider.Now()
	summary := Summary{CollectionID: d.newID(), Timestamp: start}
	defer func() {
		d.metrics.ObserveCycleDuration(ctx, job.Scope(), d.timeProvider.Now().Sub(start))
	}()

	ctx, span := d.tracer.Start(ctx, "dispatcher.dispatch",
		trace.WithAttributes(
			attribute.String("collection_id", summary.CollectionID),
			attribute.String("scope", job.Scope()),
			attribute.String("flow", job.flowName()),
			attribute.Int("categories", len(job.Categories)),
		))
	defer span.End()

	logCtx := logger.NewLoggerContext(d.logger.With(
		"collection_id", summary.CollectionID,
		"scope", job.Scope(),
	))
	if job.Flow != nil {
		logCtx.Add("flow", job.Flow.Name)
	}

	c := &cycle{
		d:   d,
		api: d.apiFor(cfg),
		cfg: cfg,
		job: job,
		now: start,
		log: logCtx,
	}

	batch := storage.Batch{
		CollectionID: summary.CollectionID,
		Hostname:     hostnameOf(cfg.NiFiAPIURL),
		Timestamp:    start,
		Metrics:      make(map[string][]storage.Record),
	}

	for _, cat := range job.Categories {
		if job.Flow != nil && cat.EngineWide() {
			logCtx.Debug(ctx, "skipping engine-wide category in flow scope", "category", cat)
			continue
		}

		out := c.run(ctx, cat)
		summary.Outcomes = append(summary.Outcomes, out)

		if out.Failed() {
			d.metrics.IncCategoryFailures(ctx, string(cat))
			logCtx.Error(ctx, "category collection failed", "category", cat, "error", out.Err)
			continue
		}
		d.metrics.IncCategoryCollected(ctx, string(cat))
		if len(out.Records) > 0 {
			batch.Metrics[job.metricKey(out.MetricType)] = out.Records
		}
	}

	if batch.Empty() {
		logCtx.Debug(ctx, "cycle produced no records")
		span.SetStatus(codes.Ok, "nothing to store")
		return summary, nil
	}

	summary.Stored = true
	if err := d.sink.Write(ctx, batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "storage write failed")
		return summary, fmt.Errorf("failed to store collection %s: %w", summary.CollectionID, err)
	}

	logCtx.Info(ctx, "collection stored", "metric_types", len(batch.Metrics))
	span.SetStatus(codes.Ok, "collection stored")
	return summary, nil
}

// hostnameOf returns the host part of the API URL, the identity records are
// stored under.
func hostnameOf(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}

// errUnsupportedCategory is returned for categories without a handler.
var errUnsupportedCategory = errors.New("unsupported category")
