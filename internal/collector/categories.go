package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/config"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/nifi"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/provenance"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/storage"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/logger"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/schema"
)

// MetricType returns the storage metric type key of a category.
func MetricType(cat config.Category) string {
	switch cat {
	case config.CategoryProcessor:
		return schema.MetricProcessor
	case config.CategoryConnection:
		return schema.MetricConnection
	case config.CategorySystemDiagnostics:
		return schema.MetricJVM
	case config.CategoryControllerServices:
		return schema.MetricControllerService
	case config.CategoryReportingTasks:
		return schema.MetricReportingTask
	case config.CategoryBulletins:
		return schema.MetricBulletin
	case config.CategoryProvenance:
		return schema.MetricProvenance
	case config.CategorySystem:
		return schema.MetricSystem
	case config.CategoryClusterSummary:
		return schema.MetricCluster
	default:
		return ""
	}
}

// cycle holds the state of a single Dispatch call.
type cycle struct {
	d   *Dispatcher
	api API
	cfg *config.Config
	job Job
	now time.Time
	log *logger.LoggerContext

	// groups caches the process group hierarchy once it has been walked.
	groups []string
}

// run invokes the handler for cat and tags its result.
func (c *cycle) run(ctx context.Context, cat config.Category) Outcome {
	ctx, span := c.d.tracer.Start(ctx, "dispatcher.collect_category",
		trace.WithAttributes(attribute.String("category", string(cat))))
	defer span.End()

	out := Outcome{Category: cat, MetricType: MetricType(cat)}

	var err error
	switch cat {
	case config.CategoryProcessor:
		out.Records, err = c.processors(ctx)
	case config.CategoryConnection:
		out.Records, err = c.connections(ctx)
	case config.CategorySystemDiagnostics:
		out.Records, err = c.jvm(ctx)
	case config.CategoryControllerServices:
		out.Records, err = c.controllerServices(ctx)
	case config.CategoryReportingTasks:
		out.Records, err = c.reportingTasks(ctx)
	case config.CategoryBulletins:
		out.Records, err = c.bulletins(ctx)
	case config.CategoryProvenance:
		out.Records, err = c.provenance(ctx)
	case config.CategorySystem:
		out.Records, err = c.system(ctx)
	case config.CategoryClusterSummary:
		out.Records, err = c.cluster(ctx)
	default:
		err = fmt.Errorf("%w: %s", errUnsupportedCategory, cat)
	}

	if err != nil {
		out.Records = nil
		out.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "category failed")
		return out
	}

	span.SetAttributes(attribute.Int("records", len(out.Records)))
	span.SetStatus(codes.Ok, "category collected")
	return out
}

type listFunc func(ctx context.Context, groupID string) ([]nifi.ComponentEntity, error)

// structural lists entities of the job's root group. In recursive mode the
// whole hierarchy below the root is listed; if that fails, one direct listing
// of the root's children is attempted before giving up.
func (c *cycle) structural(ctx context.Context, kind string, list listFunc) ([]nifi.ComponentEntity, error) {
	root := c.job.rootGroup()
	if !c.cfg.RecursiveCollection {
		return list(ctx, root)
	}

	ents, recErr := c.recursive(ctx, list)
	if recErr == nil {
		return ents, nil
	}

	c.log.Warn(ctx, "recursive fetch failed, falling back to direct children",
		"kind", kind,
		"group_id", root,
		"error", recErr,
	)

	ents, err := list(ctx, root)
	if err != nil {
		return nil, errors.Join(
			fmt.Errorf("recursive %s fetch: %w", kind, recErr),
			fmt.Errorf("direct %s fetch: %w", kind, err),
		)
	}
	return ents, nil
}

func (c *cycle) recursive(ctx context.Context, list listFunc) ([]nifi.ComponentEntity, error) {
	groups, err := c.hierarchy(ctx)
	if err != nil {
		return nil, err
	}

	var all []nifi.ComponentEntity
	for _, id := range groups {
		ents, err := list(ctx, id)
		if err != nil {
			return nil, err
		}
		all = append(all, ents...)
	}
	return all, nil
}

// hierarchy returns the root group and all of its descendants, breadth first.
func (c *cycle) hierarchy(ctx context.Context) ([]string, error) {
	if c.groups != nil {
		return c.groups, nil
	}

	root := c.job.rootGroup()
	ids := []string{}
	seen := map[string]struct{}{root: {}}
	queue := []string{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ids = append(ids, id)

		children, err := c.api.ChildGroups(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to walk process group hierarchy: %w", err)
		}
		for _, child := range children {
			if _, ok := seen[child.ID]; ok || child.ID == "" {
				continue
			}
			seen[child.ID] = struct{}{}
			queue = append(queue, child.ID)
		}
	}

	c.groups = ids
	return ids, nil
}

func (c *cycle) processorFilter() []string {
	if c.job.Flow != nil {
		return c.job.Flow.MonitoredProcessorNames
	}
	return c.cfg.MonitoredProcessorNames
}

func (c *cycle) processors(ctx context.Context) ([]storage.Record, error) {
	ents, err := c.structural(ctx, "processor", c.api.Processors)
	if err != nil {
		return nil, err
	}
	return extractProcessors(ents, c.cfg.ProcessorMetrics, c.job.flowName(), c.processorFilter()), nil
}

func (c *cycle) connections(ctx context.Context) ([]storage.Record, error) {
	ents, err := c.structural(ctx, "connection", c.api.Connections)
	if err != nil {
		return nil, err
	}
	return extractConnections(ents, c.cfg.ConnectionMetrics, c.job.flowName()), nil
}

func (c *cycle) jvm(ctx context.Context) ([]storage.Record, error) {
	diag, err := c.api.SystemDiagnostics(ctx)
	if err != nil {
		return nil, err
	}
	records := extractJVM(diag, c.cfg.JVMMetrics)
	if records == nil {
		c.log.Warn(ctx, "no jvm snapshot in system diagnostics")
	}
	return records, nil
}

func (c *cycle) controllerServices(ctx context.Context) ([]storage.Record, error) {
	ents, err := c.api.ControllerServices(ctx)
	if err != nil {
		return nil, err
	}
	return extractComponentStatus(ents, c.cfg.ControllerServiceMetrics), nil
}

func (c *cycle) reportingTasks(ctx context.Context) ([]storage.Record, error) {
	ents, err := c.api.ReportingTasks(ctx)
	if err != nil {
		return nil, err
	}
	return extractComponentStatus(ents, c.cfg.ReportingTaskMetrics), nil
}

func (c *cycle) bulletins(ctx context.Context) ([]storage.Record, error) {
	bulletins, err := c.api.Bulletins(ctx)
	if err != nil {
		return nil, err
	}
	return extractBulletins(bulletins), nil
}

func (c *cycle) cluster(ctx context.Context) ([]storage.Record, error) {
	summary, err := c.api.ClusterSummary(ctx)
	if err != nil {
		return nil, err
	}
	return extractCluster(summary), nil
}

func (c *cycle) system(ctx context.Context) ([]storage.Record, error) {
	rec, err := c.d.host.Sample(ctx)
	if err != nil {
		return nil, err
	}
	return []storage.Record{rec}, nil
}

// provenanceRequest builds the query for this cycle from the provenance
// settings. A positive lookback bounds the window to [now-lookback, now].
func (c *cycle) provenanceRequest() nifi.ProvenanceRequest {
	settings := c.cfg.Provenance
	req := nifi.ProvenanceRequest{
		MaxResults:  settings.MaxResults,
		EventType:   settings.EventType,
		ComponentID: settings.ComponentID,
	}
	if settings.LookbackMinutes > 0 {
		end := c.now
		start := end.Add(-time.Duration(settings.LookbackMinutes) * time.Minute)
		req.StartDate, req.EndDate = &start, &end
	}
	return req
}

func (c *cycle) provenance(ctx context.Context) ([]storage.Record, error) {
	q := provenance.NewQuerier(c.api, c.d.baseLogger, c.d.tracer, c.d.provenanceOpts...)
	result, err := q.Run(ctx, c.provenanceRequest())
	if err != nil {
		if errors.Is(err, provenance.ErrQueryTimeout) {
			c.d.metrics.IncProvenanceTimeouts(ctx)
		}
		return nil, err
	}
	return extractProvenance(result.Payload)
}
