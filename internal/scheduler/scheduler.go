// Package scheduler is the collector's control loop. Each tick it reloads the
// configuration, renews the API token when one is in use and dispatches the
// global categories and flows whose interval has elapsed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/collector"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/config"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/logger"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/timeutil"
)

const (
	// TickInterval is the pause between two ticks.
	TickInterval = time.Second
	// ConfigRetryDelay is the pause after a failed configuration reload.
	ConfigRetryDelay = 10 * time.Second
	// RenewalRetryDelay is the pause after a failed token renewal. The tick
	// is abandoned.
	RenewalRetryDelay = 60 * time.Second
)

// Dispatcher runs one collection cycle.
type Dispatcher interface {
	Dispatch(ctx context.Context, cfg *config.Config, job collector.Job) (collector.Summary, error)
}

// TokenRenewer keeps a bearer token fresh.
type TokenRenewer interface {
	RenewIfNeeded(ctx context.Context, now time.Time, tokenURL string, lifetime time.Duration) (bool, error)
}

// Metrics records scheduler activity.
type Metrics interface {
	IncConfigReloads(ctx context.Context)
	IncConfigReloadErrors(ctx context.Context)
	IncTokenRenewals(ctx context.Context)
	IncTokenRenewalErrors(ctx context.Context)
	IncCycles(ctx context.Context, scope string)
	IncStorageErrors(ctx context.Context, scope string)
}

// Scheduler decides what is due and when. It is driven by a single goroutine.
type Scheduler struct {
	loader     config.Loader
	dispatcher Dispatcher
	renewer    TokenRenewer

	state        *State
	timeProvider timeutil.Provider

	metrics Metrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTokenRenewer enables token renewal checks. Without it the scheduler
// assumes basic authentication.
func WithTokenRenewer(r TokenRenewer) Option {
	return func(s *Scheduler) { s.renewer = r }
}

// WithTimeProvider replaces the wall clock.
func WithTimeProvider(tp timeutil.Provider) Option {
	return func(s *Scheduler) { s.timeProvider = tp }
}

// New creates a Scheduler with empty state.
func New(
	loader config.Loader,
	dispatcher Dispatcher,
	metrics Metrics,
	logger *logger.Logger,
	tracer trace.Tracer,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		loader:       loader,
		dispatcher:   dispatcher,
		state:        NewState(),
		timeProvider: timeutil.Default(),
		metrics:      metrics,
		logger:       logger.With("component", "scheduler"),
		tracer:       tracer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State exposes the last-run bookkeeping.
func (s *Scheduler) State() *State { return s.state }

// Run ticks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info(ctx, "scheduler started", "token_renewal", s.renewer != nil)
	for {
		wait := s.Tick(ctx)
		if err := s.timeProvider.Sleep(ctx, wait); err != nil {
			s.logger.Info(ctx, "scheduler stopped")
			return nil
		}
	}
}

// Tick performs one iteration of the loop and returns how long to wait
// before the next one.
func (s *Scheduler) Tick(ctx context.Context) time.Duration {
	ctx, span := s.tracer.Start(ctx, "scheduler.tick")
	defer span.End()

	cfg, err := s.loader.Load(ctx)
	if err != nil {
		s.metrics.IncConfigReloadErrors(ctx)
		s.logger.Error(ctx, "failed to reload config, skipping tick", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "config reload failed")
		return ConfigRetryDelay
	}
	s.metrics.IncConfigReloads(ctx)
	span.AddEvent("config_loaded")

	if s.renewer != nil {
		renewed, err := s.renewer.RenewIfNeeded(ctx, s.timeProvider.Now(), cfg.NiFiTokenURL, cfg.TokenLifetime())
		if err != nil {
			s.metrics.IncTokenRenewalErrors(ctx)
			s.logger.Error(ctx, "token renewal failed, abandoning tick", "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "token renewal failed")
			return RenewalRetryDelay
		}
		if renewed {
			s.metrics.IncTokenRenewals(ctx)
			span.AddEvent("token_renewed")
		}
	}

	now := s.timeProvider.Now()

	if cats := s.state.DueGlobals(cfg, now); len(cats) > 0 {
		s.logger.Info(ctx, "triggering global collection", "categories", cats)
		_ = s.dispatch(ctx, cfg, collector.Job{Categories: cats})
		s.state.MarkGlobals(cats, now)
	}

	for i := range cfg.Flows {
		flow := cfg.Flows[i]
		if !s.state.FlowDue(flow, now) {
			continue
		}
		s.logger.Info(ctx, "triggering flow collection", "flow", flow.Name)
		_ = s.dispatch(ctx, cfg, collector.Job{Categories: flow.Components, Flow: &flow})
		s.state.MarkFlow(flow.Name, now)
	}

	span.SetStatus(codes.Ok, "tick complete")
	return TickInterval
}

// RunOnce loads the configuration and dispatches every global category and
// every flow exactly once. Storage errors are collected and returned after
// all cycles have run.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "scheduler.run_once")
	defer span.End()

	cfg, err := s.loader.Load(ctx)
	if err != nil {
		s.metrics.IncConfigReloadErrors(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, "config load failed")
		return fmt.Errorf("failed to load config: %w", err)
	}
	s.metrics.IncConfigReloads(ctx)

	s.logger.Info(ctx, "running one-time collection",
		"categories", len(cfg.Components),
		"flows", len(cfg.Flows),
	)

	var errs []error
	if err := s.dispatch(ctx, cfg, collector.Job{Categories: cfg.Components}); err != nil {
		errs = append(errs, err)
	}
	for i := range cfg.Flows {
		flow := cfg.Flows[i]
		if err := s.dispatch(ctx, cfg, collector.Job{Categories: flow.Components, Flow: &flow}); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "one-time collection incomplete")
		return err
	}
	span.SetStatus(codes.Ok, "one-time collection complete")
	return nil
}

func (s *Scheduler) dispatch(ctx context.Context, cfg *config.Config, job collector.Job) error {
	if len(job.Categories) == 0 {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "scheduler.dispatch",
		trace.WithAttributes(attribute.String("scope", job.Scope())))
	defer span.End()

	summary, err := s.dispatcher.Dispatch(ctx, cfg, job)
	s.metrics.IncCycles(ctx, job.Scope())

	logCtx := logger.NewLoggerContext(s.logger.With(
		"collection_id", summary.CollectionID,
		"scope", job.Scope(),
	))
	if job.Flow != nil {
		logCtx.Add("flow", job.Flow.Name)
	}

	if err != nil {
		s.metrics.IncStorageErrors(ctx, job.Scope())
		logCtx.Error(ctx, "collection cycle could not be stored", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		return err
	}

	if failed := summary.Failures(); len(failed) > 0 {
		logCtx.Warn(ctx, "collection cycle finished with failed categories",
			"failed", len(failed),
			"total", len(summary.Outcomes),
		)
	}
	span.SetStatus(codes.Ok, "cycle dispatched")
	return nil
}
