// Package provenance runs lineage event queries against NiFi. A query is
// submitted, polled until it finishes or the attempt budget runs out, and
// then deleted from the server on every exit path.
package provenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/nifi"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/logger"
)

const (
	// DefaultPollInterval is the wait between status polls.
	DefaultPollInterval = 2 * time.Second
	// DefaultMaxAttempts bounds the number of status polls per query.
	DefaultMaxAttempts = 30
	// DefaultMaxResults is used when a request does not set MaxResults.
	DefaultMaxResults = 1000
)

// State is a phase of a single query.
type State string

const (
	StateSubmitted State = "SUBMITTED"
	StatePolling   State = "POLLING"
	StateFinished  State = "FINISHED"
	StateTimedOut  State = "TIMED_OUT"
	StateDeleted   State = "DELETED"
)

// API is the subset of the REST client the query protocol needs.
type API interface {
	SubmitProvenance(ctx context.Context, req nifi.ProvenanceRequest) (*nifi.ProvenanceQuery, error)
	ProvenanceStatus(ctx context.Context, id string) (*nifi.ProvenanceQuery, error)
	DeleteProvenance(ctx context.Context, id string) error
}

// Querier executes provenance queries one at a time.
type Querier struct {
	api          API
	pollInterval time.Duration
	maxAttempts  int

	logger *logger.Logger
	tracer trace.Tracer
}

// Option configures a Querier.
type Option func(*Querier)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(q *Querier) { q.pollInterval = d }
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(q *Querier) { q.maxAttempts = n }
}

// NewQuerier creates a Querier that talks to api.
func NewQuerier(api API, logger *logger.Logger, tracer trace.Tracer, opts ...Option) *Querier {
	q := &Querier{
		api:          api,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		logger:       logger.With("component", "provenance_querier"),
		tracer:       tracer,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.maxAttempts < 1 {
		q.maxAttempts = 1
	}
	return q
}

// errPending marks a poll that found the query still running.
var errPending = errors.New("provenance query pending")

// Run submits req and waits for it to finish. On success the final status,
// including the untouched response payload, is returned. If the query does not
// finish within the attempt budget the error is a *TimeoutError. The query is
// deleted exactly once whenever submission succeeded; delete failures are
// only logged.
func (q *Querier) Run(ctx context.Context, req nifi.ProvenanceRequest) (*nifi.ProvenanceQuery, error) {
	ctx, span := q.tracer.Start(ctx, "provenance_querier.run",
		trace.WithAttributes(
			attribute.Int("max_results", req.MaxResults),
			attribute.String("event_type", req.EventType),
			attribute.String("component_id", req.ComponentID),
		))
	defer span.End()

	if req.MaxResults <= 0 {
		req.MaxResults = DefaultMaxResults
	}

	submitted, err := q.api.SubmitProvenance(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return nil, fmt.Errorf("failed to submit provenance query: %w", err)
	}

	id := submitted.ID
	span.SetAttributes(attribute.String("query_id", id))
	logCtx := logger.NewLoggerContext(q.logger.With("query_id", id))
	logCtx.Debug(ctx, "provenance query submitted", "state", StateSubmitted)

	result, attempts, pollErr := q.poll(ctx, id)

	// The delete must happen even if the caller's context is already done.
	q.delete(context.WithoutCancel(ctx), logCtx, id)

	span.SetAttributes(attribute.Int("poll_attempts", attempts))
	if pollErr != nil {
		span.RecordError(pollErr)
		span.SetStatus(codes.Error, "query did not finish")
		return nil, pollErr
	}

	logCtx.Info(ctx, "provenance query finished",
		"state", StateFinished,
		"poll_attempts", attempts,
	)
	span.SetStatus(codes.Ok, "query finished")
	return result, nil
}

// poll fetches the status of id until it is finished, an API error occurs or
// the attempt budget is spent. The first poll is issued immediately.
func (q *Querier) poll(ctx context.Context, id string) (*nifi.ProvenanceQuery, int, error) {
	var (
		attempts int
		last     *nifi.ProvenanceQuery
	)

	operation := func() error {
		attempts++
		status, err := q.api.ProvenanceStatus(ctx, id)
		if err != nil {
			return backoff.Permanent(err)
		}
		last = status
		if !status.Finished {
			return errPending
		}
		return nil
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(q.pollInterval), uint64(q.maxAttempts-1)),
		ctx,
	)
	notify := func(_ error, next time.Duration) {
		pct := 0
		if last != nil {
			pct = last.PercentCompleted
		}
		q.logger.Debug(ctx, "provenance query pending",
			"query_id", id,
			"state", StatePolling,
			"attempt", attempts,
			"percent_completed", pct,
			"next_poll", next,
		)
	}

	err := backoff.RetryNotify(operation, b, notify)
	switch {
	case err == nil:
		return last, attempts, nil
	case ctx.Err() != nil:
		return nil, attempts, fmt.Errorf("provenance query %s: %w", id, ctx.Err())
	case errors.Is(err, errPending):
		pct := 0
		if last != nil {
			pct = last.PercentCompleted
		}
		q.logger.Warn(ctx, "provenance query timed out",
			"query_id", id,
			"state", StateTimedOut,
			"attempts", attempts,
			"percent_completed", pct,
		)
		return nil, attempts, &TimeoutError{QueryID: id, Attempts: attempts, PercentCompleted: pct}
	default:
		return nil, attempts, fmt.Errorf("failed to poll provenance query %s: %w", id, err)
	}
}

// delete issues the single best-effort delete for id.
func (q *Querier) delete(ctx context.Context, logCtx *logger.LoggerContext, id string) {
	ctx, span := q.tracer.Start(ctx, "provenance_querier.delete",
		trace.WithAttributes(attribute.String("query_id", id)))
	defer span.End()

	if err := q.api.DeleteProvenance(ctx, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		logCtx.Warn(ctx, "failed to delete provenance query", "error", err)
		return
	}
	span.SetStatus(codes.Ok, "query deleted")
	logCtx.Debug(ctx, "provenance query deleted", "state", StateDeleted)
}
