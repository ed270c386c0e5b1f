package provenance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/nifi"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/logger"
)

type fakeAPI struct {
	submitFn func(ctx context.Context, req nifi.ProvenanceRequest) (*nifi.ProvenanceQuery, error)
	statusFn func(ctx context.Context, id string, call int) (*nifi.ProvenanceQuery, error)
	deleteFn func(ctx context.Context, id string) error

	submitted   []nifi.ProvenanceRequest
	statusCalls int
	deleteCalls int
	deletedIDs  []string
}

func (f *fakeAPI) SubmitProvenance(ctx context.Context, req nifi.ProvenanceRequest) (*nifi.ProvenanceQuery, error) {
	f.submitted = append(f.submitted, req)
	if f.submitFn != nil {
		return f.submitFn(ctx, req)
	}
	return &nifi.ProvenanceQuery{ID: "q-1"}, nil
}

func (f *fakeAPI) ProvenanceStatus(ctx context.Context, id string) (*nifi.ProvenanceQuery, error) {
	f.statusCalls++
	return f.statusFn(ctx, id, f.statusCalls)
}

func (f *fakeAPI) DeleteProvenance(ctx context.Context, id string) error {
	f.deleteCalls++
	f.deletedIDs = append(f.deletedIDs, id)
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func pending(id string, pct int) *nifi.ProvenanceQuery {
	return &nifi.ProvenanceQuery{
		ID:               id,
		PercentCompleted: pct,
		Payload:          json.RawMessage(fmt.Sprintf(`{"provenance":{"id":%q,"finished":false,"percentCompleted":%d}}`, id, pct)),
	}
}

func newQuerier(api API) *Querier {
	return NewQuerier(api, logger.Noop(), noop.NewTracerProvider().Tracer("test"),
		WithPollInterval(time.Millisecond))
}

func TestQuerier_FinishesAfterPendingPolls(t *testing.T) {
	finalPayload := json.RawMessage(`{"provenance":{"id":"q-1","finished":true,"percentCompleted":100,"results":{"provenanceEvents":[{"eventId":1},{"eventId":2}]}}}`)
	api := &fakeAPI{
		statusFn: func(_ context.Context, id string, call int) (*nifi.ProvenanceQuery, error) {
			if call <= 5 {
				return pending(id, call*10), nil
			}
			return &nifi.ProvenanceQuery{ID: id, Finished: true, PercentCompleted: 100, Payload: finalPayload}, nil
		},
	}

	result, err := newQuerier(api).Run(context.Background(), nifi.ProvenanceRequest{MaxResults: 50})
	require.NoError(t, err)

	assert.Equal(t, 6, api.statusCalls)
	assert.Equal(t, 1, api.deleteCalls)
	assert.Equal(t, []string{"q-1"}, api.deletedIDs)
	assert.Equal(t, string(finalPayload), string(result.Payload))
	assert.True(t, result.Finished)
}

func TestQuerier_TimesOutAfterBudget(t *testing.T) {
	api := &fakeAPI{
		statusFn: func(_ context.Context, id string, call int) (*nifi.ProvenanceQuery, error) {
			return pending(id, 42), nil
		},
	}

	result, err := newQuerier(api).Run(context.Background(), nifi.ProvenanceRequest{})
	require.Error(t, err)
	assert.Nil(t, result)

	assert.ErrorIs(t, err, ErrQueryTimeout)
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "q-1", timeoutErr.QueryID)
	assert.Equal(t, DefaultMaxAttempts, timeoutErr.Attempts)
	assert.Equal(t, 42, timeoutErr.PercentCompleted)

	assert.Equal(t, 30, api.statusCalls)
	assert.Equal(t, 1, api.deleteCalls)
}

func TestQuerier_SubmitFailureSkipsPollAndDelete(t *testing.T) {
	api := &fakeAPI{
		submitFn: func(context.Context, nifi.ProvenanceRequest) (*nifi.ProvenanceQuery, error) {
			return nil, &nifi.APIError{StatusCode: 500, Body: "boom"}
		},
		statusFn: func(context.Context, string, int) (*nifi.ProvenanceQuery, error) {
			t.Fatal("status must not be polled")
			return nil, nil
		},
	}

	_, err := newQuerier(api).Run(context.Background(), nifi.ProvenanceRequest{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrQueryTimeout))

	var apiErr *nifi.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 0, api.statusCalls)
	assert.Equal(t, 0, api.deleteCalls)
}

func TestQuerier_DeleteFailureIsNotPropagated(t *testing.T) {
	api := &fakeAPI{
		statusFn: func(_ context.Context, id string, _ int) (*nifi.ProvenanceQuery, error) {
			return &nifi.ProvenanceQuery{ID: id, Finished: true}, nil
		},
		deleteFn: func(context.Context, string) error { return errors.New("gone") },
	}

	result, err := newQuerier(api).Run(context.Background(), nifi.ProvenanceRequest{})
	require.NoError(t, err)
	assert.True(t, result.Finished)
	assert.Equal(t, 1, api.statusCalls)
	assert.Equal(t, 1, api.deleteCalls)
}

func TestQuerier_PollErrorDeletesAndIsNotTimeout(t *testing.T) {
	pollErr := errors.New("connection reset")
	api := &fakeAPI{
		statusFn: func(_ context.Context, id string, call int) (*nifi.ProvenanceQuery, error) {
			if call == 3 {
				return nil, pollErr
			}
			return pending(id, 0), nil
		},
	}

	_, err := newQuerier(api).Run(context.Background(), nifi.ProvenanceRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, pollErr)
	assert.False(t, errors.Is(err, ErrQueryTimeout))
	assert.Equal(t, 3, api.statusCalls)
	assert.Equal(t, 1, api.deleteCalls)
}

func TestQuerier_CanceledContextStillDeletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var deleteCtxErr error

	api := &fakeAPI{
		statusFn: func(_ context.Context, id string, call int) (*nifi.ProvenanceQuery, error) {
			if call == 1 {
				cancel()
			}
			return pending(id, 0), nil
		},
		deleteFn: func(ctx context.Context, _ string) error {
			deleteCtxErr = ctx.Err()
			return nil
		},
	}

	_, err := NewQuerier(api, logger.Noop(), noop.NewTracerProvider().Tracer("test"),
		WithPollInterval(time.Hour)).Run(ctx, nifi.ProvenanceRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, api.deleteCalls)
	assert.NoError(t, deleteCtxErr)
}

func TestQuerier_DefaultsMaxResults(t *testing.T) {
	api := &fakeAPI{
		statusFn: func(_ context.Context, id string, _ int) (*nifi.ProvenanceQuery, error) {
			return &nifi.ProvenanceQuery{ID: id, Finished: true}, nil
		},
	}

	_, err := newQuerier(api).Run(context.Background(), nifi.ProvenanceRequest{})
	require.NoError(t, err)
	require.Len(t, api.submitted, 1)
	assert.Equal(t, DefaultMaxResults, api.submitted[0].MaxResults)
}
