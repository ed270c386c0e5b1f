// Package nifi is a thin client for the NiFi management REST API. Each method
// maps one HTTP call onto typed results; retries and scheduling belong to the
// callers.
package nifi

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/logger"
)

// tokenTimeout bounds the token endpoint call independently of the
// configured request timeout.
const tokenTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is kept on APIError.
const maxErrorBody = 4096

// Client issues REST calls against a single NiFi instance. Values are
// immutable; WithEndpoint and WithAuth return modified copies so a client can
// be rebound to every configuration snapshot without shared mutation.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	timeout     time.Duration
	auth        Authenticator
	rateLimiter *common.RateLimiter

	logger *logger.Logger
	tracer trace.Tracer
}

// NewHTTPClient returns an HTTP client for talking to NiFi. With verifyTLS
// false, certificate verification is skipped for self-signed deployments.
// Requests carry the caller's trace context.
func NewHTTPClient(verifyTLS bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: !verifyTLS} //nolint:gosec
	return &http.Client{Transport: otelhttp.NewTransport(transport)}
}

// NewClient creates a Client without an endpoint or credentials. Use
// WithEndpoint and WithAuth to bind them.
func NewClient(
	httpClient *http.Client,
	rateLimiter *common.RateLimiter,
	logger *logger.Logger,
	tracer trace.Tracer,
) *Client {
	return &Client{
		httpClient:  httpClient,
		rateLimiter: rateLimiter,
		logger:      logger.With("component", "nifi_client"),
		tracer:      tracer,
	}
}

// WithEndpoint returns a copy of c bound to baseURL, with every request
// limited to timeout. A zero timeout leaves requests unbounded.
func (c *Client) WithEndpoint(baseURL string, timeout time.Duration) *Client {
	cp := *c
	cp.baseURL = strings.TrimRight(baseURL, "/")
	cp.timeout = timeout
	return &cp
}

// WithAuth returns a copy of c that authenticates requests with a.
func (c *Client) WithAuth(a Authenticator) *Client {
	cp := *c
	cp.auth = a
	return &cp
}

// Processors lists the processors that are direct children of groupID.
func (c *Client) Processors(ctx context.Context, groupID string) ([]ComponentEntity, error) {
	var resp processorsResponse
	if err := c.getJSON(ctx, "get_processors", "/process-groups/"+url.PathEscape(groupID)+"/processors", &resp); err != nil {
		return nil, fmt.Errorf("failed to list processors for group %s: %w", groupID, err)
	}
	return resp.Processors, nil
}

// Connections lists the connections that are direct children of groupID.
func (c *Client) Connections(ctx context.Context, groupID string) ([]ComponentEntity, error) {
	var resp connectionsResponse
	if err := c.getJSON(ctx, "get_connections", "/process-groups/"+url.PathEscape(groupID)+"/connections", &resp); err != nil {
		return nil, fmt.Errorf("failed to list connections for group %s: %w", groupID, err)
	}
	return resp.Connections, nil
}

// ChildGroups lists the process groups directly inside groupID.
func (c *Client) ChildGroups(ctx context.Context, groupID string) ([]ProcessGroupEntity, error) {
	var resp processGroupsResponse
	if err := c.getJSON(ctx, "get_child_groups", "/process-groups/"+url.PathEscape(groupID)+"/process-groups", &resp); err != nil {
		return nil, fmt.Errorf("failed to list child groups of %s: %w", groupID, err)
	}
	return resp.ProcessGroups, nil
}

// SystemDiagnostics returns the systemDiagnostics document.
func (c *Client) SystemDiagnostics(ctx context.Context) (map[string]any, error) {
	var resp systemDiagnosticsResponse
	if err := c.getJSON(ctx, "get_system_diagnostics", "/system-diagnostics", &resp); err != nil {
		return nil, fmt.Errorf("failed to get system diagnostics: %w", err)
	}
	return resp.SystemDiagnostics, nil
}

// ControllerServices lists controller-level controller services.
func (c *Client) ControllerServices(ctx context.Context) ([]ComponentEntity, error) {
	var resp controllerServicesResponse
	if err := c.getJSON(ctx, "get_controller_services", "/flow/controller/controller-services", &resp); err != nil {
		return nil, fmt.Errorf("failed to list controller services: %w", err)
	}
	return resp.ControllerServices, nil
}

// ReportingTasks lists reporting tasks.
func (c *Client) ReportingTasks(ctx context.Context) ([]ComponentEntity, error) {
	var resp reportingTasksResponse
	if err := c.getJSON(ctx, "get_reporting_tasks", "/flow/reporting-tasks", &resp); err != nil {
		return nil, fmt.Errorf("failed to list reporting tasks: %w", err)
	}
	return resp.ReportingTasks, nil
}

// Bulletins returns the bulletins currently on the bulletin board.
func (c *Client) Bulletins(ctx context.Context) ([]map[string]any, error) {
	var resp bulletinBoardResponse
	if err := c.getJSON(ctx, "get_bulletins", "/flow/bulletin-board", &resp); err != nil {
		return nil, fmt.Errorf("failed to get bulletin board: %w", err)
	}
	return resp.BulletinBoard.Bulletins, nil
}

// ClusterSummary returns the clusterSummary document.
func (c *Client) ClusterSummary(ctx context.Context) (map[string]any, error) {
	var resp clusterSummaryResponse
	if err := c.getJSON(ctx, "get_cluster_summary", "/flow/cluster/summary", &resp); err != nil {
		return nil, fmt.Errorf("failed to get cluster summary: %w", err)
	}
	return resp.ClusterSummary, nil
}

// SubmitProvenance submits a provenance query and returns its initial state.
func (c *Client) SubmitProvenance(ctx context.Context, req ProvenanceRequest) (*ProvenanceQuery, error) {
	body, err := json.Marshal(req.body())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provenance request: %w", err)
	}

	data, err := c.do(ctx, "submit_provenance", http.MethodPost, c.baseURL+"/provenance",
		bytes.NewReader(body), "application/json", c.auth)
	if err != nil {
		return nil, fmt.Errorf("failed to submit provenance query: %w", err)
	}

	q, err := decodeProvenance(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode provenance submission: %w", err)
	}
	if q.ID == "" {
		return nil, fmt.Errorf("provenance submission returned no query id")
	}
	return q, nil
}

// ProvenanceStatus fetches the current state of query id.
func (c *Client) ProvenanceStatus(ctx context.Context, id string) (*ProvenanceQuery, error) {
	data, err := c.do(ctx, "get_provenance", http.MethodGet, c.baseURL+"/provenance/"+url.PathEscape(id),
		nil, "", c.auth)
	if err != nil {
		return nil, fmt.Errorf("failed to get provenance query %s: %w", id, err)
	}

	q, err := decodeProvenance(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode provenance query %s: %w", id, err)
	}
	return q, nil
}

// DeleteProvenance removes query id from the server.
func (c *Client) DeleteProvenance(ctx context.Context, id string) error {
	if _, err := c.do(ctx, "delete_provenance", http.MethodDelete, c.baseURL+"/provenance/"+url.PathEscape(id),
		nil, "", c.auth); err != nil {
		return fmt.Errorf("failed to delete provenance query %s: %w", id, err)
	}
	return nil
}

// FetchToken exchanges username and password for a bearer token at tokenURL.
// The response body, trimmed, is the token.
func (c *Client) FetchToken(ctx context.Context, tokenURL, username, password string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()

	form := url.Values{"username": {username}, "password": {password}}
	data, err := c.do(ctx, "fetch_token", http.MethodPost, tokenURL,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded; charset=UTF-8", nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch token: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token endpoint returned an empty token")
	}
	return token, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out any) error {
	data, err := c.do(ctx, op, http.MethodGet, c.baseURL+path, nil, "", c.auth)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do executes one request and returns the response body. Non-2xx responses
// are reported as *APIError.
func (c *Client) do(
	ctx context.Context,
	op, method, target string,
	body io.Reader,
	contentType string,
	auth Authenticator,
) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "nifi_client."+op,
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", target),
		))
	defer span.End()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limiter wait failed")
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth != nil {
		auth.Authenticate(req)
	}

	c.logger.Debug(ctx, "requesting", "method", method, "url", target)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			Method:     method,
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "non-2xx response")
		return nil, apiErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read response")
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	span.SetStatus(codes.Ok, "request completed successfully")
	return data, nil
}
