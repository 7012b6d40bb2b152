package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipforge/internal/services"
)

// Client is the worker-side view of the gateway. Workers construct one client
// from their configuration and perform every state read and write through it.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a gateway client for the given base URL and bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient swaps the underlying HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	if httpClient != nil {
		c.httpClient = httpClient
	}
	return c
}

// Hello registers or refreshes the worker's pool membership.
func (c *Client) Hello(ctx context.Context, workerID, queue string) error {
	req := WorkerHelloRequest{WorkerID: workerID, Queue: queue}
	return c.call(ctx, http.MethodPost, "/api/workers/hello", req, nil)
}

// ClaimJob asks for the oldest unclaimed job on the queue. A nil job means
// the queue is currently empty.
func (c *Client) ClaimJob(ctx context.Context, workerID, queue string) (*JobDescriptor, error) {
	var resp ClaimJobResponse
	req := ClaimJobRequest{WorkerID: workerID, Queue: queue}
	if err := c.call(ctx, http.MethodPost, "/api/workers/claim", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Claimed {
		return nil, nil
	}
	return resp.Job, nil
}

// GetClip fetches a source item descriptor.
func (c *Client) GetClip(ctx context.Context, id int64) (*ClipDescriptor, error) {
	var clip ClipDescriptor
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/clips/%d", id), nil, &clip); err != nil {
		return nil, err
	}
	return &clip, nil
}

// ReportClipStatus records the acquisition outcome for a source item.
func (c *Client) ReportClipStatus(ctx context.Context, id int64, report ClipStatusRequest) error {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/api/clips/%d/status", id), report, nil)
}

// GetMedia fetches a produced artifact descriptor.
func (c *Client) GetMedia(ctx context.Context, id int64) (*MediaDescriptor, error) {
	var media MediaDescriptor
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/media/%d", id), nil, &media); err != nil {
		return nil, err
	}
	return &media, nil
}

// CreateMedia registers a produced artifact and returns its id. Not
// idempotent; callers must not blindly retry on transport failure.
func (c *Client) CreateMedia(ctx context.Context, req CreateMediaRequest) (int64, error) {
	var resp CreateMediaResponse
	if err := c.call(ctx, http.MethodPost, "/api/media", req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// FindReusableMedia checks for a prior artifact with the same identity under
// the same owner.
func (c *Client) FindReusableMedia(ctx context.Context, req ReuseLookupRequest) (*ReuseLookupResponse, error) {
	var resp ReuseLookupResponse
	if err := c.call(ctx, http.MethodPost, "/api/media/reuse", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateJob registers a dispatched unit of work. Not idempotent.
func (c *Client) CreateJob(ctx context.Context, req CreateJobRequest) (*CreateJobResponse, error) {
	var resp CreateJobResponse
	if err := c.call(ctx, http.MethodPost, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob fetches a job by handle.
func (c *Client) GetJob(ctx context.Context, handle string) (*JobDescriptor, error) {
	var job JobDescriptor
	if err := c.call(ctx, http.MethodGet, "/api/jobs/"+handle, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJob applies a progress report to a job.
func (c *Client) UpdateJob(ctx context.Context, handle string, req UpdateJobRequest) error {
	return c.call(ctx, http.MethodPost, "/api/jobs/"+handle, req, nil)
}

// QuotaSnapshot fetches the owner's limits and current consumption.
func (c *Client) QuotaSnapshot(ctx context.Context, ownerID int64) (*QuotaSnapshot, error) {
	var snapshot QuotaSnapshot
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/quota/%d", ownerID), nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// RecordUsage appends render seconds to the owner's monthly ledger.
func (c *Client) RecordUsage(ctx context.Context, ownerID, runID, seconds int64) error {
	req := RecordUsageRequest{OwnerID: ownerID, RunID: runID, Seconds: seconds}
	return c.call(ctx, http.MethodPost, "/api/usage", req, nil)
}

// UpdateRun mutates a run container.
func (c *Client) UpdateRun(ctx context.Context, runID int64, req UpdateRunRequest) error {
	return c.call(ctx, http.MethodPost, fmt.Sprintf("/api/runs/%d", runID), req, nil)
}

// RunMedia lists the run's acquired artifacts in clip order.
func (c *Client) RunMedia(ctx context.Context, runID int64) ([]MediaDescriptor, error) {
	var resp RunMediaResponse
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("/api/runs/%d/media", runID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Media, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "gateway", "call", method+" "+path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return services.Wrap(services.ErrUnauthorized, "gateway", "call", method+" "+path, nil)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "gateway", "call", method+" "+path, nil)
	case resp.StatusCode >= 400:
		return services.Wrap(services.ErrTransient, "gateway", "call",
			fmt.Sprintf("%s %s: %s", method, path, readErrorMessage(resp.Body)), nil)
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil || payload.Error == "" {
		return "request failed"
	}
	return payload.Error
}
