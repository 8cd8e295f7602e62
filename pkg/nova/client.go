// Package nova is a small client for the Nova matching API. It is used by the
// ingest tooling and is intentionally decoupled from the server's internal
// models: the wire types here are plain copies of the JSON surface.
package nova

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// ClientOptions configures the Nova API client.
type ClientOptions struct {
	// BaseURL is the base URL of the Nova API (default: "http://localhost:8080").
	// Do not include /v1 - it is added automatically.
	BaseURL string
	// APIKey is sent as a Bearer token on every request.
	APIKey string
	// RetryMax is the maximum number of retries (default: 3).
	RetryMax int
	// Timeout is the HTTP client timeout (default: 30 seconds). Raise it when
	// calling RunMatchingSync with a large solver budget.
	Timeout time.Duration
}

// Client is the Nova API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *retryablehttp.Client
}

// NewClient creates a new Nova API client with default settings.
func NewClient(baseURL, apiKey string) *Client {
	return NewClientWithOptions(ClientOptions{
		BaseURL: baseURL,
		APIKey:  apiKey,
	})
}

// NewClientWithOptions creates a new Nova API client with custom options.
func NewClientWithOptions(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:8080"
	}

	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/v1")

	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryMax == 0 {
		opts.RetryMax = 3
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = opts.RetryMax
	retryClient.HTTPClient.Timeout = opts.Timeout
	retryClient.Logger = nil // Disable logging by default

	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: retryClient,
	}
}

// APIError is a non-2xx response decoded from the API's problem+json body.
type APIError struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("nova: %s (status %d): %s", e.Title, e.Status, e.Detail)
}

// IsConflict reports whether err is an APIError with HTTP status 409.
func IsConflict(err error) bool {
	var apiErr *APIError

	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// Job mirrors the API's job resource.
type Job struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Ring mirrors the API's ring resource.
type Ring struct {
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Label     string    `json:"label"`
	Position  *int      `json:"position,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Diamond mirrors the API's diamond resource.
type Diamond struct {
	ID        uuid.UUID  `json:"id"`
	JobID     uuid.UUID  `json:"job_id"`
	RingID    *uuid.UUID `json:"ring_id,omitempty"`
	SlotIndex int        `json:"slot_index"`
	CreatedAt time.Time  `json:"created_at"`
}

// Feature mirrors the API's diamond feature resource.
type Feature struct {
	ID           uuid.UUID `json:"id"`
	DiamondID    uuid.UUID `json:"diamond_id"`
	ModelVersion string    `json:"model_version"`
	DiamondType  *string   `json:"diamond_type,omitempty"`
	AreaPx       float64   `json:"area_px"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MatchingRun mirrors the API's matching run resource.
type MatchingRun struct {
	ID            uuid.UUID       `json:"id"`
	JobID         uuid.UUID       `json:"job_id"`
	Status        string          `json:"status"`
	Params        json.RawMessage `json:"params"`
	CreatedBy     string          `json:"created_by"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Finished reports whether the run reached a terminal status.
func (r *MatchingRun) Finished() bool {
	return r.Status == "DONE" || r.Status == "FAILED"
}

// Pair mirrors one row of the API's pair set.
type Pair struct {
	ID         uuid.UUID `json:"id"`
	RunID      uuid.UUID `json:"run_id"`
	Diamond1ID uuid.UUID `json:"diamond1_id"`
	Diamond2ID uuid.UUID `json:"diamond2_id"`
	Confidence float64   `json:"confidence"`
	Locked     bool      `json:"locked"`
	Source     string    `json:"source"`
}

// PairsResponse is the API's pair listing envelope.
type PairsResponse struct {
	Data  []Pair `json:"data"`
	Total int64  `json:"total"`
}

// CreateJobRequest creates a job.
type CreateJobRequest struct {
	Name string `json:"name"`
}

// CreateRingRequest resolves or creates a ring by label within a job.
type CreateRingRequest struct {
	Label    string `json:"label"`
	Position *int   `json:"position,omitempty"`
}

// CreateDiamondRequest ingests one scanned diamond into a slot.
type CreateDiamondRequest struct {
	RingLabel *string `json:"ring_label,omitempty"`
	SlotIndex int     `json:"slot_index"`
}

// UpsertFeatureRequest writes the feature row for one diamond and model version.
// Boundary is passed through opaque; the server validates its shape.
type UpsertFeatureRequest struct {
	ModelVersion    *string         `json:"model_version,omitempty"`
	AsetEmbedding   []float32       `json:"aset_embedding,omitempty"`
	UVFreeEmbedding []float32       `json:"uv_free_embedding,omitempty"`
	DiamondType     *string         `json:"diamond_type,omitempty"`
	Boundary        json.RawMessage `json:"boundary,omitempty"`
	AreaPx          float64         `json:"area_px"`
	TableSizePx     *float64        `json:"table_size_px,omitempty"`
	FaceUpColor     *string         `json:"face_up_color,omitempty"`
}

// CreateMatchingRunRequest starts a matching run.
type CreateMatchingRunRequest struct {
	MinConfidence float64  `json:"min_confidence"`
	CarryLocked   bool     `json:"carry_locked"`
	AreaTolerance *float64 `json:"area_tolerance,omitempty"`
	ModelVersion  *string  `json:"model_version,omitempty"`
	CreatedBy     *string  `json:"created_by,omitempty"`
}

// CreateJob creates a job in CREATED status.
func (c *Client) CreateJob(ctx context.Context, req *CreateJobRequest) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", req, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

// StartJob transitions a job to SCANNING.
func (c *Client) StartJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/v1/jobs/"+jobID.String()+"/start", nil, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

// CompleteJob transitions a job to DONE.
func (c *Client) CompleteJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/v1/jobs/"+jobID.String()+"/complete", nil, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

// CreateRing resolves or creates a ring by label. Repeating the call with the
// same label returns the same ring.
func (c *Client) CreateRing(ctx context.Context, jobID uuid.UUID, req *CreateRingRequest) (*Ring, error) {
	var ring Ring
	if err := c.do(ctx, http.MethodPost, "/v1/jobs/"+jobID.String()+"/rings", req, &ring); err != nil {
		return nil, err
	}

	return &ring, nil
}

// IngestDiamond creates a diamond at (ring, slot). An occupied slot returns an
// APIError with status 409; use IsConflict to detect replayed scans.
func (c *Client) IngestDiamond(ctx context.Context, jobID uuid.UUID, req *CreateDiamondRequest) (*Diamond, error) {
	var diamond Diamond
	if err := c.do(ctx, http.MethodPost, "/v1/jobs/"+jobID.String()+"/diamonds", req, &diamond); err != nil {
		return nil, err
	}

	return &diamond, nil
}

// UpsertFeature writes the feature row for one diamond and model version.
func (c *Client) UpsertFeature(ctx context.Context, diamondID uuid.UUID, req *UpsertFeatureRequest) (*Feature, error) {
	var feature Feature
	if err := c.do(ctx, http.MethodPut, "/v1/diamonds/"+diamondID.String()+"/features", req, &feature); err != nil {
		return nil, err
	}

	return &feature, nil
}

// RunMatching enqueues an asynchronous matching run and returns it in CREATED.
func (c *Client) RunMatching(ctx context.Context, jobID uuid.UUID, req *CreateMatchingRunRequest) (*MatchingRun, error) {
	var run MatchingRun
	if err := c.do(ctx, http.MethodPost, "/v1/jobs/"+jobID.String()+"/matching-runs", req, &run); err != nil {
		return nil, err
	}

	return &run, nil
}

// RunMatchingSync executes a matching run inline and returns it in a terminal
// status. The server holds the response for up to its solver budget.
func (c *Client) RunMatchingSync(ctx context.Context, jobID uuid.UUID, req *CreateMatchingRunRequest) (*MatchingRun, error) {
	var run MatchingRun
	if err := c.do(ctx, http.MethodPost, "/v1/jobs/"+jobID.String()+"/matching-runs/sync", req, &run); err != nil {
		return nil, err
	}

	return &run, nil
}

// GetRun fetches a run by ID.
func (c *Client) GetRun(ctx context.Context, runID uuid.UUID) (*MatchingRun, error) {
	var run MatchingRun
	if err := c.do(ctx, http.MethodGet, "/v1/matching-runs/"+runID.String(), nil, &run); err != nil {
		return nil, err
	}

	return &run, nil
}

// GetPairs fetches the pair set of a run in canonical order.
func (c *Client) GetPairs(ctx context.Context, runID uuid.UUID) (*PairsResponse, error) {
	var pairs PairsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/matching-runs/"+runID.String()+"/pairs", nil, &pairs); err != nil {
		return nil, err
	}

	return &pairs, nil
}

// WaitForRun polls a run until it reaches a terminal status or ctx is done.
func (c *Client) WaitForRun(ctx context.Context, runID uuid.UUID, pollInterval time.Duration) (*MatchingRun, error) {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		run, err := c.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}

		if run.Finished() {
			return run, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// do executes one API request. body is marshaled to JSON when non-nil; a 2xx
// response is decoded into out, anything else into an APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}

		reqBody = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Title == "" {
			apiErr.Title = http.StatusText(resp.StatusCode)
			apiErr.Detail = strings.TrimSpace(string(respBody))
		}

		apiErr.Status = resp.StatusCode

		return apiErr
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}
