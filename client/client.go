// Package client is a typed HTTP client for the moneta analysis API.
// It covers run submission, snapshot and listing queries, and the
// bounded polling protocol callers use to wait for completion.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/moneta-labs/moneta/errors"
	"github.com/moneta-labs/moneta/run"
)

// DefaultRequestTimeout bounds a single API request
const DefaultRequestTimeout = 10 * time.Second

// Run is the API's view of an analysis run. The wire identifier key is
// run_id; result is present only for completed runs, error only for
// failed ones.
type Run struct {
	RunID     string          `json:"run_id"`
	Ticker    string          `json:"ticker"`
	Status    run.Status      `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Submission is the acknowledgement returned for a queued run
type Submission struct {
	RunID  string     `json:"run_id"`
	Ticker string     `json:"ticker"`
	Status run.Status `json:"status"`
}

// RunSummary is one row of a runs listing
type RunSummary struct {
	RunID     string     `json:"run_id"`
	Ticker    string     `json:"ticker"`
	Status    run.Status `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// runListing is the envelope of the listing endpoint
type runListing struct {
	Runs  []*RunSummary `json:"runs"`
	Count int           `json:"count"`
}

// Client talks to a running moneta server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the server at baseURL,
// e.g. "http://localhost:8000".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
	}
}

// Submit queues an analysis run for the ticker and returns the
// acknowledgement. The run executes asynchronously; observe progress
// with GetRun or a Poller.
func (c *Client) Submit(ctx context.Context, ticker string) (*Submission, error) {
	reqURL := fmt.Sprintf("%s/api/analyses/%s", c.baseURL, url.PathEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create submit request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "submit request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read submit response")
	}

	if resp.StatusCode != http.StatusAccepted {
		return nil, apiError(resp.StatusCode, body)
	}

	var sub Submission
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, errors.Wrapf(err, "failed to parse submit response: %s", string(body))
	}

	return &sub, nil
}

// GetRun fetches the current snapshot of a run
func (c *Client) GetRun(ctx context.Context, runID string) (*Run, error) {
	reqURL := fmt.Sprintf("%s/api/analyses/%s", c.baseURL, url.PathEscape(runID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create run request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "run request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read run response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}

	var snapshot Run
	if err := json.Unmarshal(body, &snapshot); err != nil {
		return nil, errors.Wrapf(err, "failed to parse run response: %s", string(body))
	}

	return &snapshot, nil
}

// ListRuns fetches up to limit recent runs, newest first. A limit of
// zero asks for the server default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]*RunSummary, error) {
	reqURL := fmt.Sprintf("%s/api/analyses", c.baseURL)
	if limit > 0 {
		reqURL = fmt.Sprintf("%s?limit=%d", reqURL, limit)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create list request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "list request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read list response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}

	var listing runListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, errors.Wrapf(err, "failed to parse list response: %s", string(body))
	}

	return listing.Runs, nil
}

// Health reports whether the server and its run store are reachable
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return errors.Wrap(err, "failed to create health request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "health request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read health response")
	}

	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, body)
	}

	return nil
}

// apiError converts a non-success API response into the matching
// domain error. Error bodies are {"error": message}; anything else
// falls back to the raw body.
func apiError(statusCode int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}

	switch statusCode {
	case http.StatusBadRequest:
		return errors.NewInvalidRequestError("%s", message)
	case http.StatusNotFound:
		return errors.NewNotFoundError("%s", message)
	case http.StatusServiceUnavailable:
		return errors.NewServiceUnavailableError("%s", message)
	default:
		return errors.Newf("server returned status %d: %s", statusCode, message)
	}
}
