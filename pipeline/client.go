// Package pipeline invokes the external multi-advisor analysis service.
// It implements run.Executor by POSTing tickers to the pipeline's HTTP
// endpoint and returning the result document verbatim.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/moneta-labs/moneta/errors"
	"github.com/moneta-labs/moneta/run"
)

// Config contains configuration for the analysis pipeline client
type Config struct {
	URL               string  `json:"url"`                 // Base URL of the pipeline service (e.g., "http://localhost:9000")
	RequestsPerMinute float64 `json:"requests_per_minute"` // Upstream pacing; zero disables it
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		URL:               "http://localhost:9000",
		RequestsPerMinute: 30,
	}
}

// Client submits tickers to the analysis pipeline service over HTTP.
// The per-run execution deadline arrives on the request context, so the
// underlying http.Client carries no timeout of its own.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.SugaredLogger
}

var _ run.Executor = (*Client)(nil)

// NewClient creates a new analysis pipeline client
func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1)
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		httpClient: &http.Client{},
		limiter:    limiter,
		logger:     logger,
	}
}

// analyzeRequest is the request format for /api/analyze
type analyzeRequest struct {
	Ticker string `json:"ticker"`
}

// analyzeResponse is the response format from /api/analyze
type analyzeResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Analyze runs the multi-advisor analysis for one ticker. The result
// document is returned exactly as the pipeline produced it.
func (c *Client) Analyze(ctx context.Context, ticker string) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "aborted waiting for pipeline rate limit")
		}
	}

	reqBody, err := json.Marshal(analyzeRequest{Ticker: ticker})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal analyze request")
	}

	url := fmt.Sprintf("%s/api/analyze", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create HTTP request")
	}

	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "analysis pipeline request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read pipeline response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("analysis pipeline returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var analyzeResp analyzeResponse
	if err := json.Unmarshal(body, &analyzeResp); err != nil {
		return nil, errors.Wrapf(err, "failed to parse pipeline response: %s", string(body))
	}

	if !analyzeResp.Success {
		errorMsg := analyzeResp.Error
		if errorMsg == "" {
			errorMsg = "analysis pipeline reported failure without a message"
		}
		return nil, errors.Newf("analysis pipeline failed: %s", errorMsg)
	}

	if len(analyzeResp.Result) == 0 {
		return nil, errors.New("analysis pipeline returned success without a result document")
	}

	c.logger.Infow("Analysis pipeline returned result",
		"ticker", ticker,
		"result_bytes", len(analyzeResp.Result),
		"duration_ms", time.Since(started).Milliseconds())

	return analyzeResp.Result, nil
}
