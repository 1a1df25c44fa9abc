package server

import (
	"encoding/json"
	"time"

	"github.com/moneta-labs/moneta/run"
)

const (
	// MaxFeedClients is the maximum number of concurrent WebSocket feed clients
	MaxFeedClients = 100
	// FeedSendBufferSize is the size of per-client event queues
	FeedSendBufferSize = 64
	// ShutdownTimeout is how long Stop waits for server goroutines
	ShutdownTimeout = 10 * time.Second
)

// SubmitResponse acknowledges a queued submission. The computation has
// not started yet; callers poll the returned run_id for progress.
type SubmitResponse struct {
	RunID  string     `json:"run_id"`
	Ticker string     `json:"ticker"`
	Status run.Status `json:"status"`
}

func newSubmitResponse(r *run.Run) *SubmitResponse {
	return &SubmitResponse{
		RunID:  r.ID,
		Ticker: r.Ticker,
		Status: r.Status,
	}
}

// RunResponse is the full wire snapshot of a run. Runs carry a plain id
// internally; on the wire the identifier key is run_id. Result appears
// only once completed, Error only once failed.
type RunResponse struct {
	RunID     string          `json:"run_id"`
	Ticker    string          `json:"ticker"`
	Status    run.Status      `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newRunResponse(r *run.Run) *RunResponse {
	return &RunResponse{
		RunID:     r.ID,
		Ticker:    r.Ticker,
		Status:    r.Status,
		Result:    r.Result,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// RunSummaryResponse is the listing projection: identity and lifecycle
// fields without the result document or failure detail
type RunSummaryResponse struct {
	RunID     string     `json:"run_id"`
	Ticker    string     `json:"ticker"`
	Status    run.Status `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func newRunSummaryResponse(s *run.Summary) *RunSummaryResponse {
	return &RunSummaryResponse{
		RunID:     s.ID,
		Ticker:    s.Ticker,
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// ListRunsResponse wraps the recent-runs listing
type ListRunsResponse struct {
	Runs  []*RunSummaryResponse `json:"runs"`
	Count int                   `json:"count"`
}

// RunEventMessage carries one committed run transition over the feed
type RunEventMessage struct {
	Type      string       `json:"type"` // "run_update"
	Run       *RunResponse `json:"run"`
	Timestamp int64        `json:"timestamp"` // Unix timestamp
}

// MemoryStatus reports system memory usage for the status endpoint
type MemoryStatus struct {
	UsedGB  float64 `json:"used_gb"`
	TotalGB float64 `json:"total_gb"`
	Percent float64 `json:"percent"`
}

// StatusResponse is the /api/status payload: orchestrator load, run
// counts by lifecycle state, reaper progress and system memory
type StatusResponse struct {
	InFlight      int                    `json:"in_flight"`
	Runs          *run.Stats             `json:"runs"`
	Reaper        map[string]interface{} `json:"reaper,omitempty"`
	Memory        *MemoryStatus          `json:"memory,omitempty"`
	FeedClients   int                    `json:"feed_clients"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
}
