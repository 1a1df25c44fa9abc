// Package run manages the lifecycle of analysis runs: submission,
// asynchronous execution, and status tracking.
package run

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/moneta-labs/moneta/errors"
)

// Status represents the current state of an analysis run
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses no transition may leave
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// legalTransitions enumerates every edge the run lifecycle allows.
// The lifecycle only moves forward; terminal states have no edges.
var legalTransitions = map[Status][]Status{
	StatusQueued:  {StatusRunning},
	StatusRunning: {StatusCompleted, StatusFailed},
}

// CanTransition returns true if the lifecycle has a from -> to edge
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// tickerPattern matches normalized ticker symbols: uppercase letters,
// digits, dots and dashes, e.g. "AAPL", "BRK.B", "RDS-A"
var tickerPattern = regexp.MustCompile(`^[A-Z0-9.-]{1,7}$`)

// NormalizeTicker trims and uppercases a raw ticker symbol and validates
// it against the accepted alphabet. The normalized form is what gets
// stored and handed to the executor.
func NormalizeTicker(raw string) (string, error) {
	ticker := strings.ToUpper(strings.TrimSpace(raw))
	if !tickerPattern.MatchString(ticker) {
		return "", errors.NewInvalidRequestError("invalid ticker symbol: %q", raw)
	}
	return ticker, nil
}

// Run represents one asynchronous analysis of a ticker symbol.
//
// A run only moves forward: queued -> running -> completed or failed.
// Result holds the pipeline's output document verbatim once completed;
// Error holds the failure reason once failed. Neither is ever set for
// the other terminal state.
type Run struct {
	ID        string          `json:"id"`
	Ticker    string          `json:"ticker"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New creates a queued run for the given raw ticker symbol.
// Invalid symbols are rejected before a run exists anywhere.
func New(rawTicker string) (*Run, error) {
	ticker, err := NormalizeTicker(rawTicker)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Run{
		ID:        uuid.NewString(),
		Ticker:    ticker,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Start marks the run as running
func (r *Run) Start() {
	r.Status = StatusRunning
	r.UpdatedAt = time.Now()
}

// Complete marks the run as completed with its result document
func (r *Run) Complete(result json.RawMessage) {
	r.Status = StatusCompleted
	r.Result = result
	r.UpdatedAt = time.Now()
}

// Fail marks the run as failed with an error message
func (r *Run) Fail(err error) {
	r.Status = StatusFailed
	r.Error = err.Error()
	r.UpdatedAt = time.Now()
}

// Summary is the listing projection of a run: identity and lifecycle
// fields without the result document or failure detail.
type Summary struct {
	ID        string    `json:"id"`
	Ticker    string    `json:"ticker"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summarize returns the listing projection of the run
func (r *Run) Summarize() *Summary {
	return &Summary{
		ID:        r.ID,
		Ticker:    r.Ticker,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
