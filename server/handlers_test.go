package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	monetatest "github.com/moneta-labs/moneta/internal/testing"
	"github.com/moneta-labs/moneta/run"
)

// stubExecutor returns an executor that completes every run with doc
func stubExecutor(doc string) run.ExecutorFunc {
	return func(ctx context.Context, ticker string) (json.RawMessage, error) {
		return json.RawMessage(doc), nil
	}
}

// newTestServer wires a server over a migrated in-memory database
func newTestServer(t *testing.T, exec run.Executor) (*MonetaServer, *run.Store) {
	t.Helper()

	logger := zaptest.NewLogger(t).Sugar()
	store := run.NewStore(monetatest.CreateMigratedTestDB(t))
	orchestrator := run.NewOrchestrator(store, exec, run.DefaultConfig(), logger)
	t.Cleanup(orchestrator.Stop)

	reaper := run.NewReaper(store, orchestrator.Events(), run.DefaultReaperConfig(), logger)

	srv := New(store, orchestrator, reaper, []string{"*"}, logger)
	t.Cleanup(func() { srv.cancel() })

	return srv, store
}

// waitForRunStatus polls the API until the run reaches the wanted status
func waitForRunStatus(t *testing.T, baseURL, runID string, want run.Status) *RunResponse {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/api/analyses/" + runID)
		if err != nil {
			t.Fatalf("Failed to get run: %v", err)
		}

		var snapshot RunResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&snapshot)
		resp.Body.Close()
		if decodeErr != nil {
			t.Fatalf("Failed to decode run snapshot: %v", decodeErr)
		}

		if snapshot.Status == want {
			return &snapshot
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("Run %s never reached status %s", runID, want)
	return nil
}

// Test the full submit-then-poll flow through the HTTP surface
func TestSubmitThenPollRun(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor(`{"ticker":"AAPL","score":0.9}`))

	testServer := httptest.NewServer(srv.setupHTTPRoutes())
	defer testServer.Close()

	// Submit with a raw lowercase ticker; the server normalizes it
	resp, err := http.Post(testServer.URL+"/api/analyses/aapl", "application/json", nil)
	if err != nil {
		t.Fatalf("Failed to submit analysis: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Submit status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	var submitted SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		t.Fatalf("Failed to decode submit response: %v", err)
	}

	if submitted.RunID == "" {
		t.Error("Submit response missing run_id")
	}
	if submitted.Ticker != "AAPL" {
		t.Errorf("Submit ticker = %q, want AAPL", submitted.Ticker)
	}
	if submitted.Status != run.StatusQueued {
		t.Errorf("Submit status = %q, want queued", submitted.Status)
	}

	completed := waitForRunStatus(t, testServer.URL, submitted.RunID, run.StatusCompleted)

	if completed.RunID != submitted.RunID {
		t.Errorf("Snapshot run_id = %q, want %q", completed.RunID, submitted.RunID)
	}
	if len(completed.Result) == 0 {
		t.Error("Completed run should carry a result document")
	}
	if completed.Error != "" {
		t.Errorf("Completed run should carry no error, got %q", completed.Error)
	}
}

// Test that an invalid ticker is rejected before a run exists
func TestSubmitInvalidTickerRejected(t *testing.T) {
	srv, store := newTestServer(t, stubExecutor(`{}`))

	testServer := httptest.NewServer(srv.setupHTTPRoutes())
	defer testServer.Close()

	resp, err := http.Post(testServer.URL+"/api/analyses/NOT_A_TICKER", "application/json", nil)
	if err != nil {
		t.Fatalf("Failed to post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	if body["error"] == "" {
		t.Error("Error response should carry a message")
	}

	// Nothing was stored
	runs, err := store.ListRecent(run.DefaultListLimit)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("Expected no stored runs, got %d", len(runs))
	}
}

// Test that an unknown run ID returns not found
func TestGetUnknownRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor(`{}`))

	testServer := httptest.NewServer(srv.setupHTTPRoutes())
	defer testServer.Close()

	resp, err := http.Get(testServer.URL + "/api/analyses/no-such-run")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

// Test listing order and the limit parameter
func TestListRunsNewestFirst(t *testing.T) {
	srv, store := newTestServer(t, stubExecutor(`{}`))

	testServer := httptest.NewServer(srv.setupHTTPRoutes())
	defer testServer.Close()

	now := time.Now()
	for i, ticker := range []string{"AAPL", "MSFT", "NVDA"} {
		r := &run.Run{
			ID:        fmt.Sprintf("RUN_%03d", i),
			Ticker:    ticker,
			Status:    run.StatusQueued,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
			UpdatedAt: now.Add(time.Duration(i) * time.Second),
		}
		if err := store.Insert(r); err != nil {
			t.Fatalf("Failed to insert run: %v", err)
		}
	}

	resp, err := http.Get(testServer.URL + "/api/analyses?limit=2")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var listing ListRunsResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("Failed to decode listing: %v", err)
	}

	if listing.Count != 2 {
		t.Errorf("Count = %d, want 2", listing.Count)
	}
	if len(listing.Runs) != 2 {
		t.Fatalf("Runs length = %d, want 2", len(listing.Runs))
	}
	if listing.Runs[0].Ticker != "NVDA" {
		t.Errorf("First run ticker = %q, want NVDA (newest first)", listing.Runs[0].Ticker)
	}
	if listing.Runs[1].Ticker != "MSFT" {
		t.Errorf("Second run ticker = %q, want MSFT", listing.Runs[1].Ticker)
	}
}

// Test limit validation on the listing endpoint
func TestListRunsLimitValidation(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor(`{}`))

	testServer := httptest.NewServer(srv.setupHTTPRoutes())
	defer testServer.Close()

	// Non-numeric limit is a client error
	resp, err := http.Get(testServer.URL + "/api/analyses?limit=abc")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status for limit=abc = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	// Limits below one are rejected, not clamped
	resp, err = http.Get(testServer.URL + "/api/analyses?limit=0")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status for limit=0 = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	// Limits above the ceiling are clamped, not rejected
	resp, err = http.Get(testServer.URL + "/api/analyses?limit=5000")
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Status for limit=5000 = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

// Test that the listing endpoint only accepts GET
func TestListRunsMethodGuard(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor(`{}`))

	testServer := httptest.NewServer(srv.setupHTTPRoutes())
	defer testServer.Close()

	resp, err := http.Post(testServer.URL+"/api/analyses", "application/json", nil)
	if err != nil {
		t.Fatalf("Failed to post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

// Test the health endpoint with a reachable store
func TestHandleHealthOK(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor(`{}`))

	testServer := httptest.NewServer(srv.setupHTTPRoutes())
	defer testServer.Close()

	resp, err := http.Get(testServer.URL + "/health")
	if err != nil {
		t.Fatalf("Failed to get health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}

	if health["status"] != "ok" {
		t.Errorf("Health status = %v, want ok", health["status"])
	}
	if health["version"] == nil {
		t.Error("Health response missing version")
	}
}

// Test the status endpoint payload shape
func TestHandleStatus(t *testing.T) {
	srv, store := newTestServer(t, stubExecutor(`{}`))

	testServer := httptest.NewServer(srv.setupHTTPRoutes())
	defer testServer.Close()

	r := &run.Run{
		ID:        "RUN_STATUS",
		Ticker:    "AAPL",
		Status:    run.StatusCompleted,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.Insert(r); err != nil {
		t.Fatalf("Failed to insert run: %v", err)
	}

	resp, err := http.Get(testServer.URL + "/api/status")
	if err != nil {
		t.Fatalf("Failed to get status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}

	if status.InFlight != 0 {
		t.Errorf("InFlight = %d, want 0", status.InFlight)
	}
	if status.Runs == nil || status.Runs.Total != 1 {
		t.Errorf("Runs stats = %+v, want total 1", status.Runs)
	}
	if status.Reaper == nil {
		t.Error("Status response missing reaper stats")
	}
}

// Test CORS preflight and origin echoing
func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor(`{}`))

	testServer := httptest.NewServer(srv.setupHTTPRoutes())
	defer testServer.Close()

	req, err := http.NewRequest(http.MethodOptions, testServer.URL+"/api/analyses", nil)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Preflight request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Preflight status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Errorf("Allow-Origin = %q, want the request origin echoed", got)
	}
}

// Test origin rules when the config names specific origins
func TestOriginAllowed(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	srv := &MonetaServer{
		allowedOrigins: []string{"http://localhost", "https://app.example.com"},
		logger:         logger,
	}

	cases := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"https://app.example.com", true},
		{"http://evil.example.com", false},
		{"https://localhost", false},
	}

	for _, tc := range cases {
		if got := srv.originAllowed(tc.origin); got != tc.want {
			t.Errorf("originAllowed(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}

	wildcard := &MonetaServer{allowedOrigins: []string{"*"}, logger: logger}
	if !wildcard.originAllowed("http://anywhere.example.com") {
		t.Error("Wildcard config should allow any origin")
	}
}

// Test that the wire identifier key is run_id
func TestRunResponseWireFormat(t *testing.T) {
	r := &run.Run{
		ID:        "RUN_WIRE",
		Ticker:    "AAPL",
		Status:    run.StatusQueued,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	data, err := json.Marshal(newRunResponse(r))
	if err != nil {
		t.Fatalf("Failed to marshal run response: %v", err)
	}

	payload := string(data)
	if !strings.Contains(payload, `"run_id":"RUN_WIRE"`) {
		t.Errorf("Wire payload should carry run_id, got %s", payload)
	}
	if strings.Contains(payload, `"result"`) {
		t.Errorf("Queued run should omit result, got %s", payload)
	}
	if strings.Contains(payload, `"error"`) {
		t.Errorf("Queued run should omit error, got %s", payload)
	}
}
