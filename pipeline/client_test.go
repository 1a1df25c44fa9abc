package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/moneta-labs/moneta/errors"
)

// TestClientAnalyze_Success verifies a completed pipeline call returns the result verbatim
func TestClientAnalyze_Success(t *testing.T) {
	resultDoc := `{"ticker":"AAPL","verdict":"buy","advisors":{"graham":"buy","burry":"hold"}}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analyze", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		var req map[string]interface{}
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.Equal(t, "AAPL", req["ticker"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"result":  json.RawMessage(resultDoc),
		})
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, zap.NewNop().Sugar())

	result, err := client.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.JSONEq(t, resultDoc, string(result))
}

// TestClientAnalyze_PipelineFailure verifies pipeline-reported failures become errors
func TestClientAnalyze_PipelineFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "advisor quorum could not be reached",
		})
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, zap.NewNop().Sugar())

	result, err := client.Analyze(context.Background(), "AAPL")
	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "advisor quorum")
}

// TestClientAnalyze_HTTPError verifies non-200 responses become errors
func TestClientAnalyze_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pipeline overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, zap.NewNop().Sugar())

	_, err := client.Analyze(context.Background(), "AAPL")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "pipeline overloaded")
}

// TestClientAnalyze_MalformedResponse verifies unparseable bodies are reported
func TestClientAnalyze_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, zap.NewNop().Sugar())

	_, err := client.Analyze(context.Background(), "AAPL")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse pipeline response")
}

// TestClientAnalyze_SuccessWithoutResult verifies an empty result document is rejected
func TestClientAnalyze_SuccessWithoutResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
		})
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, zap.NewNop().Sugar())

	_, err := client.Analyze(context.Background(), "AAPL")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "without a result document")
}

// TestClientAnalyze_RespectsDeadline verifies the context deadline bounds the call
func TestClientAnalyze_RespectsDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL}, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Analyze(ctx, "AAPL")
	assert.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// TestClientAnalyze_ServerUnavailable verifies connection errors are handled
func TestClientAnalyze_ServerUnavailable(t *testing.T) {
	client := NewClient(Config{URL: "http://invalid-host-12345:9999"}, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately to fail fast

	_, err := client.Analyze(ctx, "AAPL")
	assert.Error(t, err)
}
