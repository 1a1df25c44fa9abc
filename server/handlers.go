package server

// This file contains HTTP handler methods for MonetaServer.
// It provides HTTP endpoints for:
// - Run submission and single-run snapshots (HandleAnalysis)
// - Recent run listing (HandleAnalyses)
// - Health checks (HandleHealth)
// - Orchestrator status (HandleStatus)

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/moneta-labs/moneta/run"
	"github.com/moneta-labs/moneta/version"
)

// HandleAnalyses handles requests to /api/analyses
// GET: list recent runs, newest first (?limit=, default 20, max 100)
func (s *MonetaServer) HandleAnalyses(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	limit := run.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid limit %q", raw))
			return
		}
		// The store clamps limits above the ceiling and rejects limits below one
		limit = parsed
	}

	runs, err := s.store.ListRecent(limit)
	if err != nil {
		writeRunError(w, s.logger, err, "failed to list runs")
		return
	}

	summaries := make([]*RunSummaryResponse, 0, len(runs))
	for _, rec := range runs {
		summaries = append(summaries, newRunSummaryResponse(rec.Summarize()))
	}

	writeJSON(w, http.StatusOK, &ListRunsResponse{Runs: summaries, Count: len(summaries)})
}

// HandleAnalysis handles requests to /api/analyses/{...}
// POST /api/analyses/{ticker}: queue a new analysis run (202)
// GET  /api/analyses/{run_id}: full snapshot of one run
func (s *MonetaServer) HandleAnalysis(w http.ResponseWriter, r *http.Request) {
	pathParts := extractPathParts(r.URL.Path, "/api/analyses/")
	if len(pathParts) == 0 || pathParts[0] == "" {
		writeError(w, http.StatusBadRequest, "Missing ticker or run ID")
		return
	}

	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r, pathParts[0])
	case http.MethodGet:
		s.handleGetRun(w, r, pathParts[0])
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleSubmit queues a new analysis run for the ticker. The response
// returns before execution starts; callers observe progress through
// GET or the event feed.
func (s *MonetaServer) handleSubmit(w http.ResponseWriter, r *http.Request, ticker string) {
	s.logger.Infow("Analysis submission received",
		"ticker", ticker,
		"remote", r.RemoteAddr,
	)

	queued, err := s.orchestrator.Submit(ticker)
	if err != nil {
		writeRunError(w, s.logger, err, "failed to queue analysis run")
		return
	}

	writeJSON(w, http.StatusAccepted, newSubmitResponse(queued))
}

// handleGetRun returns the current snapshot of one run
func (s *MonetaServer) handleGetRun(w http.ResponseWriter, r *http.Request, runID string) {
	snapshot, err := s.store.Get(runID)
	if err != nil {
		writeRunError(w, s.logger, err, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, newRunResponse(snapshot))
}

// HandleHealth serves the health check endpoint with version info.
// The check confirms the run store is reachable; a database that
// cannot be pinged reports degraded with a 503.
func (s *MonetaServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.Get()

	health := map[string]interface{}{
		"status":     "ok",
		"version":    versionInfo.Version,
		"commit":     versionInfo.CommitHash,
		"build_time": versionInfo.BuildTime,
	}

	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Errorw("Health check failed, run store unreachable", "error", err)
		health["status"] = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}

	writeJSON(w, http.StatusOK, health)
}

// HandleStatus serves orchestrator statistics: in-flight executions,
// run counts by lifecycle state, reaper progress and system memory
func (s *MonetaServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := s.store.GetStats()
	if err != nil {
		writeRunError(w, s.logger, err, "failed to get run statistics")
		return
	}

	status := &StatusResponse{
		InFlight:      s.orchestrator.InFlight(),
		Runs:          stats,
		Memory:        memoryStatus(),
		FeedClients:   s.feedClientCount(),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	}
	if s.reaper != nil {
		status.Reaper = s.reaper.GetStats()
	}

	writeJSON(w, http.StatusOK, status)
}
