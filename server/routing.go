package server

import (
	"net/http"
)

// setupHTTPRoutes builds the route table for the analysis run API
func (s *MonetaServer) setupHTTPRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/analyses/", s.corsMiddleware(s.HandleAnalysis)) // Submit (POST {ticker}) and single-run snapshot (GET {run_id})
	mux.HandleFunc("/api/analyses", s.corsMiddleware(s.HandleAnalyses))  // List recent runs (GET)
	mux.HandleFunc("/api/status", s.corsMiddleware(s.HandleStatus))      // Orchestrator, store and reaper statistics (GET)
	mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	mux.HandleFunc("/ws/runs", s.corsMiddleware(s.HandleRunsFeed)) // WebSocket feed of run transitions

	return mux
}

// corsMiddleware adds CORS headers using the configured allowed origins.
// The same origin rules gate WebSocket upgrades.
func (s *MonetaServer) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		// If origin is present and allowed by config, set CORS headers
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}
