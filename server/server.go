// Package server exposes the analysis run lifecycle over HTTP:
// submission and query endpoints, health and status reporting, and a
// WebSocket feed of committed run transitions.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/moneta-labs/moneta/run"
)

// MonetaServer serves the analysis run API and the run event feed
type MonetaServer struct {
	store        *run.Store
	orchestrator *run.Orchestrator
	reaper       *run.Reaper // nil when the reaper is not wired in

	allowedOrigins []string // CORS and WebSocket origin rules

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// HTTP server with timeouts; set once Start binds a port
	httpServer *http.Server
	startedAt  time.Time

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger
}

// New creates a server over the given run store and orchestrator.
// The reaper is optional; when present its statistics appear in
// /api/status. Allowed origins gate both CORS and feed upgrades.
func New(store *run.Store, orchestrator *run.Orchestrator, reaper *run.Reaper, allowedOrigins []string, logger *zap.SugaredLogger) *MonetaServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &MonetaServer{
		store:          store,
		orchestrator:   orchestrator,
		reaper:         reaper,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		startedAt:      time.Now(),
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
	}
}

// Run starts the feed hub event loop: client registration and run
// event fan-out. It subscribes to the orchestrator's notifier for the
// hub's lifetime.
func (s *MonetaServer) Run() {
	events := s.orchestrator.Events().Subscribe()
	defer s.orchestrator.Events().Unsubscribe(events)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debugw("Feed hub stopping due to context cancellation")
			return
		case client := <-s.register:
			s.handleClientRegister(client)
		case client := <-s.unregister:
			s.handleClientUnregister(client)
		case r := <-events:
			s.broadcastRun(r)
		}
	}
}

// handleClientRegister handles a new feed client connection
func (s *MonetaServer) handleClientRegister(client *Client) {
	s.mu.Lock()

	if len(s.clients) >= MaxFeedClients {
		s.mu.Unlock()
		s.logger.Warnw("Max feed clients reached, rejecting connection",
			"client_id", client.id,
			"max_clients", MaxFeedClients,
		)
		client.close()
		return
	}

	s.clients[client] = true
	totalClients := len(s.clients)
	s.mu.Unlock()

	s.logger.Infow("Feed client connected",
		"client_id", client.id,
		"total_clients", totalClients,
	)
}

// handleClientUnregister handles a feed client disconnection
func (s *MonetaServer) handleClientUnregister(client *Client) {
	s.mu.Lock()
	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		totalClients := len(s.clients)
		s.mu.Unlock()

		client.close()

		s.logger.Infow("Feed client disconnected",
			"client_id", client.id,
			"total_clients", totalClients,
		)
		return
	}
	s.mu.Unlock()
}

// broadcastRun fans one committed transition out to every feed client.
// Sends are non-blocking; a client that cannot keep up misses events
// rather than stalling the hub.
func (s *MonetaServer) broadcastRun(r *run.Run) {
	msg := &RunEventMessage{
		Type:      "run_update",
		Run:       newRunResponse(r),
		Timestamp: time.Now().Unix(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- msg:
		default:
			s.logger.Warnw("Feed client send queue full, dropping event",
				"client_id", client.id,
				"run_id", msg.Run.RunID,
			)
		}
	}
}

// feedClientCount returns the number of connected feed clients
func (s *MonetaServer) feedClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
