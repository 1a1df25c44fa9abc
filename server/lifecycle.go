package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/moneta-labs/moneta/errors"
)

// ReadHeaderTimeout bounds how long a client may take to send request
// headers before the connection is dropped
const ReadHeaderTimeout = 10 * time.Second

// Start runs the feed hub and serves HTTP on the requested port,
// falling back to a nearby port when it is taken. Blocks until the
// listener fails or Stop shuts it down.
func (s *MonetaServer) Start(port int) error {
	// Start the hub in a goroutine
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run()
	}()

	// Find an available port
	actualPort, err := findAvailablePort(port)
	if err != nil {
		return errors.Wrap(err, "failed to find available port")
	}

	if actualPort != port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", port,
			"actual_port", actualPort,
		)
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", actualPort),
		Handler:           s.setupHTTPRoutes(),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	s.logger.Infow("Server ready",
		"url", fmt.Sprintf("http://localhost:%d", actualPort),
		"port", actualPort,
	)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "HTTP server failed")
	}
	return nil
}

// Stop gracefully shuts down the HTTP listener, closes feed
// connections and waits for server goroutines to settle
func (s *MonetaServer) Stop() error {
	s.logger.Infow("Initiating server shutdown")

	s.mu.RLock()
	httpServer := s.httpServer
	s.mu.RUnlock()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnw("HTTP listener shutdown incomplete", "error", err)
		}
	}

	// Close feed connections BEFORE cancelling the context so read
	// pumps unblock and unregister while the hub still runs
	s.mu.Lock()
	clientsToClose := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clientsToClose = append(clientsToClose, client)
		delete(s.clients, client)
	}
	s.mu.Unlock()

	if len(clientsToClose) > 0 {
		s.logger.Infow("Closing feed connections", "count", len(clientsToClose))
		for _, client := range clientsToClose {
			client.conn.Close() // Close connection to unblock readPump
		}
	}

	// Cancel context to signal all server goroutines to stop
	if s.cancel != nil {
		s.cancel()
	}

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("All server goroutines stopped cleanly")
	case <-time.After(ShutdownTimeout):
		s.logger.Warnw("Server goroutine shutdown timed out",
			"timeout", ShutdownTimeout,
		)
	}

	s.logger.Infow("Server shutdown complete")
	return nil
}
