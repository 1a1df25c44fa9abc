package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/moneta-labs/moneta/config"
)

// originAllowed checks an Origin header value against the configured
// allowed origins. A "*" entry allows everything; other entries match
// by prefix so any port number on an allowed host passes.
func (s *MonetaServer) originAllowed(origin string) bool {
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" {
			return true
		}
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// checkOrigin validates WebSocket upgrade origins. Requests with no
// Origin header (direct WebSocket clients, tests) are allowed.
func (s *MonetaServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return s.originAllowed(origin)
}

// isPortAvailable checks if a port is available for binding
func isPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	_ = listener.Close() // Error ignored: best-effort port check, caller will retry on actual bind
	return true
}

// findAvailablePort tries to find an available port starting from the requested port.
// It tries the requested port first, then the default server port, then a high
// fallback range (56787-56796) as a last resort.
func findAvailablePort(requestedPort int) (int, error) {
	if isPortAvailable(requestedPort) {
		return requestedPort, nil
	}

	if requestedPort != config.DefaultServerPort && isPortAvailable(config.DefaultServerPort) {
		return config.DefaultServerPort, nil
	}

	fallbackStart := 56787
	for i := 0; i < 10; i++ {
		port := fallbackStart + i
		if isPortAvailable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available ports found (tried %d, %d, and range 56787-56796)", requestedPort, config.DefaultServerPort)
}
