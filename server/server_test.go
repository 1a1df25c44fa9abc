package server

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/moneta-labs/moneta/run"
)

// fakeFeedClient builds a client without a connection for hub tests
func fakeFeedClient(srv *MonetaServer, id string, buffer int) *Client {
	return &Client{
		server: srv,
		send:   make(chan *RunEventMessage, buffer),
		id:     id,
	}
}

func TestNewServer(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor(`{}`))

	if srv.clients == nil {
		t.Error("Client map not initialized")
	}
	if srv.register == nil {
		t.Error("Register channel not initialized")
	}
	if srv.unregister == nil {
		t.Error("Unregister channel not initialized")
	}
	if srv.ctx == nil {
		t.Error("Context not initialized")
	}
}

// Test client registration and unregistration through the hub
func TestClientRegistration(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor(`{}`))
	go srv.Run()

	client := fakeFeedClient(srv, "test_client", FeedSendBufferSize)

	srv.register <- client
	time.Sleep(50 * time.Millisecond)

	if got := srv.feedClientCount(); got != 1 {
		t.Errorf("Client count after register = %d, want 1", got)
	}

	srv.unregister <- client
	time.Sleep(50 * time.Millisecond)

	if got := srv.feedClientCount(); got != 0 {
		t.Errorf("Client count after unregister = %d, want 0", got)
	}

	// Unregistration closes the send channel
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("Send channel should be closed, got a message instead")
		}
	case <-time.After(time.Second):
		t.Error("Send channel should be closed after unregister")
	}
}

// Test that the hub rejects clients beyond the cap
func TestMaxFeedClients(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor(`{}`))
	go srv.Run()

	for i := 0; i < MaxFeedClients; i++ {
		srv.register <- fakeFeedClient(srv, fmt.Sprintf("client_%d", i), 1)
	}
	time.Sleep(100 * time.Millisecond)

	if got := srv.feedClientCount(); got != MaxFeedClients {
		t.Fatalf("Client count = %d, want %d", got, MaxFeedClients)
	}

	rejected := fakeFeedClient(srv, "one_too_many", 1)
	srv.register <- rejected
	time.Sleep(50 * time.Millisecond)

	if got := srv.feedClientCount(); got != MaxFeedClients {
		t.Errorf("Client count after overflow = %d, want %d", got, MaxFeedClients)
	}

	// The rejected client's send channel is closed
	select {
	case _, ok := <-rejected.send:
		if ok {
			t.Error("Rejected client should have a closed send channel")
		}
	case <-time.After(time.Second):
		t.Error("Rejected client's send channel should be closed")
	}
}

// Test run event fan-out to connected clients
func TestBroadcastRunFanout(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor(`{}`))
	go srv.Run()

	first := fakeFeedClient(srv, "first", FeedSendBufferSize)
	second := fakeFeedClient(srv, "second", FeedSendBufferSize)
	srv.register <- first
	srv.register <- second
	time.Sleep(50 * time.Millisecond)

	rec := &run.Run{
		ID:        "RUN_BROADCAST",
		Ticker:    "AAPL",
		Status:    run.StatusRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	srv.broadcastRun(rec)

	for _, client := range []*Client{first, second} {
		select {
		case msg := <-client.send:
			if msg.Type != "run_update" {
				t.Errorf("Client %s message type = %q, want run_update", client.id, msg.Type)
			}
			if msg.Run == nil || msg.Run.RunID != "RUN_BROADCAST" {
				t.Errorf("Client %s received wrong run: %+v", client.id, msg.Run)
			}
			if msg.Timestamp == 0 {
				t.Errorf("Client %s message missing timestamp", client.id)
			}
		case <-time.After(time.Second):
			t.Errorf("Client %s never received the broadcast", client.id)
		}
	}
}

// Test that a client with a full send queue misses events instead of
// stalling the hub
func TestBroadcastDropsWhenClientSlow(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor(`{}`))
	go srv.Run()

	slow := fakeFeedClient(srv, "slow", 1)
	srv.register <- slow
	time.Sleep(50 * time.Millisecond)

	rec := &run.Run{
		ID:        "RUN_SLOW",
		Ticker:    "AAPL",
		Status:    run.StatusRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	// Second broadcast must not block even though the buffer is full
	done := make(chan struct{})
	go func() {
		srv.broadcastRun(rec)
		srv.broadcastRun(rec)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a slow client")
	}

	if got := len(slow.send); got != 1 {
		t.Errorf("Slow client buffered %d events, want 1", got)
	}
}

// Test that the hub loop stops when the context is cancelled
func TestHubStopsOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, stubExecutor(`{}`))

	stopped := make(chan struct{})
	go func() {
		srv.Run()
		close(stopped)
	}()

	time.Sleep(20 * time.Millisecond)
	srv.cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Hub did not stop after context cancellation")
	}
}

func TestIsPortAvailable(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to open listener: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	if isPortAvailable(port) {
		t.Errorf("Port %d is held open, should not be available", port)
	}

	listener.Close()

	if !isPortAvailable(port) {
		t.Errorf("Port %d was released, should be available", port)
	}
}

func TestFindAvailablePort(t *testing.T) {
	// A free port is returned as requested
	listener, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to open listener: %v", err)
	}
	freePort := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	got, err := findAvailablePort(freePort)
	if err != nil {
		t.Fatalf("findAvailablePort(%d) failed: %v", freePort, err)
	}
	if got != freePort {
		t.Errorf("findAvailablePort(%d) = %d, want the requested port", freePort, got)
	}

	// An occupied port falls back to an alternative
	occupied, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to open listener: %v", err)
	}
	defer occupied.Close()
	occupiedPort := occupied.Addr().(*net.TCPAddr).Port

	got, err = findAvailablePort(occupiedPort)
	if err != nil {
		t.Fatalf("findAvailablePort(%d) failed: %v", occupiedPort, err)
	}
	if got == occupiedPort {
		t.Errorf("findAvailablePort returned the occupied port %d", occupiedPort)
	}
}
