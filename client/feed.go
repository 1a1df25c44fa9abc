package client

import (
	"context"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/moneta-labs/moneta/errors"
)

// RunEvent is one message from the server's run feed
type RunEvent struct {
	Type      string `json:"type"`
	Run       *Run   `json:"run"`
	Timestamp int64  `json:"timestamp"`
}

// WatchRuns subscribes to the server's run transition feed and invokes
// handle for every event. It blocks until the context is cancelled
// (returning nil) or the connection drops (returning the read error).
func (c *Client) WatchRuns(ctx context.Context, handle func(*RunEvent)) error {
	feedURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws/runs"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, feedURL, nil)
	if err != nil {
		return errors.Wrapf(err, "failed to connect to run feed at %s", feedURL)
	}
	defer conn.Close()

	// Close the connection when the context ends so ReadJSON unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event RunEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "run feed closed")
		}
		handle(&event)
	}
}
