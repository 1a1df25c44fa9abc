package run

import (
	"sync"
)

// SubscriberChannelBufferSize is the buffer size for run event channels.
// A slow consumer drops events rather than stalling status transitions.
const SubscriberChannelBufferSize = 100

// Notifier fans committed run transitions out to subscribers.
// The WebSocket feed and tests consume these events; the lifecycle
// itself never depends on them being delivered.
type Notifier struct {
	mu          sync.RWMutex
	subscribers []chan *Run
}

// NewNotifier creates an empty run notifier
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Subscribe returns a channel that receives run snapshots on every
// committed transition. Callers must Unsubscribe when done.
func (n *Notifier) Subscribe() chan *Run {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan *Run, SubscriberChannelBufferSize) // Buffered to avoid blocking
	n.subscribers = append(n.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel.
// The channel is NOT closed by this method - callers should close it
// themselves after unsubscribing if needed. This prevents double-close
// panics.
func (n *Notifier) Unsubscribe(ch chan *Run) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, sub := range n.subscribers {
		if sub == ch {
			// Remove from slice without closing - caller manages channel lifecycle
			n.subscribers = append(n.subscribers[:i], n.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends a snapshot of the run to all subscribers.
// The run is copied first so later mutation by the publisher never
// races a subscriber. Sends are non-blocking; a full channel drops
// the event.
func (n *Notifier) Publish(run *Run) {
	snapshot := *run

	n.mu.RLock()
	defer n.mu.RUnlock()

	for _, ch := range n.subscribers {
		select {
		case ch <- &snapshot:
			// Sent successfully
		default:
			// Channel full, skip (non-blocking)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (n *Notifier) SubscriberCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subscribers)
}
