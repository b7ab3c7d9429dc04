// Package events provides a publish/subscribe event bus for operational
// observability. In this module only the hot-swap supervisor
// publishes (the graph_* and reload_* kinds); the block_* and call_*
// kinds below have no publisher, and nothing outside the tests
// subscribes. The bus is
// nil-safe: calling Publish on a nil *Bus is a no-op, so components do
// not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceScheduler identifies events from a block's task
	// (internal/blockrun): lifecycle transitions of one running block.
	SourceScheduler = "scheduler"
	// SourceSupervisor identifies events from the hot-swap supervisor:
	// reload requests, terminate-and-drain, graph swaps.
	SourceSupervisor = "supervisor"
	// SourceLoader identifies events from the declarative loader
	// parsing and instantiating a graph description.
	SourceLoader = "loader"
	// SourceControl identifies events from the external HTTP/WebSocket
	// control endpoint.
	SourceControl = "control"
)

// Kind constants describe the type of event within a source.
const (
	// KindBlockStarted signals a block's task goroutine began running.
	// Data: flowgraph_id, block_id, block_name.
	KindBlockStarted = "block_started"
	// KindBlockFinished signals a block's kernel reported StatusDone.
	// Data: flowgraph_id, block_id, block_name.
	KindBlockFinished = "block_finished"
	// KindBlockError signals a block's kernel returned an error and
	// its task terminated it.
	// Data: flowgraph_id, block_id, block_name, error.
	KindBlockError = "block_error"

	// KindGraphStarted signals a flowgraph finished freeze validation
	// and every block task has been spawned.
	// Data: graph_id, config.
	KindGraphStarted = "graph_started"
	// KindGraphTerminated signals TerminateAndWait returned: every
	// block task has exited.
	// Data: none.
	KindGraphTerminated = "graph_terminated"

	// KindReloadRequested signals the supervisor accepted a hot-swap
	// request.
	// Data: request_id, config.
	KindReloadRequested = "reload_requested"
	// KindReloadSucceeded signals a hot-swap completed: the new graph
	// is running and, if it has a controller, has been notified.
	// Data: request_id, graph_id.
	KindReloadSucceeded = "reload_succeeded"
	// KindReloadFailed signals a hot-swap's parse, build or start step
	// failed; the slot is empty and the supervisor waits its retry
	// backoff before taking the next reload request.
	// Data: request_id, error.
	KindReloadFailed = "reload_failed"

	// KindCallReceived signals the control endpoint accepted an
	// external {flowgraph, block, port, value} call.
	// Data: flowgraph_id, block_id, port.
	KindCallReceived = "call_received"
	// KindCallCompleted signals an external call's reply was sent.
	// Data: flowgraph_id, block_id, port, ok, duration_ms.
	KindCallCompleted = "call_completed"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
