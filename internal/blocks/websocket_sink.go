package blocks

import (
	"context"
	"fmt"

	"github.com/axiom-sdr/flowgraphd/internal/block"
	"github.com/axiom-sdr/flowgraphd/internal/pmt"
	"github.com/axiom-sdr/flowgraphd/internal/port"
)

// Broadcaster is the subset of the control endpoint's notification
// channel a WebsocketPmtSink needs: push a string to every connected
// subscriber. Defined here, not imported from internal/control, so
// this package has no dependency on the control endpoint's HTTP/WS
// machinery — cmd/flowgraphd passes its *control.Server to the
// supervisor, which hands it to the loader as this interface when
// building a graph.
type Broadcaster interface {
	Broadcast(message string)
}

// WebsocketPmtSink is a message-only block that renders every PMT
// delivered to its "in" port to a string and broadcasts it on the
// control endpoint's second WebSocket channel (spec.md §5: "a second
// WebSocket channel broadcasts string notifications ... sent from
// inside blocks via their outgoing message ports"). It has no message
// output of its own; the broadcast target is external.
type WebsocketPmtSink struct {
	name        string
	broadcaster Broadcaster
}

// NewWebsocketPmtSink creates a sink broadcasting through b. b may be
// nil in tests; messages are then silently dropped.
func NewWebsocketPmtSink(name string, b Broadcaster) *WebsocketPmtSink {
	return &WebsocketPmtSink{name: name, broadcaster: b}
}

func (w *WebsocketPmtSink) Meta() block.Meta {
	return block.Meta{
		Name:          w.name,
		MessageInputs: []port.MessageSpec{{Name: "in", Direction: port.Input}},
	}
}

func (w *WebsocketPmtSink) Work(ctx context.Context, io *block.WorkIO) (block.WorkStatus, error) {
	return block.StatusIdle, nil
}

func (w *WebsocketPmtSink) MessageHandlers() map[string]block.MessageHandler {
	return map[string]block.MessageHandler{
		"in": w.handleIn,
	}
}

func (w *WebsocketPmtSink) handleIn(ctx context.Context, msg pmt.Pmt, out *block.MessageOutputs) (pmt.Pmt, error) {
	if w.broadcaster != nil {
		w.broadcaster.Broadcast(renderPmt(msg))
	}
	return pmt.Ok, nil
}

// renderPmt produces the human-readable string a WebsocketPmtSink
// broadcasts for one message. Strings and blobs pass through as-is;
// every other kind falls back to pmt.Pmt's String form (e.g. "U32(7)").
func renderPmt(msg pmt.Pmt) string {
	if s, ok := msg.AsString(); ok {
		return s
	}
	if b, ok := msg.AsBlob(); ok {
		return string(b)
	}
	return fmt.Sprintf("%v", msg)
}
