package blocks

import (
	"context"
	"testing"

	"github.com/axiom-sdr/flowgraphd/internal/pmt"
)

type recordingBroadcaster struct {
	messages []string
}

func (b *recordingBroadcaster) Broadcast(message string) {
	b.messages = append(b.messages, message)
}

func TestWebsocketPmtSink_BroadcastsStringPayloads(t *testing.T) {
	bc := &recordingBroadcaster{}
	sink := NewWebsocketPmtSink("ws", bc)
	handler := sink.MessageHandlers()["in"]

	if _, err := handler(context.Background(), pmt.String("reload"), nil); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(bc.messages) != 1 || bc.messages[0] != "reload" {
		t.Errorf("messages = %v, want [\"reload\"]", bc.messages)
	}
}

func TestWebsocketPmtSink_BroadcastsBlobAsString(t *testing.T) {
	bc := &recordingBroadcaster{}
	sink := NewWebsocketPmtSink("ws", bc)
	handler := sink.MessageHandlers()["in"]

	if _, err := handler(context.Background(), pmt.Blob([]byte("raw")), nil); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(bc.messages) != 1 || bc.messages[0] != "raw" {
		t.Errorf("messages = %v, want [\"raw\"]", bc.messages)
	}
}

func TestWebsocketPmtSink_NilBroadcasterDropsSilently(t *testing.T) {
	sink := NewWebsocketPmtSink("ws", nil)
	handler := sink.MessageHandlers()["in"]

	if _, err := handler(context.Background(), pmt.U32(7), nil); err != nil {
		t.Fatalf("handler with nil broadcaster: %v", err)
	}
}
