package blocks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/axiom-sdr/flowgraphd/internal/block"
	"github.com/axiom-sdr/flowgraphd/internal/pmt"
	"github.com/axiom-sdr/flowgraphd/internal/port"
)

type fakeRequester struct {
	lastPath string
	err      error
}

func (f *fakeRequester) RequestReload(ctx context.Context, configPath string) error {
	f.lastPath = configPath
	return f.err
}

func TestFlowgraphController_ControlRequestsReload(t *testing.T) {
	req := &fakeRequester{}
	c := NewFlowgraphController(req)
	handlers := c.MessageHandlers()

	reply, err := handlers["control"](context.Background(), pmt.String("graphs/b.toml"), nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !pmt.Equal(reply, pmt.Ok) {
		t.Errorf("reply = %v, want Ok", reply)
	}
	if req.lastPath != "graphs/b.toml" {
		t.Errorf("requested path = %q, want %q", req.lastPath, "graphs/b.toml")
	}
}

func TestFlowgraphController_ControlRejectsNonString(t *testing.T) {
	c := NewFlowgraphController(&fakeRequester{})
	handlers := c.MessageHandlers()

	reply, err := handlers["control"](context.Background(), pmt.U32(1), nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	s, ok := reply.AsString()
	if !ok || !strings.Contains(s, "expected String") {
		t.Errorf("reply = %v, want an error string mentioning the expected type", reply)
	}
}

func TestFlowgraphController_ControlPropagatesRequesterError(t *testing.T) {
	req := &fakeRequester{err: errors.New("build failed")}
	c := NewFlowgraphController(req)
	handlers := c.MessageHandlers()

	reply, err := handlers["control"](context.Background(), pmt.String("bad.toml"), nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	s, ok := reply.AsString()
	if !ok || !strings.Contains(s, "build failed") {
		t.Errorf("reply = %v, want an error string mentioning the underlying failure", reply)
	}
}

func TestFlowgraphController_TxForwardsVerbatimToTxOut(t *testing.T) {
	c := NewFlowgraphController(nil)
	handlers := c.MessageHandlers()

	target := port.NewMailbox(1)
	fanout := &port.OutputFanout{}
	fanout.Connect(target)
	out := block.NewMessageOutputs(map[string]*port.OutputFanout{"tx_out": fanout})

	msg := pmt.U32(42)
	if _, err := handlers["tx"](context.Background(), msg, out); err != nil {
		t.Fatalf("handler: %v", err)
	}

	select {
	case env := <-target.Chan():
		if !pmt.Equal(env.Msg, msg) {
			t.Errorf("forwarded = %v, want %v", env.Msg, msg)
		}
	default:
		t.Fatal("expected tx to be forwarded to tx_out")
	}
}

func TestFlowgraphController_ReservesBlockIDZero(t *testing.T) {
	c := NewFlowgraphController(nil)
	if !c.Meta().Controller {
		t.Error("Meta().Controller = false, want true")
	}
}
