package blocks

import (
	"context"

	"github.com/axiom-sdr/flowgraphd/internal/block"
	"github.com/axiom-sdr/flowgraphd/internal/pmt"
	"github.com/axiom-sdr/flowgraphd/internal/port"
)

// ReloadRequester is the process-wide, once-initialized MPSC sender a
// FlowgraphController forwards control-port requests to. Per spec.md's
// redesign note, the sender is passed into this factory instead of
// reached through global state; the supervisor constructs one channel
// for its own lifetime and hands it to every graph it builds.
type ReloadRequester interface {
	RequestReload(ctx context.Context, configPath string) error
}

// FlowgraphController is the reserved BlockId 0 block: a pure message
// block exposing four ports — control (trigger a hot-swap), tx/rx
// (forwarded verbatim to tx_out/rx_out so external subscribers can
// observe a graph's message traffic without rewiring it), matching
// spec.md's "Reserved block ID 0" section exactly.
type FlowgraphController struct {
	requester ReloadRequester
}

// NewFlowgraphController creates a controller forwarding "control"
// requests to requester. requester may be nil, in which case control
// requests fail with an error reply rather than panicking.
func NewFlowgraphController(requester ReloadRequester) *FlowgraphController {
	return &FlowgraphController{requester: requester}
}

func (c *FlowgraphController) Meta() block.Meta {
	return block.Meta{
		Name: "FlowgraphController",
		MessageInputs: []port.MessageSpec{
			{Name: "control", Direction: port.Input},
			{Name: "tx", Direction: port.Input},
			{Name: "rx", Direction: port.Input},
		},
		MessageOutputs: []port.MessageSpec{
			{Name: "tx_out", Direction: port.Output},
			{Name: "rx_out", Direction: port.Output},
		},
		Controller: true,
	}
}

func (c *FlowgraphController) Work(ctx context.Context, io *block.WorkIO) (block.WorkStatus, error) {
	return block.StatusIdle, nil
}

func (c *FlowgraphController) MessageHandlers() map[string]block.MessageHandler {
	return map[string]block.MessageHandler{
		"control": c.handleControl,
		"tx":      c.handleTx,
		"rx":      c.handleRx,
	}
}

func (c *FlowgraphController) handleControl(ctx context.Context, msg pmt.Pmt, out *block.MessageOutputs) (pmt.Pmt, error) {
	path, ok := msg.AsString()
	if !ok {
		return pmt.Error("control: expected String configuration path, got %s", msg.Kind), nil
	}
	if c.requester == nil {
		return pmt.Error("control: no reload requester configured"), nil
	}
	if err := c.requester.RequestReload(ctx, path); err != nil {
		return pmt.Error("control: %v", err), nil
	}
	return pmt.Ok, nil
}

// handleTx forwards to tx_out with no validation. Whether non-blob
// messages should be rejected here is an open question; forwarding
// verbatim matches the original's tx handler and keeps this port
// usable for any PMT kind until that's settled.
func (c *FlowgraphController) handleTx(ctx context.Context, msg pmt.Pmt, out *block.MessageOutputs) (pmt.Pmt, error) {
	if err := out.Post(ctx, "tx_out", msg); err != nil {
		return pmt.Pmt{}, err
	}
	return pmt.Ok, nil
}

func (c *FlowgraphController) handleRx(ctx context.Context, msg pmt.Pmt, out *block.MessageOutputs) (pmt.Pmt, error) {
	if err := out.Post(ctx, "rx_out", msg); err != nil {
		return pmt.Pmt{}, err
	}
	return pmt.Ok, nil
}
