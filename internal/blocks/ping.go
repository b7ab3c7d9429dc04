package blocks

import (
	"context"
	"sync/atomic"

	"github.com/axiom-sdr/flowgraphd/internal/block"
	"github.com/axiom-sdr/flowgraphd/internal/pmt"
	"github.com/axiom-sdr/flowgraphd/internal/port"
)

// Ping is a pure message block with no stream ports: it answers every
// "ping" delivered to its "in" message input by posting "pong" on its
// "out" message output and replying pmt.Ok to a synchronous Call. It
// is a fixed-reply message round trip (S5's echo is Echo, below) and
// otherwise never runs Work — a
// message-only block's Work is called but has nothing to do, the same
// shape as the teacher's passthrough test kernel with the stream side
// dropped.
type Ping struct {
	name     string
	received atomic.Uint64
	answered atomic.Uint64
}

// NewPing creates a Ping block.
func NewPing(name string) *Ping {
	return &Ping{name: name}
}

func (p *Ping) Meta() block.Meta {
	return block.Meta{
		Name:           p.name,
		MessageInputs:  []port.MessageSpec{{Name: "in", Direction: port.Input}},
		MessageOutputs: []port.MessageSpec{{Name: "out", Direction: port.Output}},
	}
}

func (p *Ping) Work(ctx context.Context, io *block.WorkIO) (block.WorkStatus, error) {
	return block.StatusIdle, nil
}

func (p *Ping) MessageHandlers() map[string]block.MessageHandler {
	return map[string]block.MessageHandler{
		"in": p.handlePing,
	}
}

func (p *Ping) handlePing(ctx context.Context, msg pmt.Pmt, out *block.MessageOutputs) (pmt.Pmt, error) {
	p.received.Add(1)
	if err := out.Post(ctx, "out", pmt.String("pong")); err != nil {
		return pmt.Pmt{}, err
	}
	p.answered.Add(1)
	return pmt.Ok, nil
}

// Received reports the number of pings handled so far.
func (p *Ping) Received() uint64 { return p.received.Load() }

// Answered reports the number of pongs posted so far.
func (p *Ping) Answered() uint64 { return p.answered.Load() }

// Echo is a pure message block exposing a single "ping" input that
// replies with the exact value it received, with no forwarding side
// effect. It backs spec.md §8 scenario S5 literally ("a block whose
// ping input handler returns the PMT it received"), kept separate
// from Ping/"pong" above since that block's reply is a fixed pmt.Ok
// rather than an echo.
type Echo struct {
	name     string
	received atomic.Uint64
}

// NewEcho creates an Echo block.
func NewEcho(name string) *Echo {
	return &Echo{name: name}
}

func (e *Echo) Meta() block.Meta {
	return block.Meta{
		Name:          e.name,
		MessageInputs: []port.MessageSpec{{Name: "ping", Direction: port.Input}},
	}
}

func (e *Echo) Work(ctx context.Context, io *block.WorkIO) (block.WorkStatus, error) {
	return block.StatusIdle, nil
}

func (e *Echo) MessageHandlers() map[string]block.MessageHandler {
	return map[string]block.MessageHandler{
		"ping": e.handlePing,
	}
}

func (e *Echo) handlePing(ctx context.Context, msg pmt.Pmt, out *block.MessageOutputs) (pmt.Pmt, error) {
	e.received.Add(1)
	return msg, nil
}

// Received reports the number of calls handled so far.
func (e *Echo) Received() uint64 { return e.received.Load() }
