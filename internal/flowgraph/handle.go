package flowgraph

import (
	"context"
	"log/slog"
	"sync"

	"github.com/axiom-sdr/flowgraphd/internal/blockrun"
	"github.com/axiom-sdr/flowgraphd/internal/pmt"
	"github.com/axiom-sdr/flowgraphd/internal/port"
)

// Handle is the immutable, running form of a flowgraph returned by
// Builder.Start. Its topology cannot change; only its running state
// can, through Call, Terminate, and TerminateAndWait.
type Handle struct {
	logger    *slog.Logger
	cancel    context.CancelFunc
	tasks     []*blockrun.Task
	mailboxes []map[string]*port.Mailbox
	streamOut []map[string]blockrun.StreamHandle
	wg        *sync.WaitGroup
	blocks    []blockEntry

	terminateOnce sync.Once
}

// EdgeStat is a point-in-time occupancy reading for one stream edge,
// keyed by its producing block and output port — the control
// endpoint's and metrics exporter's view into ring buffer fill level.
type EdgeStat struct {
	BlockID  BlockID
	Block    string
	Port     string
	Len      int
	Capacity int
}

// EdgeStats returns an occupancy snapshot of every stream edge in the
// graph, for the metrics exporter's ring-buffer-occupancy gauge.
func (h *Handle) EdgeStats() []EdgeStat {
	var out []EdgeStat
	for i, byPort := range h.streamOut {
		for name, sh := range byPort {
			if sh.Edge == nil {
				continue
			}
			out = append(out, EdgeStat{
				BlockID:  BlockID(i),
				Block:    h.blocks[i].name,
				Port:     name,
				Len:      sh.Edge.Len(),
				Capacity: sh.Edge.Capacity(),
			})
		}
	}
	return out
}

// MailboxStat is a point-in-time occupancy reading for one message
// input port's mailbox.
type MailboxStat struct {
	BlockID BlockID
	Block   string
	Port    string
	Len     int
}

// MailboxStats returns an occupancy snapshot of every message input
// mailbox in the graph, for the metrics exporter's mailbox-depth
// gauge.
func (h *Handle) MailboxStats() []MailboxStat {
	var out []MailboxStat
	for i, byPort := range h.mailboxes {
		for name, m := range byPort {
			out = append(out, MailboxStat{BlockID: BlockID(i), Block: h.blocks[i].name, Port: name, Len: m.Len()})
		}
	}
	return out
}

// BlockCount returns the number of blocks in the graph, for the
// metrics exporter's active-block-task gauge.
func (h *Handle) BlockCount() int {
	return len(h.blocks)
}

// BlockDescription is the control endpoint's JSON view of one block.
type BlockDescription struct {
	ID             BlockID  `json:"id"`
	Name           string   `json:"name"`
	StreamInputs   []string `json:"stream_inputs"`
	StreamOutputs  []string `json:"stream_outputs"`
	MessageInputs  []string `json:"message_inputs"`
	MessageOutputs []string `json:"message_outputs"`
}

// Description returns a static snapshot of the graph's topology,
// suitable for the control endpoint's GET /api/fg/{id}/.
func (h *Handle) Description() []BlockDescription {
	out := make([]BlockDescription, len(h.blocks))
	for i, entry := range h.blocks {
		d := BlockDescription{ID: BlockID(i), Name: entry.name}
		for _, s := range entry.meta.StreamInputs {
			d.StreamInputs = append(d.StreamInputs, s.Name)
		}
		for _, s := range entry.meta.StreamOutputs {
			d.StreamOutputs = append(d.StreamOutputs, s.Name)
		}
		for _, s := range entry.meta.MessageInputs {
			d.MessageInputs = append(d.MessageInputs, s.Name)
		}
		for _, s := range entry.meta.MessageOutputs {
			d.MessageOutputs = append(d.MessageOutputs, s.Name)
		}
		out[i] = d
	}
	return out
}

// ControllerBlockID reports BlockID 0 when the graph's first block is
// a controller block, per the reserved-slot convention.
func (h *Handle) ControllerBlockID() (BlockID, bool) {
	if len(h.blocks) == 0 || !h.blocks[0].meta.Controller {
		return 0, false
	}
	return 0, true
}

func (h *Handle) mailbox(id BlockID, portName string) (*port.Mailbox, error) {
	if id < 0 || int(id) >= len(h.blocks) {
		return nil, &CallError{BlockID: id, Port: portName, Reason: "block id out of range"}
	}
	m, ok := h.mailboxes[id][portName]
	if !ok {
		return nil, &CallError{BlockID: id, Port: portName, Reason: "no such message input port"}
	}
	return m, nil
}

// Call delivers value to blockID's named message input port and
// blocks for the handler's reply, used by the external control
// endpoint to implement a synchronous {flowgraph, block, port, value}
// request.
func (h *Handle) Call(ctx context.Context, blockID BlockID, portName string, value pmt.Pmt) (pmt.Pmt, error) {
	m, err := h.mailbox(blockID, portName)
	if err != nil {
		return pmt.Pmt{}, err
	}
	reply, err := m.Call(ctx, value)
	if err != nil {
		return pmt.Pmt{}, &CallError{BlockID: blockID, Port: portName, Reason: "call failed", Err: err}
	}
	return reply, nil
}

// Post delivers value to blockID's named message input port without
// waiting for a reply, used for internal fire-and-forget
// notifications (e.g. the supervisor pinging a controller block's
// rx port after a hot-swap).
func (h *Handle) Post(ctx context.Context, blockID BlockID, portName string, value pmt.Pmt) error {
	m, err := h.mailbox(blockID, portName)
	if err != nil {
		return err
	}
	if err := m.Send(ctx, value); err != nil {
		return &CallError{BlockID: blockID, Port: portName, Reason: "post failed", Err: err}
	}
	return nil
}

// Terminate signals every block task to stop, without waiting for
// them to actually exit. Use TerminateAndWait when the caller must
// not proceed until the graph has fully stopped (e.g. before starting
// its replacement during a hot swap).
func (h *Handle) Terminate() {
	h.terminateOnce.Do(h.cancel)
}

// TerminateAndWait signals termination and blocks until every block
// task has exited or ctx is done, whichever comes first.
func (h *Handle) TerminateAndWait(ctx context.Context) error {
	h.Terminate()

	doneCh := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Errs returns the runtime error reported by each block task that
// stopped abnormally, keyed by BlockID. An empty map means every
// block that has stopped did so cleanly (StatusDone or cancellation).
func (h *Handle) Errs() map[BlockID]error {
	out := make(map[BlockID]error)
	for i, t := range h.tasks {
		if err := t.Err(); err != nil {
			out[BlockID(i)] = &RuntimeError{BlockID: BlockID(i), Name: h.blocks[i].name, Err: err}
		}
	}
	return out
}
