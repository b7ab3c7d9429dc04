// Package block defines the Kernel interface every dataflow block
// implements, and the WorkIO/MessageOutputs types the scheduler hands
// to a kernel on each invocation.
package block

import (
	"context"
	"time"

	"github.com/axiom-sdr/flowgraphd/internal/pmt"
	"github.com/axiom-sdr/flowgraphd/internal/port"
)

// WorkStatus reports what a Work call accomplished, telling the
// scheduler whether to reschedule the block immediately, wait for a
// wake signal, or retire the block's task entirely.
type WorkStatus int

const (
	// StatusOK means the block made progress (consumed or produced
	// at least one item) and may have more to do right away.
	StatusOK WorkStatus = iota
	// StatusIdle means the block made no progress this call and
	// should not run again until a wake source fires.
	StatusIdle
	// StatusDone means the block has permanently finished: it will
	// never produce or consume again, and every output stream it
	// owns should be closed.
	StatusDone
)

func (s WorkStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusIdle:
		return "idle"
	case StatusDone:
		return "done"
	default:
		return "unknown"
	}
}

// MessageHandler processes one message delivered to a block's
// message input port and returns the reply PMT used to acknowledge a
// synchronous Call (Ok / a value / an error string), posting any
// onward messages to out as a side effect.
type MessageHandler func(ctx context.Context, msg pmt.Pmt, out *MessageOutputs) (pmt.Pmt, error)

// Meta describes a block's fixed port layout, declared once at
// construction and never changed after the flowgraph is built.
type Meta struct {
	Name           string
	StreamInputs   []port.StreamSpec
	StreamOutputs  []port.StreamSpec
	MessageInputs  []port.MessageSpec
	MessageOutputs []port.MessageSpec

	// Controller marks a block that must occupy BlockId 0. At most
	// one block in a flowgraph may set this.
	Controller bool
}

// Kernel is the unit of work a block contributes to the flowgraph.
// Implementations are expected to be simple value-holding structs;
// all concurrency safety for a single block's state is provided by
// the scheduler's guarantee that only one goroutine ever calls into
// a given Kernel at a time.
type Kernel interface {
	// Meta returns the block's port layout. Called once, at
	// registration time.
	Meta() Meta

	// Work advances the block using the stream buffers in io. It may
	// read from StreamEdge backings declared as inputs and write to
	// those declared as outputs, then report a WorkStatus.
	Work(ctx context.Context, io *WorkIO) (WorkStatus, error)

	// MessageHandlers returns the dispatch table for this block's
	// message input ports, keyed by port name. A port name present in
	// Meta().MessageInputs but absent here receives no handling and
	// any Call against it fails at the flowgraph level.
	MessageHandlers() map[string]MessageHandler
}

// WorkIO is the per-call view a Work implementation receives: the
// stream edges connected to each of its declared ports, in the same
// order as Meta().StreamInputs / Meta().StreamOutputs, plus a way to
// ask the scheduler to run this block again without waiting for
// another wake source.
type WorkIO struct {
	Inputs  []port.StreamEdge
	Outputs []port.StreamEdge

	notify func()
	wake   time.Duration
}

// NewWorkIO constructs a WorkIO. notify is called by NotifyWork; it
// is owned by the scheduler's per-block task.
func NewWorkIO(inputs, outputs []port.StreamEdge, notify func()) *WorkIO {
	return &WorkIO{Inputs: inputs, Outputs: outputs, notify: notify}
}

// NotifyWork requests an immediate re-invocation of Work, used by
// blocks whose readiness depends on state the scheduler can't observe
// from the stream buffers alone (a timer, an external event).
func (io *WorkIO) NotifyWork() {
	if io.notify != nil {
		io.notify()
	}
}

// WakeAfter requests that the scheduler re-invoke Work no later than d
// after the current call returns, even though no stream edge or
// message port became ready in the meantime. A block reports
// StatusIdle after calling WakeAfter when it cannot make progress yet
// for a time-based reason rather than a port-readiness one — a rate
// limiter waiting for its next permitted sample, for instance.
func (io *WorkIO) WakeAfter(d time.Duration) {
	io.wake = d
}

// ConsumeWakeAfter returns the duration requested by the most recent
// WakeAfter call since the last ConsumeWakeAfter, clearing it. ok is
// false if no wake was requested, in which case d is zero.
func (io *WorkIO) ConsumeWakeAfter() (d time.Duration, ok bool) {
	d, io.wake = io.wake, 0
	return d, d > 0
}

// MessageOutputs lets a Work or MessageHandler call post to a
// block's declared message output ports by name.
type MessageOutputs struct {
	fanouts map[string]*port.OutputFanout
}

// NewMessageOutputs wraps the fan-out targets assembled for a block
// at flowgraph build time, keyed by the block's own output port
// names.
func NewMessageOutputs(fanouts map[string]*port.OutputFanout) *MessageOutputs {
	return &MessageOutputs{fanouts: fanouts}
}

// Post delivers msg to every input port connected to the named output
// port, in connection order. Posting to a port with no connections is
// a silent no-op.
func (m *MessageOutputs) Post(ctx context.Context, outputPort string, msg pmt.Pmt) error {
	fanout, ok := m.fanouts[outputPort]
	if !ok {
		return nil
	}
	return fanout.Post(ctx, msg)
}
