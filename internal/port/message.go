package port

import (
	"context"
	"fmt"

	"github.com/axiom-sdr/flowgraphd/internal/pmt"
)

// MessageSpec describes one message port a block declares.
type MessageSpec struct {
	Name      string
	Direction Direction
}

// DefaultMailboxCapacity bounds how many pending messages an input
// port's mailbox holds before a sender blocks. Message traffic is
// control-plane, not data-plane, so a small bound is enough to absorb
// bursts without letting a stalled consumer grow memory without limit.
const DefaultMailboxCapacity = 64

// Envelope is one delivery into a Mailbox. Reply is nil for ordinary
// block-to-block fan-out, where a handler's return value has nowhere
// to go; it is set by a synchronous external Call, which blocks on
// Reply until the owning block's task invokes the port's handler and
// answers.
type Envelope struct {
	Msg   pmt.Pmt
	Reply chan<- Reply
}

// Reply carries a message handler's result back to a synchronous
// caller.
type Reply struct {
	Value pmt.Pmt
	Err   error
}

// Mailbox is the bounded inbox behind one message input port. Exactly
// one goroutine — the owning block's task — ever calls Chan's
// receive; any number of senders may call Send concurrently, since an
// input port can be the fan-out target of several upstream output
// ports, and may also receive a direct synchronous Call.
type Mailbox struct {
	ch chan Envelope
}

// NewMailbox creates a mailbox with the given capacity, or
// DefaultMailboxCapacity if capacity <= 0.
func NewMailbox(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultMailboxCapacity
	}
	return &Mailbox{ch: make(chan Envelope, capacity)}
}

// Send delivers a fire-and-forget message, blocking while the mailbox
// is full. It returns an error if ctx is cancelled before the message
// is accepted, so a sender can unwind during shutdown instead of
// blocking forever against a terminated consumer.
func (m *Mailbox) Send(ctx context.Context, p pmt.Pmt) error {
	return m.send(ctx, Envelope{Msg: p})
}

// Call delivers p and blocks until the owning task's handler for this
// port replies or ctx is cancelled. It is the synchronous path used
// by the external control endpoint; ordinary block-to-block message
// connections use Send instead.
func (m *Mailbox) Call(ctx context.Context, p pmt.Pmt) (pmt.Pmt, error) {
	replyCh := make(chan Reply, 1)
	if err := m.send(ctx, Envelope{Msg: p, Reply: replyCh}); err != nil {
		return pmt.Pmt{}, err
	}
	select {
	case r := <-replyCh:
		return r.Value, r.Err
	case <-ctx.Done():
		return pmt.Pmt{}, fmt.Errorf("mailbox: call cancelled awaiting reply: %w", ctx.Err())
	}
}

func (m *Mailbox) send(ctx context.Context, env Envelope) error {
	select {
	case m.ch <- env:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mailbox: send cancelled: %w", ctx.Err())
	}
}

// TrySend delivers a fire-and-forget message without blocking,
// reporting whether the mailbox had room.
func (m *Mailbox) TrySend(p pmt.Pmt) bool {
	select {
	case m.ch <- Envelope{Msg: p}:
		return true
	default:
		return false
	}
}

// Chan exposes the receive side for the scheduler's composite wake
// select; the owning block's task is the sole reader.
func (m *Mailbox) Chan() <-chan Envelope {
	return m.ch
}

// Len reports how many messages are currently queued.
func (m *Mailbox) Len() int {
	return len(m.ch)
}

// OutputFanout is the sending side of a message output port: the
// ordered list of mailboxes belonging to every input port connected
// to it. Posting delivers to each target in the order the
// connections were declared, matching the declarative loader's
// connection ordering.
type OutputFanout struct {
	targets []*Mailbox
}

// Connect appends a target mailbox, preserving declaration order.
func (f *OutputFanout) Connect(m *Mailbox) {
	f.targets = append(f.targets, m)
}

// Targets reports how many input ports this output fans out to.
func (f *OutputFanout) Targets() int {
	return len(f.targets)
}

// Post delivers p to every connected target in order, blocking on
// each as needed. It stops and returns the first error encountered
// (typically ctx cancellation during shutdown), leaving any remaining
// targets undelivered.
func (f *OutputFanout) Post(ctx context.Context, p pmt.Pmt) error {
	for _, m := range f.targets {
		if err := m.Send(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
