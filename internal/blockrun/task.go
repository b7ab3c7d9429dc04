package blockrun

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/axiom-sdr/flowgraphd/internal/block"
	"github.com/axiom-sdr/flowgraphd/internal/port"
)

// StreamHandle pairs a stream edge with the doorbell its two
// connected tasks share: whichever side committed a read or a write
// rings it, waking whichever side was waiting for that edge to
// change.
type StreamHandle struct {
	Edge     port.StreamEdge
	Doorbell *Doorbell
}

// MessageInput pairs a block's message input port with its mailbox
// and the handler the block registered for it.
type MessageInput struct {
	Name    string
	Mailbox *port.Mailbox
	Handler block.MessageHandler
}

// Task owns one block's execution for the lifetime of a running
// flowgraph: a single goroutine that is the only caller into the
// block's Kernel, satisfying the one-task-per-block, exclusive-port-
// ownership guarantee the scheduler provides.
type Task struct {
	logger *slog.Logger
	name   string

	kernel  block.Kernel
	inputs  []StreamHandle
	outputs []StreamHandle
	msgIn   []MessageInput

	notify     *Doorbell
	workIO     *block.WorkIO
	msgOutputs *block.MessageOutputs

	waitCases []reflect.SelectCase
	// waitKinds[i] describes what waitCases[i] represents, so the
	// loop knows whether a woken case is a message delivery that
	// still needs dispatching or merely a signal to re-run Work.
	waitKinds []waitKind
	// waitMsgIdx[i] is the index into msgIn that waitCases[i]
	// corresponds to when waitKinds[i] == waitMessage; meaningless
	// otherwise.
	waitMsgIdx []int

	mu       sync.Mutex
	finished bool
	err      error
	done     chan struct{}
}

type waitKind int

const (
	waitCtxDone waitKind = iota
	waitNotify
	waitStreamIn
	waitStreamOut
	waitMessage
	waitTimer
)

// NewTask builds the per-block task. fanouts is the set of message
// output ports this block can post to, keyed by port name; it may be
// empty for a block with no message outputs.
func NewTask(logger *slog.Logger, name string, kernel block.Kernel, inputs, outputs []StreamHandle, msgIn []MessageInput, fanouts map[string]*port.OutputFanout) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Task{
		logger:  logger,
		name:    name,
		kernel:  kernel,
		inputs:  inputs,
		outputs: outputs,
		msgIn:   msgIn,
		notify:  NewDoorbell(),
		done:    make(chan struct{}),
	}

	edgeIn := make([]port.StreamEdge, len(inputs))
	for i, h := range inputs {
		edgeIn[i] = h.Edge
	}
	edgeOut := make([]port.StreamEdge, len(outputs))
	for i, h := range outputs {
		edgeOut[i] = h.Edge
	}
	t.workIO = block.NewWorkIO(edgeIn, edgeOut, t.notify.Ring)
	t.msgOutputs = block.NewMessageOutputs(fanouts)

	return t
}

// Run drives the block until ctx is cancelled or the kernel reports
// StatusDone or an error. It always closes every output stream edge
// before returning, so downstream tasks observe termination instead
// of waiting forever.
func (t *Task) Run(ctx context.Context) {
	defer close(t.done)
	defer t.closeOutputs()

	t.buildWaitCases(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		if t.drainMessages(ctx) {
			// A message may have unblocked downstream work (e.g. a
			// control message that changes what Work should do), so
			// loop back around rather than assuming idle.
			continue
		}

		status, err := t.kernel.Work(ctx, t.workIO)
		if err != nil {
			t.logger.Error("block work failed", "block", t.name, "error", err)
			t.setErr(err)
			return
		}

		switch status {
		case block.StatusDone:
			t.logger.Debug("block finished", "block", t.name)
			t.setFinished()
			return
		case block.StatusOK:
			// The kernel doesn't say which edges it touched, so ring
			// every connected doorbell: a peer waiting on reader-ready
			// or writer-ready wakes and re-checks its own buffer.
			t.ringAll()
			continue
		case block.StatusIdle:
			wakeAfter, hasWake := t.workIO.ConsumeWakeAfter()
			if !t.wait(ctx, wakeAfter, hasWake) {
				return
			}
		default:
			t.setErr(fmt.Errorf("blockrun: block %q returned unknown work status %v", t.name, status))
			return
		}
	}
}

// drainMessages dispatches every message currently queued on any
// input port without blocking, returning true if it handled at least
// one.
func (t *Task) drainMessages(ctx context.Context) bool {
	handled := false
	for _, mi := range t.msgIn {
		draining := true
		for draining {
			select {
			case env := <-mi.Mailbox.Chan():
				t.dispatch(ctx, mi, env)
				handled = true
			default:
				draining = false
			}
		}
	}
	return handled
}

func (t *Task) dispatch(ctx context.Context, mi MessageInput, env port.Envelope) {
	if mi.Handler == nil {
		if env.Reply != nil {
			env.Reply <- port.Reply{Err: fmt.Errorf("blockrun: block %q port %q has no message handler", t.name, mi.Name)}
		}
		return
	}
	reply, err := mi.Handler(ctx, env.Msg, t.msgOutputs)
	if env.Reply != nil {
		env.Reply <- port.Reply{Value: reply, Err: err}
	} else if err != nil {
		t.logger.Warn("message handler error on fire-and-forget delivery",
			"block", t.name, "port", mi.Name, "error", err)
	}
}

// buildWaitCases precomputes the reflect.Select case list for idle
// waits: one case per connected stream edge's doorbell, one per
// message mailbox, the explicit notify doorbell, and ctx.Done.
func (t *Task) buildWaitCases(ctx context.Context) {
	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(t.notify.C())},
	}
	kinds := []waitKind{waitCtxDone, waitNotify}
	msgIdx := []int{-1, -1}

	for _, h := range t.inputs {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(h.Doorbell.C())})
		kinds = append(kinds, waitStreamIn)
		msgIdx = append(msgIdx, -1)
	}
	for _, h := range t.outputs {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(h.Doorbell.C())})
		kinds = append(kinds, waitStreamOut)
		msgIdx = append(msgIdx, -1)
	}
	for i, mi := range t.msgIn {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(mi.Mailbox.Chan())})
		kinds = append(kinds, waitMessage)
		msgIdx = append(msgIdx, i)
	}

	t.waitCases = cases
	t.waitKinds = kinds
	t.waitMsgIdx = msgIdx
}

// wait blocks until any wake source fires, returning false if the
// wake was termination. If the fired case is a message mailbox, the
// Envelope reflect.Select received is dispatched immediately — the
// select already dequeued it, so leaving it undispatched would drop
// it silently instead of handing it to drainMessages.
//
// If wakeAfter is positive, an additional timer case is added so a
// block that returned StatusIdle after calling WorkIO.WakeAfter (a
// time-gated block with nothing ready on any port) still wakes once
// that time-based condition can be re-checked, instead of waiting
// forever for a port event that will never come.
func (t *Task) wait(ctx context.Context, wakeAfter time.Duration, hasWake bool) bool {
	cases := t.waitCases
	kinds := t.waitKinds

	if hasWake {
		timer := time.NewTimer(wakeAfter)
		defer timer.Stop()
		cases = append(append([]reflect.SelectCase(nil), t.waitCases...),
			reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)})
		kinds = append(append([]waitKind(nil), t.waitKinds...), waitTimer)
	}

	chosen, recv, _ := reflect.Select(cases)
	if kinds[chosen] == waitMessage {
		env := recv.Interface().(port.Envelope)
		t.dispatch(ctx, t.msgIn[t.waitMsgIdx[chosen]], env)
	}
	return kinds[chosen] != waitCtxDone
}

func (t *Task) ringAll() {
	for _, h := range t.inputs {
		h.Doorbell.Ring()
	}
	for _, h := range t.outputs {
		h.Doorbell.Ring()
	}
}

func (t *Task) closeOutputs() {
	for _, h := range t.outputs {
		h.Edge.CloseWrite()
		h.Doorbell.Ring()
	}
}

func (t *Task) setFinished() {
	t.mu.Lock()
	t.finished = true
	t.mu.Unlock()
}

func (t *Task) setErr(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

// Err returns the error that stopped the task, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Finished reports whether the task stopped because its kernel
// reported StatusDone, as opposed to an error or cancellation.
func (t *Task) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// Done returns a channel closed when Run returns.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Notify requests an out-of-band wake, used by runtime tasks (e.g. a
// periodic message sender) that need a block's Work re-invoked
// outside of normal stream/message readiness.
func (t *Task) Notify() {
	t.notify.Ring()
}
