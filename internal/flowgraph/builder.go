// Package flowgraph assembles blocks and their connections into a
// runnable graph: a mutable Builder during construction, frozen by
// Start into an immutable Handle that the supervisor and control
// endpoint operate against for the graph's entire lifetime.
package flowgraph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/axiom-sdr/flowgraphd/internal/block"
	"github.com/axiom-sdr/flowgraphd/internal/blockrun"
	"github.com/axiom-sdr/flowgraphd/internal/port"
)

// BlockID is a dense, zero-based identifier assigned to each block in
// the order it was added to the Builder. When the graph contains a
// controller block, it must be the first block added, so it always
// lands at BlockID 0.
type BlockID int

// DefaultStreamCapacity is used for a stream connection that doesn't
// specify its own ring buffer capacity.
const DefaultStreamCapacity = 8192

type blockEntry struct {
	name   string
	kernel block.Kernel
	meta   block.Meta
}

type streamConn struct {
	srcBlock BlockID
	srcPort  string
	dstBlock BlockID
	dstPort  string
	capacity int
}

type msgConn struct {
	srcBlock BlockID
	srcPort  string
	dstBlock BlockID
	dstPort  string
}

// Builder assembles a flowgraph's blocks and connections. It is not
// safe for concurrent use; build the graph from a single goroutine,
// then call Start.
type Builder struct {
	logger      *slog.Logger
	blocks      []blockEntry
	streamConns []streamConn
	msgConns    []msgConn
	haveCtrl    bool
	started     bool
}

// NewBuilder creates an empty Builder.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger}
}

// AddBlock registers a block under name and returns its BlockID. A
// block whose Meta().Controller is true must be the first block
// added to the builder, and only one such block is allowed.
func (b *Builder) AddBlock(name string, kernel block.Kernel) (BlockID, error) {
	if b.started {
		return 0, newBuildError("cannot add block %q: flowgraph already started", name)
	}
	meta := kernel.Meta()
	id := BlockID(len(b.blocks))

	if meta.Controller {
		if b.haveCtrl {
			return 0, newBuildError("only one controller block is allowed, already have one before %q", name)
		}
		if id != 0 {
			return 0, newBuildError("controller block %q must be the first block added, would land at id %d", name, id)
		}
		b.haveCtrl = true
	}

	b.blocks = append(b.blocks, blockEntry{name: name, kernel: kernel, meta: meta})
	return id, nil
}

func (b *Builder) block(id BlockID) (*blockEntry, error) {
	if id < 0 || int(id) >= len(b.blocks) {
		return nil, newBuildError("block id %d out of range (have %d blocks)", id, len(b.blocks))
	}
	return &b.blocks[id], nil
}

func findStreamSpec(specs []port.StreamSpec, name string) (port.StreamSpec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return port.StreamSpec{}, false
}

func findMessageSpec(specs []port.MessageSpec, name string) (port.MessageSpec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return port.MessageSpec{}, false
}

// ConnectStream wires a stream output port to a stream input port.
// Both ports must exist on their respective blocks, face the
// expected direction, and share the same element type. capacity <= 0
// uses DefaultStreamCapacity. Each stream port may appear in at most
// one connection.
func (b *Builder) ConnectStream(src BlockID, srcPort string, dst BlockID, dstPort string, capacity int) error {
	if b.started {
		return newBuildError("cannot connect stream: flowgraph already started")
	}
	srcEntry, err := b.block(src)
	if err != nil {
		return err
	}
	dstEntry, err := b.block(dst)
	if err != nil {
		return err
	}

	srcSpec, ok := findStreamSpec(srcEntry.meta.StreamOutputs, srcPort)
	if !ok {
		return newBuildError("block %q has no stream output port %q", srcEntry.name, srcPort)
	}
	dstSpec, ok := findStreamSpec(dstEntry.meta.StreamInputs, dstPort)
	if !ok {
		return newBuildError("block %q has no stream input port %q", dstEntry.name, dstPort)
	}
	if srcSpec.ElemType != dstSpec.ElemType {
		return newBuildError("stream type mismatch connecting %q.%s (%s) to %q.%s (%s)",
			srcEntry.name, srcPort, srcSpec.ElemType, dstEntry.name, dstPort, dstSpec.ElemType)
	}

	for _, c := range b.streamConns {
		if c.srcBlock == src && c.srcPort == srcPort {
			return newBuildError("stream output %q.%s is already connected", srcEntry.name, srcPort)
		}
		if c.dstBlock == dst && c.dstPort == dstPort {
			return newBuildError("stream input %q.%s is already connected", dstEntry.name, dstPort)
		}
	}

	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}
	b.streamConns = append(b.streamConns, streamConn{src, srcPort, dst, dstPort, capacity})
	return nil
}

// ConnectMessage wires a message output port to a message input
// port. Unlike stream ports, message ports may be connected any
// number of times on either side: one output fanning out to several
// inputs, or several outputs feeding the same input.
func (b *Builder) ConnectMessage(src BlockID, srcPort string, dst BlockID, dstPort string) error {
	if b.started {
		return newBuildError("cannot connect message: flowgraph already started")
	}
	srcEntry, err := b.block(src)
	if err != nil {
		return err
	}
	dstEntry, err := b.block(dst)
	if err != nil {
		return err
	}

	if _, ok := findMessageSpec(srcEntry.meta.MessageOutputs, srcPort); !ok {
		return newBuildError("block %q has no message output port %q", srcEntry.name, srcPort)
	}
	if _, ok := findMessageSpec(dstEntry.meta.MessageInputs, dstPort); !ok {
		return newBuildError("block %q has no message input port %q", dstEntry.name, dstPort)
	}

	b.msgConns = append(b.msgConns, msgConn{src, srcPort, dst, dstPort})
	return nil
}

// Start validates the graph is fully wired (every declared stream
// port connected exactly once) and launches one goroutine per block.
// The returned Handle is immutable: the graph's topology cannot
// change again during its lifetime, only its running state (via
// Call, Terminate, TerminateAndWait).
func (b *Builder) Start(ctx context.Context) (*Handle, error) {
	if b.started {
		return nil, newBuildError("flowgraph already started")
	}
	if err := b.validateStreamCompleteness(); err != nil {
		return nil, err
	}
	b.started = true

	streamIn := make([]map[string]blockrun.StreamHandle, len(b.blocks))
	streamOut := make([]map[string]blockrun.StreamHandle, len(b.blocks))
	for i := range b.blocks {
		streamIn[i] = make(map[string]blockrun.StreamHandle)
		streamOut[i] = make(map[string]blockrun.StreamHandle)
	}

	for _, c := range b.streamConns {
		srcSpec, _ := findStreamSpec(b.blocks[c.srcBlock].meta.StreamOutputs, c.srcPort)
		edge, err := port.NewStreamEdgeFor(srcSpec.ElemType, c.capacity)
		if err != nil {
			return nil, &StartError{Reason: fmt.Sprintf("connection %s.%s -> block %d.%s", b.blocks[c.srcBlock].name, c.srcPort, c.dstBlock, c.dstPort), Err: err}
		}
		doorbell := blockrun.NewDoorbell()
		handle := blockrun.StreamHandle{Edge: edge, Doorbell: doorbell}
		streamOut[c.srcBlock][c.srcPort] = handle
		streamIn[c.dstBlock][c.dstPort] = handle
	}

	mailboxes := make([]map[string]*port.Mailbox, len(b.blocks))
	fanouts := make([]map[string]*port.OutputFanout, len(b.blocks))
	for i := range b.blocks {
		mailboxes[i] = make(map[string]*port.Mailbox)
		fanouts[i] = make(map[string]*port.OutputFanout)
	}
	mailboxFor := func(blockIdx BlockID, name string) *port.Mailbox {
		if m, ok := mailboxes[blockIdx][name]; ok {
			return m
		}
		m := port.NewMailbox(port.DefaultMailboxCapacity)
		mailboxes[blockIdx][name] = m
		return m
	}
	fanoutFor := func(blockIdx BlockID, name string) *port.OutputFanout {
		if f, ok := fanouts[blockIdx][name]; ok {
			return f
		}
		f := &port.OutputFanout{}
		fanouts[blockIdx][name] = f
		return f
	}

	for _, c := range b.msgConns {
		mbox := mailboxFor(c.dstBlock, c.dstPort)
		fanoutFor(c.srcBlock, c.srcPort).Connect(mbox)
	}
	// Every declared message input gets a mailbox even with no
	// connections yet, so an external Call always has somewhere to
	// deliver to.
	for i, entry := range b.blocks {
		for _, spec := range entry.meta.MessageInputs {
			mailboxFor(BlockID(i), spec.Name)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	tasks := make([]*blockrun.Task, len(b.blocks))
	var wg sync.WaitGroup

	for i, entry := range b.blocks {
		inputs := orderedStreamHandles(entry.meta.StreamInputs, streamIn[i])
		outputs := orderedStreamHandles(entry.meta.StreamOutputs, streamOut[i])

		msgIn := make([]blockrun.MessageInput, 0, len(entry.meta.MessageInputs))
		handlers := entry.kernel.MessageHandlers()
		for _, spec := range entry.meta.MessageInputs {
			msgIn = append(msgIn, blockrun.MessageInput{
				Name:    spec.Name,
				Mailbox: mailboxes[i][spec.Name],
				Handler: handlers[spec.Name],
			})
		}

		task := blockrun.NewTask(b.logger.With("block", entry.name), entry.name, entry.kernel, inputs, outputs, msgIn, fanouts[i])
		tasks[i] = task

		wg.Add(1)
		go func(t *blockrun.Task) {
			defer wg.Done()
			t.Run(runCtx)
		}(task)
	}

	h := &Handle{
		logger:    b.logger,
		cancel:    cancel,
		tasks:     tasks,
		mailboxes: mailboxes,
		streamOut: streamOut,
		wg:        &wg,
		blocks:    b.blocks,
	}
	return h, nil
}

func orderedStreamHandles(specs []port.StreamSpec, byName map[string]blockrun.StreamHandle) []blockrun.StreamHandle {
	out := make([]blockrun.StreamHandle, len(specs))
	for i, s := range specs {
		out[i] = byName[s.Name]
	}
	return out
}

func (b *Builder) validateStreamCompleteness() error {
	connectedOut := make(map[BlockID]map[string]bool)
	connectedIn := make(map[BlockID]map[string]bool)
	for _, c := range b.streamConns {
		if connectedOut[c.srcBlock] == nil {
			connectedOut[c.srcBlock] = make(map[string]bool)
		}
		connectedOut[c.srcBlock][c.srcPort] = true
		if connectedIn[c.dstBlock] == nil {
			connectedIn[c.dstBlock] = make(map[string]bool)
		}
		connectedIn[c.dstBlock][c.dstPort] = true
	}

	for i, entry := range b.blocks {
		id := BlockID(i)
		for _, spec := range entry.meta.StreamOutputs {
			if !connectedOut[id][spec.Name] {
				return newBuildError("block %q stream output %q is not connected", entry.name, spec.Name)
			}
		}
		for _, spec := range entry.meta.StreamInputs {
			if !connectedIn[id][spec.Name] {
				return newBuildError("block %q stream input %q is not connected", entry.name, spec.Name)
			}
		}
	}
	return nil
}
