package loader

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/axiom-sdr/flowgraphd/internal/flowgraph"
	"github.com/axiom-sdr/flowgraphd/internal/scheduler"
)

// Context is what BuildGraph retains beyond the builder itself: the
// name -> BlockID map every connection resolution needed, and the
// parsed runtime section, handed back so the caller can start the
// periodic sender Runner once the graph is running (spec.md §4.7 step
// 6).
type Context struct {
	NameToID map[string]flowgraph.BlockID
	Senders  []scheduler.SenderSpec
}

// Resolve looks up a declared block's name, satisfying the
// scheduler.Runner.Start resolve callback signature.
func (c *Context) Resolve(name string) (int, bool) {
	id, ok := c.NameToID[name]
	return int(id), ok
}

// evaluateGuard decides whether a block or connection's guard
// expression passes against the supplied condition map. An empty
// guard always passes. A "!"-prefixed name passes when the named
// condition is false or absent.
func evaluateGuard(guard string, conditions map[string]bool) bool {
	if guard == "" {
		return true
	}
	if strings.HasPrefix(guard, "!") {
		return !conditions[strings.TrimPrefix(guard, "!")]
	}
	return conditions[guard]
}

// BuildGraph runs the declarative loader algorithm of spec.md §4.7:
// evaluate each block's guard, invoke its factory, resolve every
// connection by name (applying the stream/message default port name
// conventions), and wire the builder accordingly. It does not call
// Start — the caller freezes the returned Builder once it has decided
// on a context for Start's cancellation.
func BuildGraph(logger *slog.Logger, desc *GraphDescription, registry *Registry, deps Deps, conditions map[string]bool) (*flowgraph.Builder, *Context, error) {
	builder := flowgraph.NewBuilder(logger)
	ctx := &Context{NameToID: make(map[string]flowgraph.BlockID)}

	for _, decl := range desc.Blocks {
		if !evaluateGuard(decl.Optional, conditions) {
			continue
		}
		if decl.Name == "" {
			return nil, nil, fmt.Errorf("loader: block of type %q has no name", decl.Type)
		}
		if _, dup := ctx.NameToID[decl.Name]; dup {
			return nil, nil, fmt.Errorf("loader: duplicate block name %q", decl.Name)
		}

		factory, ok := registry.Lookup(decl.Type)
		if !ok {
			return nil, nil, fmt.Errorf("loader: unknown block type %q for block %q", decl.Type, decl.Name)
		}
		kernel, err := factory(decl, deps)
		if err != nil {
			return nil, nil, fmt.Errorf("loader: building block %q: %w", decl.Name, err)
		}

		id, err := builder.AddBlock(decl.Name, kernel)
		if err != nil {
			return nil, nil, fmt.Errorf("loader: adding block %q: %w", decl.Name, err)
		}
		ctx.NameToID[decl.Name] = id
	}

	for _, conn := range desc.Connections {
		if !evaluateGuard(conn.Conditional, conditions) {
			continue
		}
		srcID, dstID, err := resolveEndpoints(ctx, conn)
		if err != nil {
			return nil, nil, err
		}
		fromPort := conn.FromPort
		if fromPort == "" {
			fromPort = "output"
		}
		toPort := conn.ToPort
		if toPort == "" {
			toPort = "input"
		}
		if err := builder.ConnectStream(srcID, fromPort, dstID, toPort, 0); err != nil {
			return nil, nil, fmt.Errorf("loader: connecting %s.%s -> %s.%s: %w", conn.From, fromPort, conn.To, toPort, err)
		}
	}

	for _, conn := range desc.MessageConnections {
		if !evaluateGuard(conn.Conditional, conditions) {
			continue
		}
		srcID, dstID, err := resolveEndpoints(ctx, conn)
		if err != nil {
			return nil, nil, err
		}
		if conn.FromPort == "" {
			return nil, nil, fmt.Errorf("loader: message connection from %q has no from_port", conn.From)
		}
		toPort := conn.ToPort
		if toPort == "" {
			toPort = conn.FromPort
		}
		if err := builder.ConnectMessage(srcID, conn.FromPort, dstID, toPort); err != nil {
			return nil, nil, fmt.Errorf("loader: connecting message %s.%s -> %s.%s: %w", conn.From, conn.FromPort, conn.To, toPort, err)
		}
	}

	for _, task := range desc.Runtime.AsyncTasks {
		spec := scheduler.SenderSpec{
			Block:    task.Block,
			Port:     task.Port,
			Task:     task.Task,
			Interval: time.Duration(task.IntervalSecs * float64(time.Second)),
			Format:   task.MessageFormat,
			Pattern:  task.MessagePattern,
			Extra:    task.ExtraParams,
		}
		if err := spec.Validate(); err != nil {
			return nil, nil, fmt.Errorf("loader: %w", err)
		}
		ctx.Senders = append(ctx.Senders, spec)
	}

	return builder, ctx, nil
}

func resolveEndpoints(ctx *Context, conn ConnectionDecl) (flowgraph.BlockID, flowgraph.BlockID, error) {
	srcID, ok := ctx.NameToID[conn.From]
	if !ok {
		return 0, 0, fmt.Errorf("loader: connection references unknown block %q", conn.From)
	}
	dstID, ok := ctx.NameToID[conn.To]
	if !ok {
		return 0, 0, fmt.Errorf("loader: connection references unknown block %q", conn.To)
	}
	return srcID, dstID, nil
}
