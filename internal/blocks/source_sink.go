// Package blocks holds the demonstration block set named in spec.md's
// supplemented features: NullSource, NullSink, Throttle, Ping,
// WebsocketPmtSink, and the reserved-BlockID-0 FlowgraphController.
// None of these are DSP blocks — the WiFi/ZigBee-specific factories
// original_source/block_registry.rs declares stay out of scope per
// spec.md §1 — they exist only to make the engine runnable end to end
// and to back the testable properties in spec.md §8.
package blocks

import (
	"context"
	"reflect"
	"sync/atomic"

	"github.com/axiom-sdr/flowgraphd/internal/block"
	"github.com/axiom-sdr/flowgraphd/internal/port"
	"github.com/axiom-sdr/flowgraphd/internal/ring"
)

// NullSource produces a continuous stream of zero-valued T samples on
// its single "output" port, stopping once Limit samples have been
// produced (0 means run until the flowgraph terminates it). It backs
// S1 (pass-through) and S6 (back-pressure).
type NullSource[T any] struct {
	name     string
	limit    uint64
	produced atomic.Uint64
}

// NewNullSource creates a NullSource producing element type T. limit
// <= 0 means unbounded.
func NewNullSource[T any](name string, limit uint64) *NullSource[T] {
	return &NullSource[T]{name: name, limit: limit}
}

func (s *NullSource[T]) Meta() block.Meta {
	var zero T
	return block.Meta{
		Name: s.name,
		StreamOutputs: []port.StreamSpec{
			{Name: "output", ElemType: reflect.TypeOf(zero), Direction: port.Output},
		},
	}
}

func (s *NullSource[T]) Work(ctx context.Context, io *block.WorkIO) (block.WorkStatus, error) {
	if s.limit > 0 && s.produced.Load() >= s.limit {
		return block.StatusDone, nil
	}
	out := io.Outputs[0].Backing().(*ring.Buffer[T])
	window := out.WriteWindow()
	if len(window) == 0 {
		return block.StatusIdle, nil
	}

	n := len(window)
	if s.limit > 0 {
		remaining := s.limit - s.produced.Load()
		if uint64(n) > remaining {
			n = int(remaining)
		}
	}
	out.CommitWrite(n)
	total := s.produced.Add(uint64(n))

	if s.limit > 0 && total >= s.limit {
		return block.StatusDone, nil
	}
	return block.StatusOK, nil
}

func (s *NullSource[T]) MessageHandlers() map[string]block.MessageHandler { return nil }

// Produced reports the number of samples committed so far.
func (s *NullSource[T]) Produced() uint64 { return s.produced.Load() }

// NullSink drains its single "input" port as fast as the buffer
// allows, discarding every sample, and finishes once the edge is
// closed and drained.
type NullSink[T any] struct {
	name     string
	consumed atomic.Uint64
}

// NewNullSink creates a NullSink consuming element type T.
func NewNullSink[T any](name string) *NullSink[T] {
	return &NullSink[T]{name: name}
}

func (s *NullSink[T]) Meta() block.Meta {
	var zero T
	return block.Meta{
		Name: s.name,
		StreamInputs: []port.StreamSpec{
			{Name: "input", ElemType: reflect.TypeOf(zero), Direction: port.Input},
		},
	}
}

func (s *NullSink[T]) Work(ctx context.Context, io *block.WorkIO) (block.WorkStatus, error) {
	edge := io.Inputs[0]
	buf := edge.Backing().(*ring.Buffer[T])
	window := buf.ReadWindow()
	if len(window) == 0 {
		if edge.Drained() {
			return block.StatusDone, nil
		}
		return block.StatusIdle, nil
	}
	buf.CommitRead(len(window))
	s.consumed.Add(uint64(len(window)))
	return block.StatusOK, nil
}

func (s *NullSink[T]) MessageHandlers() map[string]block.MessageHandler { return nil }

// Consumed reports the number of samples committed so far.
func (s *NullSink[T]) Consumed() uint64 { return s.consumed.Load() }
