package blocks

import (
	"context"
	"testing"

	"github.com/axiom-sdr/flowgraphd/internal/block"
	"github.com/axiom-sdr/flowgraphd/internal/port"
)

func TestThrottle_PassesEverythingWhenUnrated(t *testing.T) {
	th := NewThrottle[uint32]("t", 0)
	in, inBuf := port.NewStreamEdge[uint32](8)
	out, _ := port.NewStreamEdge[uint32](8)

	window := inBuf.WriteWindow()
	for i := range window {
		window[i] = uint32(i + 1)
	}
	inBuf.CommitWrite(len(window))
	inBuf.CloseWrite()

	io := block.NewWorkIO([]port.StreamEdge{in}, []port.StreamEdge{out}, nil)
	status, err := th.Work(context.Background(), io)
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if status != block.StatusOK {
		t.Fatalf("status = %v, want StatusOK", status)
	}
	if th.Emitted() != uint64(len(window)) {
		t.Errorf("Emitted() = %d, want %d", th.Emitted(), len(window))
	}
}

func TestThrottle_FinishesWhenInputDrained(t *testing.T) {
	th := NewThrottle[uint32]("t", 0)
	in, inBuf := port.NewStreamEdge[uint32](8)
	out, _ := port.NewStreamEdge[uint32](8)
	inBuf.CloseWrite()

	io := block.NewWorkIO([]port.StreamEdge{in}, []port.StreamEdge{out}, nil)
	status, err := th.Work(context.Background(), io)
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if status != block.StatusDone {
		t.Errorf("status = %v, want StatusDone", status)
	}
}

func TestThrottle_GatesAboveConfiguredRate(t *testing.T) {
	// A very low rate should allow essentially nothing on the first
	// call (budget starts near zero at t=0).
	th := NewThrottle[uint32]("t", 1)
	in, inBuf := port.NewStreamEdge[uint32](64)
	out, _ := port.NewStreamEdge[uint32](64)

	window := inBuf.WriteWindow()
	for i := range window {
		window[i] = uint32(i)
	}
	inBuf.CommitWrite(len(window))

	io := block.NewWorkIO([]port.StreamEdge{in}, []port.StreamEdge{out}, nil)
	status, err := th.Work(context.Background(), io)
	if err != nil {
		t.Fatalf("Work: %v", err)
	}
	if status != block.StatusIdle {
		t.Fatalf("status = %v, want StatusIdle on first call of a rate-limited throttle", status)
	}
	if th.Emitted() != 0 {
		t.Errorf("Emitted() = %d, want 0 on the first call", th.Emitted())
	}
}
