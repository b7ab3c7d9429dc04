package blocks

import (
	"context"
	"testing"

	"github.com/axiom-sdr/flowgraphd/internal/block"
	"github.com/axiom-sdr/flowgraphd/internal/port"
)

func TestNullSource_RespectsLimit(t *testing.T) {
	src := NewNullSource[uint32]("src", 5)
	out, _ := port.NewStreamEdge[uint32](8)
	io := block.NewWorkIO(nil, []port.StreamEdge{out}, nil)

	var status block.WorkStatus
	var err error
	for i := 0; i < 10; i++ {
		status, err = src.Work(context.Background(), io)
		if err != nil {
			t.Fatalf("Work: %v", err)
		}
		if status == block.StatusDone {
			break
		}
	}
	if status != block.StatusDone {
		t.Fatalf("source did not reach StatusDone, last status=%v", status)
	}
	if src.Produced() != 5 {
		t.Errorf("Produced() = %d, want 5", src.Produced())
	}
}

func TestNullSink_ConsumesAndFinishesOnDrain(t *testing.T) {
	edge, buf := port.NewStreamEdge[uint32](8)
	window := buf.WriteWindow()
	for i := range window {
		window[i] = uint32(i)
	}
	buf.CommitWrite(len(window))
	buf.CloseWrite()

	sink := NewNullSink[uint32]("sink")
	io := block.NewWorkIO([]port.StreamEdge{edge}, nil, nil)

	var status block.WorkStatus
	var err error
	for i := 0; i < len(window)+2; i++ {
		status, err = sink.Work(context.Background(), io)
		if err != nil {
			t.Fatalf("Work: %v", err)
		}
		if status == block.StatusDone {
			break
		}
	}
	if status != block.StatusDone {
		t.Fatalf("sink did not reach StatusDone, last status=%v", status)
	}
	if sink.Consumed() != uint64(len(window)) {
		t.Errorf("Consumed() = %d, want %d", sink.Consumed(), len(window))
	}
}
