package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/axiom-sdr/flowgraphd/internal/events"
	"github.com/axiom-sdr/flowgraphd/internal/loader"
)

const pipelineA = `
[[blocks]]
name = "ctrl"
type = "FlowgraphController"

[[blocks]]
name = "src"
type = "NullSource"
dtype = "u8"

[[blocks]]
name = "sink"
type = "NullSink"
dtype = "u8"

[[connections]]
from = "src"
to = "sink"
`

func writeGraph(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSupervisor_StartsInitialGraph(t *testing.T) {
	dir := t.TempDir()
	pathA := writeGraph(t, dir, "a.toml", pipelineA)

	bus := events.New()
	ch := bus.Subscribe(16)
	defer bus.Unsubscribe(ch)

	sup := New(nil, loader.NewDefaultRegistry(), bus, nil, Config{RetryBackoff: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		sup.Run(ctx, pathA)
		close(runDone)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sup.Current() == nil {
		time.Sleep(5 * time.Millisecond)
	}
	if sup.Current() == nil {
		t.Fatal("supervisor never started the initial graph")
	}
	if _, ok := sup.GraphID(); !ok {
		t.Error("GraphID() reports no graph running after start")
	}

	cancel()
	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit after context cancellation")
	}
	if sup.Current() != nil {
		t.Error("Current() should be nil after shutdown")
	}
}

func TestSupervisor_RequestReloadSwapsGraph(t *testing.T) {
	dir := t.TempDir()
	pathA := writeGraph(t, dir, "a.toml", pipelineA)
	pathB := writeGraph(t, dir, "b.toml", pipelineA)

	sup := New(nil, loader.NewDefaultRegistry(), nil, nil, Config{RetryBackoff: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx, pathA)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && sup.Current() == nil {
		time.Sleep(5 * time.Millisecond)
	}
	firstID, _ := sup.GraphID()

	if err := sup.RequestReload(context.Background(), pathB); err != nil {
		t.Fatalf("RequestReload: %v", err)
	}

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if id, ok := sup.GraphID(); ok && id != firstID {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("graph id never changed after a reload request")
}

func TestSupervisor_BuildFailureKeepsSlotEmptyThenRetries(t *testing.T) {
	dir := t.TempDir()
	badPath := filepath.Join(dir, "missing.toml")

	sup := New(nil, loader.NewDefaultRegistry(), nil, nil, Config{RetryBackoff: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx, badPath)

	time.Sleep(50 * time.Millisecond)
	if sup.Current() != nil {
		t.Error("expected no current graph after a build failure")
	}
}
