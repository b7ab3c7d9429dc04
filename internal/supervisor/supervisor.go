// Package supervisor implements the hot-swap protocol of spec.md
// §4.6: a long-lived runtime holding a single-slot reference to the
// currently running flowgraph, replacing it atomically whenever a
// reload request arrives, and never reverting to a previous graph on
// failure.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/axiom-sdr/flowgraphd/internal/blocks"
	"github.com/axiom-sdr/flowgraphd/internal/control"
	"github.com/axiom-sdr/flowgraphd/internal/events"
	"github.com/axiom-sdr/flowgraphd/internal/flowgraph"
	"github.com/axiom-sdr/flowgraphd/internal/loader"
	"github.com/axiom-sdr/flowgraphd/internal/metrics"
	"github.com/axiom-sdr/flowgraphd/internal/pmt"
	"github.com/axiom-sdr/flowgraphd/internal/scheduler"
)

// reloadRequest is one item on the MPSC reload channel: the
// configuration path to load next, tagged with a correlation id for
// log correlation across the build/start/notify sequence.
type reloadRequest struct {
	id         uuid.UUID
	configPath string
}

// Config configures a Supervisor's behavior across reloads.
type Config struct {
	// RetryBackoff is how long to wait after a failed build or start
	// before returning to the reload-wait state, per spec.md §4.6
	// step 3.
	RetryBackoff time.Duration
	// Conditions is the guard-expression condition map evaluated
	// against every block's/connection's optional/conditional field.
	Conditions map[string]bool
}

// Supervisor owns the process's single running flowgraph across its
// entire lifetime and the goroutine that performs hot-swaps. It
// implements blocks.ReloadRequester so a FlowgraphController block can
// request a swap through the same channel external callers use.
type Supervisor struct {
	logger   *slog.Logger
	registry *loader.Registry
	bus      *events.Bus
	cfg      Config

	broadcaster blocks.Broadcaster

	reloadCh chan reloadRequest

	mu      sync.RWMutex
	current *flowgraph.Handle
	loaded  *loader.Context
	graphID uuid.UUID

	cancel context.CancelFunc
	doneCh chan struct{}
}

var _ blocks.ReloadRequester = (*Supervisor)(nil)
var _ control.Supervisor = (*Supervisor)(nil)

// handleTarget adapts a *flowgraph.Handle's BlockID-typed Post to the
// plain-int signature scheduler.Target declares, so internal/scheduler
// stays a leaf with no dependency on internal/flowgraph.
type handleTarget struct {
	handle *flowgraph.Handle
}

func (t handleTarget) Post(ctx context.Context, blockID int, port string, value pmt.Pmt) error {
	return t.handle.Post(ctx, flowgraph.BlockID(blockID), port, value)
}

var _ scheduler.Target = handleTarget{}

// New creates a Supervisor. bus may be nil to disable event
// publication; broadcaster may be nil to disable the control
// endpoint's notification channel.
func New(logger *slog.Logger, registry *loader.Registry, bus *events.Bus, broadcaster blocks.Broadcaster, cfg Config) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 2 * time.Second
	}
	return &Supervisor{
		logger:      logger,
		registry:    registry,
		bus:         bus,
		cfg:         cfg,
		broadcaster: broadcaster,
		reloadCh:    make(chan reloadRequest, 8),
		doneCh:      make(chan struct{}),
	}
}

// RequestReload enqueues a swap to the graph described at configPath.
// It returns once the request is accepted onto the channel, not once
// the swap completes — satisfying blocks.ReloadRequester so a
// FlowgraphController's control port can drive a swap without the
// supervisor reaching back into block internals.
func (s *Supervisor) RequestReload(ctx context.Context, configPath string) error {
	req := reloadRequest{id: uuid.New(), configPath: configPath}
	select {
	case s.reloadCh <- req:
		s.logger.Info("reload requested", "request_id", req.id, "config", configPath)
		s.publish(events.KindReloadRequested, map[string]any{"request_id": req.id.String(), "config": configPath})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Current returns the currently running flowgraph handle, or nil if
// none is running (e.g. during the brief window of a swap, or before
// the first graph has started).
func (s *Supervisor) Current() *flowgraph.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Call delivers a message call to the currently running graph,
// returning an error if no graph is running — the contract external
// callers observe during a swap's terminate-build-start window
// (spec.md §4.6, "external callers may observe 'no current flowgraph'
// errors").
func (s *Supervisor) Call(ctx context.Context, blockID flowgraph.BlockID, port string, value pmt.Pmt) (pmt.Pmt, error) {
	h := s.Current()
	if h == nil {
		return pmt.Pmt{}, fmt.Errorf("supervisor: no current flowgraph")
	}
	return h.Call(ctx, blockID, port, value)
}

// Description returns the currently running graph's topology, or nil
// if none is running.
func (s *Supervisor) Description() []flowgraph.BlockDescription {
	h := s.Current()
	if h == nil {
		return nil
	}
	return h.Description()
}

// GraphID returns the instance identifier of the currently running
// graph and whether one is running.
func (s *Supervisor) GraphID() (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return uuid.UUID{}, false
	}
	return s.graphID, true
}

// Run starts the supervisor goroutine: it immediately loads
// initialConfigPath, then services reload requests until ctx is
// cancelled. Run blocks until ctx is done and the current graph (if
// any) has been torn down; it always returns nil, matching the
// "process continues, can no longer hot-swap" contract for a
// disconnected reload channel (spec.md §7 "Swap-time").
func (s *Supervisor) Run(ctx context.Context, initialConfigPath string) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer close(s.doneCh)

	if initialConfigPath != "" {
		s.swap(runCtx, reloadRequest{id: uuid.New(), configPath: initialConfigPath})
	}

	for {
		select {
		case <-runCtx.Done():
			s.teardownCurrent(context.Background())
			return nil
		case req := <-s.reloadCh:
			s.swap(runCtx, req)
		}
	}
}

// Stop cancels the supervisor's run loop and waits for it to exit.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.doneCh
}

// swap executes one hot-swap attempt in full: terminate the current
// graph, build the new one, start it, and notify. On build or start
// failure it logs, leaves the slot empty, and waits the configured
// backoff before returning to the caller's reload-wait loop — it never
// reinstates the graph that was just torn down.
func (s *Supervisor) swap(ctx context.Context, req reloadRequest) {
	logger := s.logger.With("request_id", req.id, "config", req.configPath)
	timer := metrics.NewTimer()

	s.teardownCurrent(ctx)

	desc, err := loader.ParseGraphFile(req.configPath)
	if err != nil {
		logger.Error("failed to parse graph description", "error", err)
		s.publish(events.KindReloadFailed, map[string]any{"request_id": req.id.String(), "error": err.Error()})
		timer.ObserveSwap("failed")
		s.wait(ctx, s.cfg.RetryBackoff)
		return
	}

	builder, lctx, err := loader.BuildGraph(logger, desc, s.registry, loader.Deps{
		Broadcaster: s.broadcaster,
		Requester:   s,
	}, s.cfg.Conditions)
	if err != nil {
		logger.Error("failed to build graph", "error", err)
		s.publish(events.KindReloadFailed, map[string]any{"request_id": req.id.String(), "error": err.Error()})
		timer.ObserveSwap("failed")
		s.wait(ctx, s.cfg.RetryBackoff)
		return
	}

	handle, err := builder.Start(ctx)
	if err != nil {
		logger.Error("failed to start graph", "error", err)
		s.publish(events.KindReloadFailed, map[string]any{"request_id": req.id.String(), "error": err.Error()})
		timer.ObserveSwap("failed")
		s.wait(ctx, s.cfg.RetryBackoff)
		return
	}
	timer.ObserveSwap("success")

	newID := uuid.New()
	s.mu.Lock()
	s.current = handle
	s.loaded = lctx
	s.graphID = newID
	s.mu.Unlock()

	logger.Info("graph started", "graph_id", newID)
	s.publish(events.KindGraphStarted, map[string]any{"graph_id": newID.String(), "config": req.configPath})

	go s.sampleMetrics(ctx, handle)

	if runner := s.startSenders(ctx, handle, lctx); runner != nil {
		go func() {
			<-ctx.Done()
			runner.Stop()
		}()
	}

	if ctrlID, ok := handle.ControllerBlockID(); ok {
		if err := handle.Post(ctx, ctrlID, "rx", pmt.String("reload")); err != nil {
			logger.Warn("failed to post reload notification", "error", err)
		} else {
			s.publish(events.KindReloadSucceeded, map[string]any{"request_id": req.id.String(), "graph_id": newID.String()})
		}
	} else {
		s.publish(events.KindReloadSucceeded, map[string]any{"request_id": req.id.String(), "graph_id": newID.String()})
	}
}

// sampleMetrics periodically pushes handle's ring/mailbox occupancy
// into the Prometheus gauges until ctx is cancelled or handle is no
// longer the current graph (it has been torn down). One goroutine per
// graph generation.
func (s *Supervisor) sampleMetrics(ctx context.Context, handle *flowgraph.Handle) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Current() != handle {
				return
			}
			metrics.SampleHandle(handle)
		}
	}
}

func (s *Supervisor) startSenders(ctx context.Context, handle *flowgraph.Handle, lctx *loader.Context) *scheduler.Runner {
	if len(lctx.Senders) == 0 {
		return nil
	}
	runner := scheduler.New(s.logger, handleTarget{handle: handle})
	if err := runner.Start(ctx, lctx.Senders, lctx.Resolve); err != nil {
		s.logger.Error("failed to start periodic senders", "error", err)
		return nil
	}
	return runner
}

func (s *Supervisor) teardownCurrent(ctx context.Context) {
	s.mu.Lock()
	h := s.current
	s.current = nil
	s.loaded = nil
	s.mu.Unlock()

	if h == nil {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := h.TerminateAndWait(waitCtx); err != nil {
		s.logger.Warn("graph termination did not complete cleanly", "error", err)
	}
	s.publish(events.KindGraphTerminated, nil)
}

func (s *Supervisor) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (s *Supervisor) publish(kind string, data map[string]any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceSupervisor,
		Kind:      kind,
		Data:      data,
	})
}
