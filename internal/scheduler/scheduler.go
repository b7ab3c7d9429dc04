package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/axiom-sdr/flowgraphd/internal/pmt"
)

// Target is the subset of a flowgraph handle a Runner needs: posting a
// fire-and-forget message to a block's message input port. Defined
// here rather than imported from internal/flowgraph so this package
// stays a leaf with no dependency on the flowgraph package; the
// supervisor adapts a *flowgraph.Handle to this interface when it
// starts a graph's runtime senders.
type Target interface {
	Post(ctx context.Context, blockID int, port string, value pmt.Pmt) error
}

// Runner drives every periodic sender declared in one flowgraph's
// `[runtime] async_tasks` section for the lifetime of that flowgraph.
// One timer per SenderSpec, following the teacher's
// time.AfterFunc/cancel-on-stop shape (internal/scheduler.Scheduler in
// its original form) rather than a shared ticker, so each sender's
// next fire can be rescheduled independently and Stop is a simple
// "cancel every outstanding timer, then wait" operation.
type Runner struct {
	logger *slog.Logger
	target Target

	mu      sync.Mutex
	timers  map[int]*time.Timer
	running bool
	wg      sync.WaitGroup
}

// New creates a Runner posting to target.
func New(logger *slog.Logger, target Target) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger: logger,
		target: target,
		timers: make(map[int]*time.Timer),
	}
}

// resolved pairs a validated SenderSpec with the BlockID its Block
// name resolved to, looked up by the caller (the loader context holds
// the name -> BlockID map; this package has no name resolution of its
// own).
type resolved struct {
	idx     int
	spec    SenderSpec
	blockID int
	seq     int
}

// Start launches one goroutine-backed timer per spec. ctx bounds the
// Runner's entire lifetime: cancelling it stops every sender at its
// next fire. resolve maps a spec's Block name to a BlockID, as
// assembled by the declarative loader (§4.7); Start returns an error
// without starting anything if any spec fails to resolve or fails
// Validate.
func (r *Runner) Start(ctx context.Context, specs []SenderSpec, resolve func(name string) (int, bool)) error {
	resolvedSpecs := make([]resolved, 0, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return err
		}
		id, ok := resolve(s.Block)
		if !ok {
			return fmt.Errorf("scheduler: async task references unknown block %q", s.Block)
		}
		resolvedSpecs = append(resolvedSpecs, resolved{idx: len(resolvedSpecs), spec: s, blockID: id})
	}

	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	for i := range resolvedSpecs {
		r.scheduleNext(ctx, &resolvedSpecs[i])
	}
	return nil
}

// Stop cancels every outstanding timer and waits for any in-flight
// send to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Runner) scheduleNext(ctx context.Context, rs *resolved) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.timers[rs.idx] = time.AfterFunc(rs.spec.Interval, func() {
		r.fire(ctx, rs)
	})
}

func (r *Runner) fire(ctx context.Context, rs *resolved) {
	r.wg.Add(1)
	defer r.wg.Done()

	r.mu.Lock()
	if !r.running || ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	value, err := render(rs.spec, rs.seq)
	if err != nil {
		r.logger.Error("scheduler: failed to render sender payload",
			"block", rs.spec.Block, "port", rs.spec.Port, "error", err)
	} else {
		sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := r.target.Post(sendCtx, rs.blockID, rs.spec.Port, value); err != nil {
			r.logger.Warn("scheduler: periodic send failed",
				"block", rs.spec.Block, "port", rs.spec.Port, "seq", rs.seq, "error", err)
		}
		cancel()
	}

	rs.seq++
	r.scheduleNext(ctx, rs)
}

// render builds the PMT payload for one firing: substitutes "{seq}"
// in the pattern with the 0-based firing count, then wraps the result
// in the PMT variant the spec's Format names.
func render(spec SenderSpec, seq int) (pmt.Pmt, error) {
	text := strings.ReplaceAll(spec.Pattern, "{seq}", strconv.Itoa(seq))

	switch spec.Format {
	case "", FormatString:
		return pmt.String(text), nil
	case FormatBlob:
		return pmt.Blob([]byte(text)), nil
	default:
		return pmt.Pmt{}, fmt.Errorf("scheduler: unknown message_format %q", spec.Format)
	}
}
