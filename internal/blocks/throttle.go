package blocks

import (
	"context"
	"reflect"
	"time"

	"github.com/axiom-sdr/flowgraphd/internal/block"
	"github.com/axiom-sdr/flowgraphd/internal/port"
	"github.com/axiom-sdr/flowgraphd/internal/ring"
)

// Throttle copies samples from "input" to "output" at no more than
// SampleRate per second, gating each Work call against a deadline the
// way the teacher's signal bridge gates senders against a sliding
// rate-limit window (internal/signal.Bridge.allowSender), simplified
// here to a single fixed-rate gate per block rather than a per-sender
// map since a Throttle instance only ever sees one stream.
type Throttle[T any] struct {
	name       string
	sampleRate float64

	start   time.Time
	emitted uint64
}

// NewThrottle creates a Throttle passing element type T at sampleRate
// samples/sec. sampleRate <= 0 disables gating entirely (pure
// pass-through).
func NewThrottle[T any](name string, sampleRate float64) *Throttle[T] {
	return &Throttle[T]{name: name, sampleRate: sampleRate}
}

func (t *Throttle[T]) Meta() block.Meta {
	var zero T
	typ := reflect.TypeOf(zero)
	return block.Meta{
		Name:          t.name,
		StreamInputs:  []port.StreamSpec{{Name: "input", ElemType: typ, Direction: port.Input}},
		StreamOutputs: []port.StreamSpec{{Name: "output", ElemType: typ, Direction: port.Output}},
	}
}

func (t *Throttle[T]) Work(ctx context.Context, io *block.WorkIO) (block.WorkStatus, error) {
	in := io.Inputs[0].Backing().(*ring.Buffer[T])
	out := io.Outputs[0].Backing().(*ring.Buffer[T])

	readWindow := in.ReadWindow()
	writeWindow := out.WriteWindow()
	n := min(len(readWindow), len(writeWindow))

	if t.sampleRate > 0 {
		if t.start.IsZero() {
			t.start = time.Now()
		}
		allowed := t.budget()
		if allowed <= 0 {
			if n == 0 && io.Inputs[0].Drained() {
				return block.StatusDone, nil
			}
			io.WakeAfter(t.nextWakeDelay())
			return block.StatusIdle, nil
		}
		if n > allowed {
			n = allowed
		}
	}

	if n == 0 {
		if io.Inputs[0].Drained() {
			return block.StatusDone, nil
		}
		return block.StatusIdle, nil
	}

	copy(writeWindow[:n], readWindow[:n])
	in.CommitRead(n)
	out.CommitWrite(n)
	t.emitted += uint64(n)
	return block.StatusOK, nil
}

// budget reports how many samples the rate allows right now given how
// many have already been emitted since start.
func (t *Throttle[T]) budget() int {
	elapsed := time.Since(t.start)
	allowedTotal := t.sampleRate * elapsed.Seconds()
	remaining := allowedTotal - float64(t.emitted)
	if remaining < 1 {
		return 0
	}
	return int(remaining)
}

// nextWakeDelay reports how long until the rate gate permits the next
// sample, so a call reporting StatusIdle can ask to be re-invoked at
// that time instead of waiting on a stream or message port that will
// never become ready on its own.
func (t *Throttle[T]) nextWakeDelay() time.Duration {
	neededElapsed := float64(t.emitted+1) / t.sampleRate
	target := t.start.Add(time.Duration(neededElapsed * float64(time.Second)))
	d := time.Until(target)
	if d <= 0 {
		d = time.Millisecond
	}
	return d
}

func (t *Throttle[T]) MessageHandlers() map[string]block.MessageHandler { return nil }

// Emitted reports the number of samples forwarded so far.
func (t *Throttle[T]) Emitted() uint64 { return t.emitted }
