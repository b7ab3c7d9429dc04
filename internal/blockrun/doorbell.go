// Package blockrun runs one goroutine per block: it drives Kernel.Work
// and message dispatch, and sleeps on a composite wake source built
// from the block's connected stream edges, message mailboxes, and an
// explicit notify request, exactly the wake taxonomy the flowgraph
// describes (reader-ready, writer-ready, message-arrived,
// explicit-notify, termination).
package blockrun

// Doorbell is a single-slot, non-blocking wake signal. Ring is safe to
// call from any goroutine, any number of times; only the most recent
// ring before the waiter observes it is retained, which is correct
// here because the waiter always re-checks the real state (stream
// edge occupancy, mailbox length) rather than trusting the doorbell
// count.
type Doorbell struct {
	ch chan struct{}
}

// NewDoorbell creates a ready-to-use Doorbell.
func NewDoorbell() *Doorbell {
	return &Doorbell{ch: make(chan struct{}, 1)}
}

// Ring wakes a waiter, if one is waiting; otherwise it leaves a single
// pending wake for the next wait call.
func (d *Doorbell) Ring() {
	select {
	case d.ch <- struct{}{}:
	default:
	}
}

// C returns the channel a select statement waits on.
func (d *Doorbell) C() <-chan struct{} {
	return d.ch
}
