// Package scheduler drives a running flowgraph's periodic message
// sender runtime tasks: the `[runtime] async_tasks` section of a
// graph description (spec.md §6), adapted from the teacher's
// interval/cron task scheduler into a simpler, ephemeral form tied to
// one flowgraph's lifetime. There is no persistence here — a graph's
// senders exist only while its flowgraph is running and are rebuilt
// from scratch on every hot-swap, matching the supervisor's
// no-state-sharing-across-swaps contract (spec.md §4.6 step 4).
package scheduler

import (
	"fmt"
	"time"
)

// SenderSpec describes one periodic message-sender task parsed from a
// graph description's `[runtime] async_tasks` entry: on every Interval
// tick, post a message built from Pattern to Block's Port.
type SenderSpec struct {
	// Block is the target block's declared name, resolved to a
	// BlockID by the loader context before the Runner starts.
	Block string
	// Port is the target block's message input port name.
	Port string
	// Task names the sender kind. Only "message" is implemented: post
	// one PMT built from Format/Pattern per tick. Unknown kinds are a
	// build-time error so a typo in a graph description fails loudly
	// rather than silently doing nothing.
	Task string
	// Interval is how often the sender fires.
	Interval time.Duration
	// Format selects which PMT variant Pattern renders into: "string"
	// (default) for pmt.String, or "blob" for pmt.Blob of the same
	// rendered bytes.
	Format string
	// Pattern is the message template. The literal substring "{seq}"
	// is replaced with the sender's 0-based firing count before each
	// send.
	Pattern string
	// Extra carries any additional `extra_params` the graph
	// description attached to this task; Format/Pattern cover the
	// common case, Extra lets a future Task kind read structured
	// parameters without changing SenderSpec's shape.
	Extra map[string]string
}

const (
	FormatString = "string"
	FormatBlob   = "blob"
	TaskMessage  = "message"
)

// Validate checks a SenderSpec is well-formed independent of any
// running flowgraph (block and port names are set, interval is
// positive, task/format are known); whether the names resolve is
// checked by Runner.Start. The loader calls this while building a graph's runtime
// section so a malformed entry is a build-time error (spec.md §7),
// not a silent no-op once the graph is running.
func (s SenderSpec) Validate() error {
	if s.Block == "" {
		return fmt.Errorf("scheduler: async task missing block name")
	}
	if s.Port == "" {
		return fmt.Errorf("scheduler: async task for block %q missing port name", s.Block)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("scheduler: async task %s.%s interval must be positive, got %s", s.Block, s.Port, s.Interval)
	}
	switch s.Task {
	case "", TaskMessage:
	default:
		return fmt.Errorf("scheduler: async task %s.%s has unknown task kind %q", s.Block, s.Port, s.Task)
	}
	switch s.Format {
	case "", FormatString, FormatBlob:
	default:
		return fmt.Errorf("scheduler: async task %s.%s has unknown message_format %q", s.Block, s.Port, s.Format)
	}
	return nil
}
