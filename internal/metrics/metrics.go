// Package metrics exposes Prometheus gauges and counters describing
// the running flowgraph runtime: ring buffer occupancy per edge,
// mailbox depth per message input, the active block-task count, and
// hot-swap counts/durations. Grounded on the teacher corpus's
// package-level-vars-plus-init-registration style for exporting
// operational metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/axiom-sdr/flowgraphd/internal/flowgraph"
)

var (
	RingOccupancy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowgraphd_ring_occupancy_elements",
			Help: "Current element count in a stream edge's ring buffer",
		},
		[]string{"block", "port"},
	)

	RingCapacity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowgraphd_ring_capacity_elements",
			Help: "Configured element capacity of a stream edge's ring buffer",
		},
		[]string{"block", "port"},
	)

	MailboxDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowgraphd_mailbox_depth",
			Help: "Current queued message count in a block's input mailbox",
		},
		[]string{"block", "port"},
	)

	ActiveBlockTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "flowgraphd_active_block_tasks",
			Help: "Number of block tasks in the currently running flowgraph",
		},
	)

	HotSwapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowgraphd_hot_swaps_total",
			Help: "Total number of hot-swap attempts by result",
		},
		[]string{"result"},
	)

	HotSwapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flowgraphd_hot_swap_duration_seconds",
			Help:    "Time taken for a hot-swap attempt (teardown + parse + build + start) in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		RingOccupancy,
		RingCapacity,
		MailboxDepth,
		ActiveBlockTasks,
		HotSwapsTotal,
		HotSwapDuration,
	)
}

// Handler returns the Prometheus scrape handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times a single operation (a hot-swap attempt) and reports its
// duration through ObserveSwap.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveSwap records the elapsed time on HotSwapDuration and
// increments HotSwapsTotal with the given result label ("success" or
// "failed").
func (t *Timer) ObserveSwap(result string) {
	HotSwapDuration.Observe(time.Since(t.start).Seconds())
	HotSwapsTotal.WithLabelValues(result).Inc()
}

// SampleHandle updates the per-edge and per-mailbox gauges and the
// active-block-task gauge from a running flowgraph's current
// occupancy snapshot. Call it periodically (e.g. every second) while
// a graph is running. Nothing resets the gauges: once sampling stops
// they keep the last values set, including the label sets of a
// torn-down graph.
func SampleHandle(h *flowgraph.Handle) {
	if h == nil {
		return
	}
	for _, e := range h.EdgeStats() {
		RingOccupancy.WithLabelValues(e.Block, e.Port).Set(float64(e.Len))
		RingCapacity.WithLabelValues(e.Block, e.Port).Set(float64(e.Capacity))
	}
	for _, m := range h.MailboxStats() {
		MailboxDepth.WithLabelValues(m.Block, m.Port).Set(float64(m.Len))
	}
	ActiveBlockTasks.Set(float64(h.BlockCount()))
}
