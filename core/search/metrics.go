package search

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	nodesExplored    prometheus.Counter
	nodesPruned      prometheus.Counter
	incumbentUpdates prometheus.Counter
	searchDuration   *prometheus.HistogramVec
	solveGap         prometheus.Gauge
	activeWorkers    prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Counter, prometheus.Counter, prometheus.Counter, *prometheus.HistogramVec, prometheus.Gauge, prometheus.Gauge) {
	nodes := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "search_nodes_explored_total",
		Help: "Number of branch and bound nodes explored",
	})
	pruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "search_nodes_pruned_total",
		Help: "Number of nodes cut by bound or propagation failure",
	})
	inc := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "search_incumbent_updates_total",
		Help: "Number of improving schedules found",
	})
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Wall-clock time of solve calls by terminal status",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"status"},
	)
	gap := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "search_last_gap_ratio",
		Help: "Relative optimality gap of the last solve call",
	})
	workers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "search_active_workers",
		Help: "Number of search workers currently running",
	})
	return nodes, pruned, inc, dur, gap, workers
}

func init() {
	nodesExplored, nodesPruned, incumbentUpdates, searchDuration, solveGap, activeWorkers = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers search metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(nodesExplored, nodesPruned, incumbentUpdates, searchDuration, solveGap, activeWorkers)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	nodesExplored, nodesPruned, incumbentUpdates, searchDuration, solveGap, activeWorkers = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
