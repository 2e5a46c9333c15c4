package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/displib/core/metrics"
)

// PromSink records solve runs in Prometheus metrics.
type PromSink struct {
	runs       *prometheus.CounterVec
	runtime    *prometheus.HistogramVec
	objective  prometheus.Gauge
	gap        prometheus.Gauge
	incumbents prometheus.Counter
	operations prometheus.Gauge
}

// NewPromSink registers solve metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry("", prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(namespace string, reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solve_runs_total",
			Help:      "Total number of solve calls by terminal status",
		}, []string{"status"}),
		runtime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_runtime_seconds",
			Help:      "Wall-clock time of solve calls including encoding and extraction",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		}, []string{"status"}),
		objective: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "solve_last_objective",
			Help:      "Objective value of the last solved instance",
		}),
		gap: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "solve_last_gap_ratio",
			Help:      "Relative optimality gap of the last solved instance",
		}),
		incumbents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solve_incumbents_total",
			Help:      "Number of improving schedules reported by searches",
		}),
		operations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instance_operations",
			Help:      "Number of operations in the last loaded instance",
		}),
	}
	var err error
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.runtime, err = register(reg, s.runtime); err != nil {
		return nil, err
	}
	if s.objective, err = register(reg, s.objective); err != nil {
		return nil, err
	}
	if s.gap, err = register(reg, s.gap); err != nil {
		return nil, err
	}
	if s.incumbents, err = register(reg, s.incumbents); err != nil {
		return nil, err
	}
	if s.operations, err = register(reg, s.operations); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordSolveRun updates counters and gauges for a finished run.
func (s *PromSink) RecordSolveRun(run coremetrics.SolveRun) error {
	s.runs.WithLabelValues(run.Status).Inc()
	s.runtime.WithLabelValues(run.Status).Observe(run.Runtime.Seconds())
	s.objective.Set(run.Objective)
	s.gap.Set(run.Gap)
	return nil
}

// RecordIncumbent counts an improving schedule.
func (s *PromSink) RecordIncumbent(coremetrics.IncumbentEvent) error {
	s.incumbents.Inc()
	return nil
}

// RecordInstance sets the operation gauge.
func (s *PromSink) RecordInstance(ev coremetrics.InstanceEvent) error {
	s.operations.Set(float64(ev.Operations))
	return nil
}
