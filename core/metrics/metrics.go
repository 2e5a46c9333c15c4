package metrics

import (
	"time"
)

// SolveRun summarises one completed solve call.
type SolveRun struct {
	RunID      string
	Source     string
	Status     string
	StopReason string
	Objective  float64
	Bound      float64
	Gap        float64
	Trains     int
	Operations int
	Events     int
	Workers    int
	Nodes      int64
	Pruned     int64
	Incumbents int64
	Runtime    time.Duration
	Time       time.Time
}

// MetricsSink records solve runs for observability purposes.
type MetricsSink interface {
	RecordSolveRun(run SolveRun) error
}

// IncumbentEvent is an improving schedule found during a search.
type IncumbentEvent struct {
	RunID     string
	Objective float64
	Nodes     int64
	Elapsed   time.Duration
	Time      time.Time
}

// IncumbentRecorder records incumbent improvements.
type IncumbentRecorder interface {
	RecordIncumbent(ev IncumbentEvent) error
}

// InstanceEvent describes a loaded instance.
type InstanceEvent struct {
	Source     string
	Trains     int
	Operations int
	Resources  int
	Conflicts  int
	Time       time.Time
}

// InstanceRecorder records loaded instances.
type InstanceRecorder interface {
	RecordInstance(ev InstanceEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSolveRun(SolveRun) error        { return nil }
func (NopSink) RecordIncumbent(IncumbentEvent) error { return nil }
func (NopSink) RecordInstance(InstanceEvent) error   { return nil }
