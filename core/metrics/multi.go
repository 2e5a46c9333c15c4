package metrics

import "errors"

// MultiSink fans records out to multiple sinks. Every sink is called even
// when an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSolveRun forwards the run to all sinks.
func (m *MultiSink) RecordSolveRun(run SolveRun) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.RecordSolveRun(run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordIncumbent forwards incumbents to sinks supporting them.
func (m *MultiSink) RecordIncumbent(ev IncumbentEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(IncumbentRecorder); ok {
			if err := rec.RecordIncumbent(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// RecordInstance forwards instance descriptions to sinks supporting them.
func (m *MultiSink) RecordInstance(ev InstanceEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if rec, ok := s.(InstanceRecorder); ok {
			if err := rec.RecordInstance(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
