// Package metrics defines interfaces for recording solver activity. Sinks
// like PromSink and InfluxSink record solve runs, incumbent improvements and
// loaded instances, and can be combined with NewMultiSink. The factory
// helpers return a MultiSink automatically when multiple sinks are
// configured.
package metrics
