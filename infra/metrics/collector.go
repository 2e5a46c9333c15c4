package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/displib/core/events"
	coremetrics "github.com/kilianp07/displib/core/metrics"
	"github.com/kilianp07/displib/infra/logger"
	"github.com/kilianp07/displib/internal/eventbus"
)

// StartEventCollector subscribes to search events and records incumbent
// improvements on sinks supporting them. Sink errors are logged on log, or
// on the "metrics" component logger when log is nil. It stops when the
// context is canceled or the bus is closed; the returned channel is closed
// then. It is nil when nothing is collected.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.SearchEvent], sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	if bus == nil || sink == nil {
		return nil
	}
	if log == nil {
		log = logger.New("metrics")
	}
	rec, ok := sink.(coremetrics.IncumbentRecorder)
	if !ok {
		return nil
	}
	return bus.Handle(ctx, func(ev events.SearchEvent) {
		if ev.Kind != events.SearchIncumbent {
			return
		}
		if err := rec.RecordIncumbent(coremetrics.IncumbentEvent{
			RunID:     ev.RunID,
			Objective: ev.Objective,
			Nodes:     ev.Nodes,
			Elapsed:   ev.Elapsed,
			Time:      time.Now(),
		}); err != nil {
			log.Warnf("record incumbent %s: %v", ev.RunID, err)
		}
	})
}
