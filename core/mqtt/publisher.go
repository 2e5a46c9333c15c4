// Package mqtt defines how solve results leave the process over MQTT. The
// broker-backed implementation lives in infra/mqtt.
package mqtt

import (
	"context"
	"errors"

	"github.com/kilianp07/displib/core/events"
	"github.com/kilianp07/displib/core/solution"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt: not connected")

// SolutionMessage is the payload published once a run completes.
type SolutionMessage struct {
	RunID          string           `json:"run_id"`
	Source         string           `json:"source,omitempty"`
	Status         string           `json:"status"`
	ObjectiveValue float64          `json:"objective_value"`
	Gap            float64          `json:"gap"`
	Events         []solution.Event `json:"events"`
	Timestamp      int64            `json:"timestamp"`
}

// ProgressMessage is the payload published for search events.
type ProgressMessage struct {
	RunID     string  `json:"run_id"`
	Kind      string  `json:"kind"`
	Objective float64 `json:"objective"`
	Bound     float64 `json:"bound,omitempty"`
	Gap       float64 `json:"gap,omitempty"`
	Nodes     int64   `json:"nodes"`
	ElapsedMS int64   `json:"elapsed_ms"`
}

// NewProgressMessage converts a search event.
func NewProgressMessage(ev events.SearchEvent) ProgressMessage {
	return ProgressMessage{
		RunID:     ev.RunID,
		Kind:      string(ev.Kind),
		Objective: ev.Objective,
		Bound:     ev.Bound,
		Gap:       ev.Gap,
		Nodes:     ev.Nodes,
		ElapsedMS: ev.Elapsed.Milliseconds(),
	}
}

// Publisher sends solver output to a broker.
type Publisher interface {
	PublishSolution(ctx context.Context, msg SolutionMessage) error
	PublishProgress(ctx context.Context, msg ProgressMessage) error
	Close()
}

// NopPublisher drops every message.
type NopPublisher struct{}

func (NopPublisher) PublishSolution(context.Context, SolutionMessage) error { return nil }
func (NopPublisher) PublishProgress(context.Context, ProgressMessage) error { return nil }
func (NopPublisher) Close()                                                 {}
