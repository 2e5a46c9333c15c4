// Package solution turns a search result into the published schedule and
// checks schedules against an instance.
package solution

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/kilianp07/displib/core/encode"
	"github.com/kilianp07/displib/core/model"
	"github.com/kilianp07/displib/core/search"
)

// ErrNotFeasible is returned when a result carries no feasible assignment.
var ErrNotFeasible = errors.New("solution: no feasible assignment")

// Event is one operation start on a train's realised path.
type Event struct {
	Train     int   `json:"train" yaml:"train"`
	Operation int   `json:"operation" yaml:"operation"`
	Time      int64 `json:"time" yaml:"time"`
}

// Solution is the output document.
type Solution struct {
	ObjectiveValue float64 `json:"objective_value" yaml:"objective_value"`
	Events         []Event `json:"events" yaml:"events"`
}

// FromResult extracts the solution carried by r.
func FromResult(m *encode.Model, r *search.Result) (*Solution, error) {
	if r == nil || !r.Status.HasSolution() || r.Assignment == nil {
		return nil, ErrNotFeasible
	}
	return Extract(m, r.Assignment)
}

// Extract walks every train from its active entry operations along the
// realised routing edges and emits one event per visited operation. Events
// are sorted by time, then operation index, then train index. The objective
// value is recomputed from the emitted times.
func Extract(m *encode.Model, x encode.Assignment) (*Solution, error) {
	if m == nil {
		return nil, search.ErrNoModel
	}
	if len(x) != len(m.Vars) {
		return nil, fmt.Errorf("solution: assignment has %d values, model has %d variables", len(x), len(m.Vars))
	}
	sol := &Solution{Events: []Event{}}
	times := make(map[model.OpRef]int64)
	visited := make([]bool, m.NumOps())
	for _, entry := range m.EntryOps() {
		if x[m.Active(entry)] < 0.5 {
			continue
		}
		for id := entry; id >= 0; {
			if visited[id] {
				break
			}
			visited[id] = true
			ref := m.Ref(id)
			t := int64(math.Round(x[m.Start(id)]))
			times[ref] = t
			sol.Events = append(sol.Events, Event{Train: ref.Train, Operation: ref.Op, Time: t})
			next := -1
			for _, ei := range m.Out(id) {
				e := m.Edges[ei]
				if x[e.Choose] > 0.5 && x[m.Active(e.To)] > 0.5 {
					next = e.To
					break
				}
			}
			id = next
		}
	}
	Sort(sol.Events)
	sol.ObjectiveValue = m.Instance.ObjectiveValue(times)
	return sol, nil
}

// Sort orders events by (time, operation, train).
func Sort(ev []Event) {
	sort.SliceStable(ev, func(i, j int) bool {
		a, b := ev[i], ev[j]
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		if a.Operation != b.Operation {
			return a.Operation < b.Operation
		}
		return a.Train < b.Train
	})
}

// Starts maps every event to its start time.
func (s *Solution) Starts() map[model.OpRef]int64 {
	out := make(map[model.OpRef]int64, len(s.Events))
	for _, e := range s.Events {
		out[model.OpRef{Train: e.Train, Op: e.Operation}] = e.Time
	}
	return out
}

// TrainEvents returns the events of one train in emission order.
func (s *Solution) TrainEvents(train int) []Event {
	var out []Event
	for _, e := range s.Events {
		if e.Train == train {
			out = append(out, e)
		}
	}
	return out
}
