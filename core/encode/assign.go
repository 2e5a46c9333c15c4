package encode

import (
	"fmt"
	"math"
)

// Schedule is the decision-level view of a solution: the operations on the
// realised paths, the realised routing edges and the start times.
type Schedule struct {
	Active []bool
	// Chosen is indexed like Model.Edges.
	Chosen []bool
	Start  []int64
}

// Assign expands s into a full assignment. Order variables follow the start
// times; delay variables take their smallest feasible value. Inactive
// operations get start 0.
func (m *Model) Assign(s Schedule) (Assignment, error) {
	n := m.NumOps()
	if len(s.Active) != n || len(s.Start) != n || len(s.Chosen) != len(m.Edges) {
		return nil, fmt.Errorf("schedule sized %d/%d/%d, model has %d operations and %d edges",
			len(s.Active), len(s.Start), len(s.Chosen), n, len(m.Edges))
	}
	x := m.NewAssignment()
	for id := 0; id < n; id++ {
		if !s.Active[id] {
			x[m.start[id]] = 0
			x[m.active[id]] = 0
			continue
		}
		x[m.start[id]] = float64(s.Start[id])
		x[m.active[id]] = 1
	}
	for i, e := range m.Edges {
		if s.Chosen[i] {
			x[e.Choose] = 1
		} else {
			x[e.Choose] = 0
		}
	}
	for _, ov := range m.Orders {
		ab := true
		if s.Active[ov.A] && s.Active[ov.B] {
			ab = s.Start[ov.B] >= s.Start[ov.A]+m.Op(ov.A).MinDuration+ov.ReleaseA
		}
		if ab {
			x[ov.AB], x[ov.BA] = 1, 0
		} else {
			x[ov.AB], x[ov.BA] = 0, 1
		}
	}
	for _, dv := range m.Delays {
		x[dv.Delay] = 0
		if dv.HasDelay >= 0 {
			x[dv.HasDelay] = 0
		}
		if !s.Active[dv.Op] {
			continue
		}
		if d := s.Start[dv.Op] - dv.Term.Threshold; d > 0 {
			x[dv.Delay] = float64(d)
			if dv.HasDelay >= 0 {
				x[dv.HasDelay] = 1
			}
		}
	}
	return x, nil
}

// ScheduleOf reads the decision-level view back from x.
func (m *Model) ScheduleOf(x Assignment) Schedule {
	n := m.NumOps()
	s := Schedule{Active: make([]bool, n), Chosen: make([]bool, len(m.Edges)), Start: make([]int64, n)}
	for id := 0; id < n; id++ {
		s.Active[id] = x[m.active[id]] > 0.5
		s.Start[id] = int64(math.Round(x[m.start[id]]))
	}
	for i, e := range m.Edges {
		s.Chosen[i] = x[e.Choose] > 0.5
	}
	return s
}
