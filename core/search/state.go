package search

import (
	"sort"

	"github.com/kilianp07/displib/core/encode"
)

// Tri-state values of activity, edges and pair orders.
const (
	unknown int8 = 0
	on      int8 = 1
	off     int8 = -1
	aFirst  int8 = 1
	bFirst  int8 = -1
)

const (
	kindEdge int8 = iota
	kindPair
)

// static holds read-only per-operation data shared by every worker.
type static struct {
	m       *encode.Model
	n       int
	topo    []int
	dur     []int64
	lb      []int64
	ub      []int64
	bounded []bool
	// tail is the shortest remaining duration to any terminal operation.
	tail    []int64
	terms   [][]int
	horizon int64
}

func newStatic(m *encode.Model) *static {
	n := m.NumOps()
	st := &static{
		m:       m,
		n:       n,
		dur:     make([]int64, n),
		lb:      make([]int64, n),
		ub:      make([]int64, n),
		bounded: make([]bool, n),
		tail:    make([]int64, n),
		terms:   make([][]int, n),
		horizon: m.Horizon,
	}
	for ti := range m.Instance.Trains {
		tr := &m.Instance.Trains[ti]
		for _, oi := range tr.Topo {
			st.topo = append(st.topo, m.OpID(tr.Ops[oi].Ref))
		}
	}
	for id := 0; id < n; id++ {
		op := m.Op(id)
		st.dur[id] = op.MinDuration
		st.lb[id] = op.StartLB
		st.ub[id] = op.StartUB
		st.bounded[id] = op.Bounded
	}
	for i := n - 1; i >= 0; i-- {
		id := st.topo[i]
		best := int64(-1)
		for _, ei := range m.Out(id) {
			e := m.Edges[ei]
			if v := e.Delay + st.tail[e.To]; best < 0 || v < best {
				best = v
			}
		}
		if best < 0 {
			best = 0
		}
		st.tail[id] = st.dur[id] + best
	}
	for i, d := range m.Delays {
		st.terms[d.Op] = append(st.terms[d.Op], i)
	}
	return st
}

// decision is one branching step: realise an edge or order a pair.
type decision struct {
	kind  int8
	index int
	dir   int8
}

// state is the private propagated view of a node.
type state struct {
	st     *static
	act    []int8
	edge   []int8
	order  []int8
	est    []int64
	queued []bool
	count  []int
	queue  []int
}

func newState(st *static) *state {
	return &state{
		st:     st,
		act:    make([]int8, st.n),
		edge:   make([]int8, len(st.m.Edges)),
		order:  make([]int8, len(st.m.Orders)),
		est:    make([]int64, st.n),
		queued: make([]bool, st.n),
		count:  make([]int, st.n),
	}
}

func (s *state) reset() {
	for i := range s.act {
		s.act[i] = unknown
	}
	for i := range s.edge {
		s.edge[i] = unknown
	}
	for i := range s.order {
		s.order[i] = unknown
	}
}

func (s *state) apply(d decision) {
	if d.kind == kindPair {
		s.order[d.index] = d.dir
		return
	}
	e := s.st.m.Edges[d.index]
	for _, ei := range s.st.m.Out(e.From) {
		s.edge[ei] = off
	}
	s.edge[d.index] = on
}

// propagate derives activity and earliest start times. It returns false when
// the node cannot be completed into a feasible schedule.
func (s *state) propagate() bool {
	s.propagateActivity()
	return s.propagateTimes()
}

// propagateActivity walks operations in topological order. An entry is
// active. An operation is active as soon as a realised edge from an active
// predecessor reaches it and inactive once every incoming edge is ruled out.
// An active operation left with a single open outgoing edge realises it.
func (s *state) propagateActivity() {
	m := s.st.m
	for _, id := range s.st.topo {
		in := m.In(id)
		if len(in) == 0 {
			s.act[id] = on
		} else {
			reached, open := false, false
			for _, ei := range in {
				from := m.Edges[ei].From
				switch {
				case s.act[from] == off || s.edge[ei] == off:
				case s.act[from] == on && s.edge[ei] == on:
					reached = true
				default:
					open = true
				}
			}
			switch {
			case reached:
				s.act[id] = on
			case !open:
				s.act[id] = off
			default:
				s.act[id] = unknown
			}
		}
		if s.act[id] != on {
			continue
		}
		last, openOut := -1, 0
		for _, ei := range m.Out(id) {
			if s.edge[ei] != off {
				last = ei
				openOut++
			}
		}
		if openOut == 1 {
			s.edge[last] = on
		}
	}
}

// propagateTimes computes earliest starts over active operations with a FIFO
// label-correcting longest path. Arcs are realised edges between active
// operations and decided orders between active pairs.
func (s *state) propagateTimes() bool {
	st := s.st
	m := st.m
	s.queue = s.queue[:0]
	for id := 0; id < st.n; id++ {
		s.est[id] = 0
		s.queued[id] = false
		s.count[id] = 0
		if s.act[id] != on {
			continue
		}
		s.est[id] = st.lb[id]
		if st.lb[id] > st.horizon || (st.bounded[id] && st.lb[id] > st.ub[id]) {
			return false
		}
		s.queue = append(s.queue, id)
		s.queued[id] = true
	}
	relax := func(to int, t int64) bool {
		if t <= s.est[to] {
			return true
		}
		if t > st.horizon || (st.bounded[to] && t > st.ub[to]) {
			return false
		}
		s.est[to] = t
		if !s.queued[to] {
			s.count[to]++
			if s.count[to] > st.n {
				return false
			}
			s.queued[to] = true
			s.queue = append(s.queue, to)
		}
		return true
	}
	for head := 0; head < len(s.queue); head++ {
		u := s.queue[head]
		s.queued[u] = false
		end := s.est[u] + st.dur[u]
		for _, ei := range m.Out(u) {
			e := m.Edges[ei]
			if s.edge[ei] != on || s.act[e.To] != on {
				continue
			}
			if !relax(e.To, end+e.Delay) {
				return false
			}
		}
		for _, oi := range m.PairsOf(u) {
			o := m.Orders[oi]
			if s.order[oi] == unknown || s.act[o.A] != on || s.act[o.B] != on {
				continue
			}
			switch {
			case s.order[oi] == aFirst && o.A == u:
				if !relax(o.B, end+o.ReleaseA) {
					return false
				}
			case s.order[oi] == bFirst && o.B == u:
				if !relax(o.A, end+o.ReleaseB) {
					return false
				}
			}
		}
		// Compact the queue once the consumed prefix dominates.
		if head > 1024 && head > len(s.queue)/2 {
			s.queue = append(s.queue[:0], s.queue[head+1:]...)
			head = -1
		}
	}
	return true
}

// cost is the lower bound of the node: penalties of known-active operations
// at their earliest starts plus the number of known-active operations.
func (s *state) cost() Cost {
	var c Cost
	for id := 0; id < s.st.n; id++ {
		if s.act[id] != on {
			continue
		}
		c.Active++
		for _, ti := range s.st.terms[id] {
			c.Penalty += s.st.m.Delays[ti].Term.Penalty(s.est[id])
		}
	}
	return c
}

// conflict is an undecided pair of active operations whose earliest
// occupations overlap.
type conflict struct {
	order  int
	shiftA int64 // how far B moves when A goes first
	shiftB int64 // how far A moves when B goes first
}

func (c conflict) slack() int64 {
	if c.shiftA < c.shiftB {
		return c.shiftA
	}
	return c.shiftB
}

// worstConflict returns the overlapping pair whose cheaper resolution still
// moves an operation the most. Ties go to the lowest pair index.
func (s *state) worstConflict() (conflict, bool) {
	m := s.st.m
	var (
		best  conflict
		found bool
	)
	for oi, o := range m.Orders {
		if s.order[oi] != unknown || s.act[o.A] != on || s.act[o.B] != on {
			continue
		}
		endA := s.est[o.A] + s.st.dur[o.A] + o.ReleaseA
		endB := s.est[o.B] + s.st.dur[o.B] + o.ReleaseB
		if s.est[o.B] >= endA || s.est[o.A] >= endB {
			continue
		}
		c := conflict{order: oi, shiftA: endA - s.est[o.B], shiftB: endB - s.est[o.A]}
		if !found || c.slack() > best.slack() {
			best, found = c, true
		}
	}
	return best, found
}

// openRouting returns the active operation with undecided routing that has
// the fewest open alternatives, then the earliest start, then lowest id.
func (s *state) openRouting() (int, []int, bool) {
	m := s.st.m
	bestID, bestN := -1, 0
	var bestEdges []int
	for id := 0; id < s.st.n; id++ {
		if s.act[id] != on {
			continue
		}
		var open []int
		decided := false
		for _, ei := range m.Out(id) {
			switch s.edge[ei] {
			case on:
				decided = true
			case unknown:
				open = append(open, ei)
			}
		}
		if decided || len(open) < 2 {
			continue
		}
		if bestID < 0 || len(open) < bestN || (len(open) == bestN && s.est[id] < s.est[bestID]) {
			bestID, bestN, bestEdges = id, len(open), open
		}
	}
	if bestID < 0 {
		return 0, nil, false
	}
	sort.SliceStable(bestEdges, func(i, j int) bool {
		ei, ej := m.Edges[bestEdges[i]], m.Edges[bestEdges[j]]
		return ei.Delay+s.st.tail[ei.To] < ej.Delay+s.st.tail[ej.To]
	})
	return bestID, bestEdges, true
}

// schedule snapshots the state of a leaf.
func (s *state) schedule() encode.Schedule {
	sc := encode.Schedule{
		Active: make([]bool, s.st.n),
		Chosen: make([]bool, len(s.edge)),
		Start:  make([]int64, s.st.n),
	}
	for id := 0; id < s.st.n; id++ {
		if s.act[id] == on {
			sc.Active[id] = true
			sc.Start[id] = s.est[id]
		}
	}
	for ei, e := range s.st.m.Edges {
		sc.Chosen[ei] = s.edge[ei] == on && s.act[e.From] == on
	}
	return sc
}
