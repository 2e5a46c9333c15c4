package encode

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kilianp07/displib/core/conflict"
	"github.com/kilianp07/displib/core/model"
)

// RoutingMode selects which routing edges carry the extra branch delay.
type RoutingMode string

const (
	RoutingNone        RoutingMode = "none"
	RoutingAllBranches RoutingMode = "all_branches"
	RoutingSwapOnly    RoutingMode = "swap_only"
)

// ErrInvalidPolicy is returned for an unknown routing mode or a negative delay.
var ErrInvalidPolicy = errors.New("invalid routing policy")

// RoutingPolicy adds ExtraDelay to the path timing of selected routing edges.
type RoutingPolicy struct {
	Mode       RoutingMode `json:"mode"`
	ExtraDelay int64       `json:"extra_delay"`
}

// ParseRoutingMode accepts the mode names case-insensitively. The empty
// string maps to RoutingNone.
func ParseRoutingMode(s string) (RoutingMode, error) {
	switch RoutingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoutingNone:
		return RoutingNone, nil
	case RoutingAllBranches:
		return RoutingAllBranches, nil
	case RoutingSwapOnly:
		return RoutingSwapOnly, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, s)
}

// Validate checks the policy fields.
func (p RoutingPolicy) Validate() error {
	if _, err := ParseRoutingMode(string(p.Mode)); err != nil {
		return err
	}
	if p.ExtraDelay < 0 {
		return fmt.Errorf("%w: extra_delay %d is negative", ErrInvalidPolicy, p.ExtraDelay)
	}
	return nil
}

// Delay returns the extra time the policy adds to the routing edge from -> to.
func (p RoutingPolicy) Delay(in *model.Instance, idx *conflict.Index, from, to model.OpRef) int64 {
	mode, _ := ParseRoutingMode(string(p.Mode))
	switch mode {
	case RoutingAllBranches:
		if len(in.Op(from).Successors) > 1 {
			return p.ExtraDelay
		}
	case RoutingSwapOnly:
		if idx.IsSwapEdge(conflict.Edge{From: from, To: to}) {
			return p.ExtraDelay
		}
	}
	return 0
}

func (p RoutingPolicy) horizonDelay() int64 {
	mode, _ := ParseRoutingMode(string(p.Mode))
	if mode == RoutingNone {
		return 0
	}
	return p.ExtraDelay
}

type builder struct {
	m *Model
}

func (b *builder) addVar(kind VarKind, name string, lo, hi float64, integer bool) VarID {
	id := VarID(len(b.m.Vars))
	b.m.Vars = append(b.m.Vars, Var{ID: id, Kind: kind, Name: name, Lower: lo, Upper: hi, Integer: integer})
	return id
}

func (b *builder) addRow(name string, sense Sense, rhs float64, terms ...Term) {
	b.m.Rows = append(b.m.Rows, Row{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

func opName(r model.OpRef) string { return fmt.Sprintf("t%d,o%d", r.Train, r.Op) }

// Encode builds the model for in. A nil idx is computed from in.
//
// Rows, with M = BigM:
//
//	routing     Σ choose[op,*] - active[op] = 0           (op has successors)
//	activity    active[s] - choose[op,s] >= 0
//	            active[op] - Σ choose[*,op] <= 0          (op has predecessors)
//	            active[op] = 1                            (entry op)
//	timing      start[s] - start[op] - M choose[op,s] >= dur + delay - M
//	window      start[op] - lb active[op] >= 0
//	            start[op] + M active[op] <= ub + M        (bounded ops)
//	exclusion   order[A,B] + order[B,A] = 1
//	            start[B] - start[A] - M (order[A,B] + active[A] + active[B])
//	                >= dur[A] + rel[A,r] - 3M             (each shared r, both ways)
//	objective   delay[t] - start[op] - M active[op] >= -thr - M
//	            delay[t] - M' hasDelay[t] <= 0            (increment > 0)
func Encode(in *model.Instance, idx *conflict.Index, policy RoutingPolicy) (*Model, error) {
	if in == nil {
		return nil, errors.New("encode: nil instance")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.Mode == "" {
		policy.Mode = RoutingNone
	}
	if idx == nil {
		idx = conflict.NewIndex(in)
	}

	h := in.Horizon(policy.horizonDelay())
	// Negative upper bounds and thresholds widen the gap a relaxed row must
	// absorb.
	var slack int64
	for ti := range in.Trains {
		for oi := range in.Trains[ti].Ops {
			op := &in.Trains[ti].Ops[oi]
			if op.Bounded && -op.StartUB > slack {
				slack = -op.StartUB
			}
		}
	}
	for _, t := range in.Objective {
		if -t.Threshold > slack {
			slack = -t.Threshold
		}
	}
	bigM := 2*float64(h) + 1 + float64(slack)

	m := &Model{Instance: in, Index: idx, Policy: policy, Horizon: h, BigM: bigM}
	b := &builder{m: m}

	m.base = make([]int, len(in.Trains))
	for ti := range in.Trains {
		m.base[ti] = len(m.refs)
		for oi := range in.Trains[ti].Ops {
			m.refs = append(m.refs, model.OpRef{Train: ti, Op: oi})
		}
	}
	n := len(m.refs)
	m.start = make([]VarID, n)
	m.active = make([]VarID, n)
	m.out = make([][]int, n)
	m.in = make([][]int, n)
	m.pairsOf = make([][]int, n)

	hf := float64(h)
	for id, r := range m.refs {
		m.start[id] = b.addVar(KindStart, "start["+opName(r)+"]", 0, hf, false)
		lo := 0.0
		if in.Op(r).IsEntry() {
			lo = 1
		}
		m.active[id] = b.addVar(KindActive, "active["+opName(r)+"]", lo, 1, true)
	}
	for id, r := range m.refs {
		op := in.Op(r)
		for _, s := range op.Successors {
			to := m.OpID(model.OpRef{Train: r.Train, Op: s})
			e := Edge{
				From:  id,
				To:    to,
				Delay: policy.Delay(in, idx, r, m.refs[to]),
			}
			e.Choose = b.addVar(KindChoose, fmt.Sprintf("choose[%s->o%d]", opName(r), s), 0, 1, true)
			m.out[id] = append(m.out[id], len(m.Edges))
			m.in[to] = append(m.in[to], len(m.Edges))
			m.Edges = append(m.Edges, e)
		}
	}
	for _, p := range idx.Pairs {
		a, c := m.OpID(p.A), m.OpID(p.B)
		ov := OrderVar{Pair: p.ID, A: a, B: c, ReleaseA: p.ReleaseA(), ReleaseB: p.ReleaseB()}
		ov.AB = b.addVar(KindOrder, fmt.Sprintf("order[%d:%s<%s]", p.ID, opName(p.A), opName(p.B)), 0, 1, true)
		ov.BA = b.addVar(KindOrder, fmt.Sprintf("order[%d:%s<%s]", p.ID, opName(p.B), opName(p.A)), 0, 1, true)
		m.pairsOf[a] = append(m.pairsOf[a], len(m.Orders))
		m.pairsOf[c] = append(m.pairsOf[c], len(m.Orders))
		m.Orders = append(m.Orders, ov)
	}
	for _, t := range in.Objective {
		ov := ObjectiveVar{Term: t, Op: m.OpID(t.Op), HasDelay: -1}
		ov.Delay = b.addVar(KindDelay, fmt.Sprintf("delay[%d]", t.Index), 0, delayCap(h, t), false)
		if t.Increment > 0 {
			ov.HasDelay = b.addVar(KindHasDelay, fmt.Sprintf("has_delay[%d]", t.Index), 0, 1, true)
		}
		m.Delays = append(m.Delays, ov)
	}

	encodeRouting(b)
	encodeWindows(b)
	encodeExclusion(b)
	encodeObjective(b)
	return m, nil
}

func encodeRouting(b *builder) {
	m := b.m
	for id, r := range m.refs {
		op := m.Op(id)
		if len(m.out[id]) > 0 {
			terms := []Term{{Var: m.active[id], Coeff: -1}}
			for _, ei := range m.out[id] {
				terms = append(terms, Term{Var: m.Edges[ei].Choose, Coeff: 1})
			}
			b.addRow("route["+opName(r)+"]", EQ, 0, terms...)
		}
		if op.IsEntry() {
			b.addRow("entry["+opName(r)+"]", EQ, 1, Term{Var: m.active[id], Coeff: 1})
			continue
		}
		terms := []Term{{Var: m.active[id], Coeff: 1}}
		for _, ei := range m.in[id] {
			terms = append(terms, Term{Var: m.Edges[ei].Choose, Coeff: -1})
		}
		b.addRow("reach["+opName(r)+"]", LE, 0, terms...)
	}
	for _, e := range m.Edges {
		from, to := m.refs[e.From], m.refs[e.To]
		b.addRow(fmt.Sprintf("link[%s->o%d]", opName(from), to.Op), GE, 0,
			Term{Var: m.active[e.To], Coeff: 1}, Term{Var: e.Choose, Coeff: -1})
		dur := float64(m.Op(e.From).MinDuration + e.Delay)
		b.addRow(fmt.Sprintf("path[%s->o%d]", opName(from), to.Op), GE, dur-m.BigM,
			Term{Var: m.start[e.To], Coeff: 1}, Term{Var: m.start[e.From], Coeff: -1}, Term{Var: e.Choose, Coeff: -m.BigM})
	}
}

func encodeWindows(b *builder) {
	m := b.m
	for id, r := range m.refs {
		op := m.Op(id)
		if op.StartLB > 0 {
			b.addRow("lb["+opName(r)+"]", GE, 0,
				Term{Var: m.start[id], Coeff: 1}, Term{Var: m.active[id], Coeff: -float64(op.StartLB)})
		}
		if op.Bounded {
			b.addRow("ub["+opName(r)+"]", LE, float64(op.StartUB)+m.BigM,
				Term{Var: m.start[id], Coeff: 1}, Term{Var: m.active[id], Coeff: m.BigM})
		}
	}
}

func encodeExclusion(b *builder) {
	m := b.m
	for _, ov := range m.Orders {
		p := m.Index.Pairs[ov.Pair]
		name := fmt.Sprintf("%d:%s|%s", p.ID, opName(p.A), opName(p.B))
		b.addRow("one["+name+"]", EQ, 1, Term{Var: ov.AB, Coeff: 1}, Term{Var: ov.BA, Coeff: 1})
		for _, sh := range p.Shared {
			b.exclusionRow(name+"|"+sh.Resource+"|ab", ov.A, ov.B, ov.AB, sh.ReleaseA)
			b.exclusionRow(name+"|"+sh.Resource+"|ba", ov.B, ov.A, ov.BA, sh.ReleaseB)
		}
	}
}

// exclusionRow states that first vacates before second starts when order,
// active[first] and active[second] all hold.
func (b *builder) exclusionRow(name string, first, second int, order VarID, release int64) {
	m := b.m
	rhs := float64(m.Op(first).MinDuration+release) - 3*m.BigM
	b.addRow("excl["+name+"]", GE, rhs,
		Term{Var: m.start[second], Coeff: 1},
		Term{Var: m.start[first], Coeff: -1},
		Term{Var: order, Coeff: -m.BigM},
		Term{Var: m.active[first], Coeff: -m.BigM},
		Term{Var: m.active[second], Coeff: -m.BigM},
	)
}

func encodeObjective(b *builder) {
	m := b.m
	for _, ov := range m.Delays {
		t := ov.Term
		name := fmt.Sprintf("%d", t.Index)
		b.addRow("delay["+name+"]", GE, -float64(t.Threshold)-m.BigM,
			Term{Var: ov.Delay, Coeff: 1}, Term{Var: m.start[ov.Op], Coeff: -1}, Term{Var: m.active[ov.Op], Coeff: -m.BigM})
		if t.Coeff != 0 {
			m.Objective = append(m.Objective, Term{Var: ov.Delay, Coeff: t.Coeff})
		}
		if ov.HasDelay >= 0 {
			b.addRow("has_delay["+name+"]", LE, 0,
				Term{Var: ov.Delay, Coeff: 1}, Term{Var: ov.HasDelay, Coeff: -delayCap(m.Horizon, t)})
			m.Objective = append(m.Objective, Term{Var: ov.HasDelay, Coeff: t.Increment})
		}
	}
}

// delayCap is the largest delay a start within the horizon can produce.
func delayCap(h int64, t model.ObjectiveTerm) float64 {
	c := float64(h) - float64(t.Threshold)
	if c < 1 {
		return 1
	}
	return c
}
