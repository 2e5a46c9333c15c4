package solution

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kilianp07/displib/core/conflict"
	"github.com/kilianp07/displib/core/encode"
	"github.com/kilianp07/displib/core/model"
)

// ErrInvalidSolution is wrapped by every VerifyError.
var ErrInvalidSolution = errors.New("invalid solution")

// VerifyError lists every problem found by Verify.
type VerifyError struct {
	Problems []string
}

func (e *VerifyError) Error() string {
	const shown = 5
	p := e.Problems
	suffix := ""
	if len(p) > shown {
		suffix = fmt.Sprintf(" (and %d more)", len(p)-shown)
		p = p[:shown]
	}
	return fmt.Sprintf("%s: %s%s", ErrInvalidSolution, strings.Join(p, "; "), suffix)
}

func (e *VerifyError) Unwrap() error { return ErrInvalidSolution }

// VerifyOptions tunes Verify.
type VerifyOptions struct {
	// Policy is the routing policy the schedule was produced under.
	Policy encode.RoutingPolicy
	// Tolerance is the absolute slack on the reported objective value.
	Tolerance float64
}

type verifier struct {
	in       *model.Instance
	idx      *conflict.Index
	opts     VerifyOptions
	problems []string
}

func (v *verifier) fail(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

// Verify checks sol against in: every train runs along a path from its
// entries to a terminal operation respecting minimum durations, every event
// is inside its time window, operations of different trains never overlap on
// a shared resource and the reported objective matches the events.
func Verify(in *model.Instance, sol *Solution, opts VerifyOptions) error {
	if in == nil || sol == nil {
		return errors.New("verify: nil instance or solution")
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-6
	}
	v := &verifier{in: in, idx: conflict.NewIndex(in), opts: opts}

	starts := make(map[model.OpRef]int64, len(sol.Events))
	for _, e := range sol.Events {
		ref := model.OpRef{Train: e.Train, Op: e.Operation}
		if !in.Valid(ref) {
			v.fail("event for unknown %s", ref)
			continue
		}
		if _, dup := starts[ref]; dup {
			v.fail("%s scheduled twice", ref)
			continue
		}
		starts[ref] = e.Time
	}
	for ti := range in.Trains {
		v.checkPath(ti, starts)
	}
	v.checkWindows(starts)
	v.checkResources(starts)

	want := in.ObjectiveValue(starts)
	if math.Abs(want-sol.ObjectiveValue) > opts.Tolerance {
		v.fail("objective_value %g differs from recomputed %g", sol.ObjectiveValue, want)
	}
	if len(v.problems) > 0 {
		return &VerifyError{Problems: v.problems}
	}
	return nil
}

func (v *verifier) checkPath(ti int, starts map[model.OpRef]int64) {
	tr := &v.in.Trains[ti]
	for _, oi := range tr.Entries {
		if _, ok := starts[tr.Ops[oi].Ref]; !ok {
			v.fail("train %d: entry operation %d has no event", ti, oi)
		}
	}
	for oi := range tr.Ops {
		op := &tr.Ops[oi]
		t, ok := starts[op.Ref]
		if !ok {
			continue
		}
		var next []int
		for _, s := range op.Successors {
			if _, on := starts[model.OpRef{Train: ti, Op: s}]; on {
				next = append(next, s)
			}
		}
		switch {
		case op.IsTerminal():
		case len(next) == 0:
			v.fail("%s has no scheduled successor and is not terminal", op.Ref)
		case len(next) > 1:
			v.fail("%s continues on %d routes %v", op.Ref, len(next), next)
		default:
			to := model.OpRef{Train: ti, Op: next[0]}
			need := t + op.MinDuration + v.opts.Policy.Delay(v.in, v.idx, op.Ref, to)
			if starts[to] < need {
				v.fail("%s starts at %d before %s allows it at %d", to, starts[to], op.Ref, need)
			}
		}
		if op.IsEntry() {
			continue
		}
		reached := false
		for _, p := range op.Predecessors {
			if _, on := starts[model.OpRef{Train: ti, Op: p}]; on {
				reached = true
				break
			}
		}
		if !reached {
			v.fail("%s is scheduled but none of its predecessors is", op.Ref)
		}
	}
}

func (v *verifier) checkWindows(starts map[model.OpRef]int64) {
	refs := make([]model.OpRef, 0, len(starts))
	for r := range starts {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	for _, r := range refs {
		op := v.in.Op(r)
		t := starts[r]
		if t < op.StartLB {
			v.fail("%s starts at %d before start_lb %d", r, t, op.StartLB)
		}
		if op.Bounded && t > op.StartUB {
			v.fail("%s starts at %d after start_ub %d", r, t, op.StartUB)
		}
	}
}

func (v *verifier) checkResources(starts map[model.OpRef]int64) {
	for _, c := range v.idx.Conflicts {
		// Each pair appears in both directions; check it once.
		if !c.First.Less(c.Second) {
			continue
		}
		ta, okA := starts[c.First]
		tb, okB := starts[c.Second]
		if !okA || !okB {
			continue
		}
		endA := ta + v.in.Op(c.First).MinDuration + c.FirstRelease
		endB := tb + v.in.Op(c.Second).MinDuration + c.SecondRelease
		if tb >= endA || ta >= endB {
			continue
		}
		v.fail("%s [%d,%d) and %s [%d,%d) overlap on %s", c.First, ta, endA, c.Second, tb, endB, c.Resource)
	}
}
