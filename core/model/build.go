package model

import (
	"errors"
	"fmt"
)

// ObjectiveOpDelay is the only objective component type understood by the solver.
const ObjectiveOpDelay = "op_delay"

// ErrMalformedInstance is wrapped by every validation failure of Build.
var ErrMalformedInstance = errors.New("malformed instance")

// MalformedError names the offending train and operation. Operation is -1 when
// the problem is not tied to a single operation.
type MalformedError struct {
	Train     int
	Operation int
	Reason    string
}

func (e *MalformedError) Error() string {
	if e.Train < 0 {
		return fmt.Sprintf("%s: %s", ErrMalformedInstance, e.Reason)
	}
	if e.Operation < 0 {
		return fmt.Sprintf("%s: train %d: %s", ErrMalformedInstance, e.Train, e.Reason)
	}
	return fmt.Sprintf("%s: train %d operation %d: %s", ErrMalformedInstance, e.Train, e.Operation, e.Reason)
}

func (e *MalformedError) Unwrap() error { return ErrMalformedInstance }

func malformed(train, op int, format string, args ...any) error {
	return &MalformedError{Train: train, Operation: op, Reason: fmt.Sprintf(format, args...)}
}

// RawResource is a resource reference as found in an instance file.
type RawResource struct {
	Resource    string `json:"resource" yaml:"resource"`
	ReleaseTime *int64 `json:"release_time,omitempty" yaml:"release_time,omitempty"`
}

// RawOperation is an operation as found in an instance file. Pointers mark
// optional fields so that absent values can be told apart from zero.
type RawOperation struct {
	MinDuration *int64        `json:"min_duration" yaml:"min_duration"`
	StartLB     *int64        `json:"start_lb,omitempty" yaml:"start_lb,omitempty"`
	StartUB     *int64        `json:"start_ub,omitempty" yaml:"start_ub,omitempty"`
	Successors  []int         `json:"successors,omitempty" yaml:"successors,omitempty"`
	Resources   []RawResource `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// RawObjective is an objective component as found in an instance file.
type RawObjective struct {
	Type      string  `json:"type" yaml:"type"`
	Train     int     `json:"train" yaml:"train"`
	Operation int     `json:"operation" yaml:"operation"`
	Threshold int64   `json:"threshold" yaml:"threshold"`
	Coeff     float64 `json:"coeff" yaml:"coeff"`
	Increment float64 `json:"increment" yaml:"increment"`
}

// RawInstance is the decoded instance file.
type RawInstance struct {
	Trains    [][]RawOperation `json:"trains" yaml:"trains"`
	Objective []RawObjective   `json:"objective" yaml:"objective"`
	Headways  []Headway        `json:"headways,omitempty" yaml:"headways,omitempty"`
}

// Build validates raw and resolves defaults: start_lb 0, start_ub unbounded,
// release_time 0. Predecessors are filled by inverting every successor edge in
// a single pass.
func Build(raw RawInstance) (*Instance, error) {
	in := &Instance{
		Trains:   make([]Train, len(raw.Trains)),
		Headways: raw.Headways,
	}
	resources := make(map[string]struct{})
	for ti, rawOps := range raw.Trains {
		if len(rawOps) == 0 {
			return nil, malformed(ti, -1, "train has no operations")
		}
		tr := Train{Index: ti, Ops: make([]Operation, len(rawOps))}
		for oi, ro := range rawOps {
			op, err := buildOperation(ti, oi, len(rawOps), ro)
			if err != nil {
				return nil, err
			}
			for _, u := range op.Resources {
				resources[u.Resource] = struct{}{}
			}
			tr.Ops[oi] = op
		}
		for oi := range tr.Ops {
			for _, s := range tr.Ops[oi].Successors {
				tr.Ops[s].Predecessors = append(tr.Ops[s].Predecessors, oi)
			}
		}
		for oi := range tr.Ops {
			if tr.Ops[oi].IsEntry() {
				tr.Entries = append(tr.Entries, oi)
			}
		}
		topo, err := topoOrder(&tr)
		if err != nil {
			return nil, err
		}
		tr.Topo = topo
		in.Trains[ti] = tr
		in.numOps += len(tr.Ops)
	}
	in.resources = sortedKeys(resources)

	in.Objective = make([]ObjectiveTerm, 0, len(raw.Objective))
	for i, ro := range raw.Objective {
		t, err := buildObjective(in, i, ro)
		if err != nil {
			return nil, err
		}
		in.Objective = append(in.Objective, t)
	}
	return in, nil
}

func buildOperation(ti, oi, n int, ro RawOperation) (Operation, error) {
	op := Operation{Ref: OpRef{Train: ti, Op: oi}}
	if ro.MinDuration == nil {
		return op, malformed(ti, oi, "min_duration is required")
	}
	if *ro.MinDuration < 0 {
		return op, malformed(ti, oi, "min_duration %d is negative", *ro.MinDuration)
	}
	op.MinDuration = *ro.MinDuration
	if ro.StartLB != nil {
		op.StartLB = *ro.StartLB
	}
	if op.StartLB < 0 {
		return op, malformed(ti, oi, "start_lb %d is negative", op.StartLB)
	}
	if ro.StartUB != nil {
		op.StartUB = *ro.StartUB
		op.Bounded = true
	}

	seen := make(map[int]struct{}, len(ro.Successors))
	for _, s := range ro.Successors {
		if s < 0 || s >= n {
			return op, malformed(ti, oi, "successor %d does not exist", s)
		}
		if s == oi {
			return op, malformed(ti, oi, "operation lists itself as successor")
		}
		if _, dup := seen[s]; dup {
			return op, malformed(ti, oi, "successor %d listed twice", s)
		}
		seen[s] = struct{}{}
		op.Successors = append(op.Successors, s)
	}

	for _, rr := range ro.Resources {
		if rr.Resource == "" {
			return op, malformed(ti, oi, "resource name is empty")
		}
		u := Usage{Resource: rr.Resource}
		if rr.ReleaseTime != nil {
			if *rr.ReleaseTime < 0 {
				return op, malformed(ti, oi, "release_time %d on %s is negative", *rr.ReleaseTime, rr.Resource)
			}
			u.Release = *rr.ReleaseTime
		}
		op.Resources = append(op.Resources, u)
	}
	return op, nil
}

func buildObjective(in *Instance, i int, ro RawObjective) (ObjectiveTerm, error) {
	if ro.Type != ObjectiveOpDelay {
		return ObjectiveTerm{}, malformed(-1, -1, "objective %d: unknown type %q", i, ro.Type)
	}
	ref := OpRef{Train: ro.Train, Op: ro.Operation}
	if !in.Valid(ref) {
		return ObjectiveTerm{}, malformed(-1, -1, "objective %d: %s does not exist", i, ref)
	}
	if ro.Coeff < 0 || ro.Increment < 0 {
		return ObjectiveTerm{}, malformed(ro.Train, ro.Operation, "objective %d: coeff and increment must be non-negative", i)
	}
	return ObjectiveTerm{
		Index:     i,
		Op:        ref,
		Threshold: ro.Threshold,
		Coeff:     ro.Coeff,
		Increment: ro.Increment,
	}, nil
}

// topoOrder runs Kahn's algorithm over the train's successor graph and rejects cycles.
func topoOrder(tr *Train) ([]int, error) {
	indeg := make([]int, len(tr.Ops))
	for oi := range tr.Ops {
		indeg[oi] = len(tr.Ops[oi].Predecessors)
	}
	queue := append([]int(nil), tr.Entries...)
	order := make([]int, 0, len(tr.Ops))
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		order = append(order, u)
		for _, s := range tr.Ops[u].Successors {
			indeg[s]--
			if indeg[s] == 0 {
				queue = append(queue, s)
			}
		}
	}
	if len(order) != len(tr.Ops) {
		return nil, malformed(tr.Index, -1, "successor graph contains a cycle")
	}
	return order, nil
}

// I64 returns a pointer to v. It keeps raw instance literals short.
func I64(v int64) *int64 { return &v }
