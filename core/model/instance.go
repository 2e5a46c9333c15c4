package model

import (
	"fmt"
	"math"
	"sort"
)

// OpRef identifies an operation by train index and operation index within the train.
type OpRef struct {
	Train int `json:"train"`
	Op    int `json:"operation"`
}

func (r OpRef) String() string { return fmt.Sprintf("train %d op %d", r.Train, r.Op) }

// Less orders references by train then operation.
func (r OpRef) Less(o OpRef) bool {
	if r.Train != o.Train {
		return r.Train < o.Train
	}
	return r.Op < o.Op
}

// Usage is a resource occupied by an operation together with the time the
// resource stays blocked after the operation ends.
type Usage struct {
	Resource string
	Release  int64
}

// Operation is an atomic, resource-occupying step of a train.
type Operation struct {
	Ref         OpRef
	MinDuration int64
	StartLB     int64
	// StartUB is only meaningful when Bounded is true.
	StartUB      int64
	Bounded      bool
	Resources    []Usage
	Successors   []int
	Predecessors []int
}

// IsEntry reports whether the operation starts its train.
func (o *Operation) IsEntry() bool { return len(o.Predecessors) == 0 }

// IsTerminal reports whether the operation ends its train.
func (o *Operation) IsTerminal() bool { return len(o.Successors) == 0 }

// MaxRelease returns the largest release time over the operation's resources.
func (o *Operation) MaxRelease() int64 {
	var m int64
	for _, u := range o.Resources {
		if u.Release > m {
			m = u.Release
		}
	}
	return m
}

// ReleaseOn returns the release time on resource r and whether the operation uses it.
// When a resource is listed twice the larger release wins.
func (o *Operation) ReleaseOn(r string) (int64, bool) {
	var (
		rel   int64
		found bool
	)
	for _, u := range o.Resources {
		if u.Resource == r {
			if !found || u.Release > rel {
				rel = u.Release
			}
			found = true
		}
	}
	return rel, found
}

// Train is a directed acyclic graph of operations.
type Train struct {
	Index int
	Ops   []Operation
	// Entries lists operations without predecessors in ascending order.
	Entries []int
	// Topo is a topological order of the operation indices.
	Topo []int
}

// ObjectiveTerm charges delay of one operation past a threshold.
type ObjectiveTerm struct {
	Index     int
	Op        OpRef
	Threshold int64
	Coeff     float64
	Increment float64
}

// Penalty evaluates the term for an operation starting at t.
func (t ObjectiveTerm) Penalty(start int64) float64 {
	if start <= t.Threshold {
		return 0
	}
	return t.Coeff*float64(start-t.Threshold) + t.Increment
}

// Headway is kept from the instance file for reporting. It is not constrained.
type Headway map[string]any

// Instance is the immutable scheduling problem.
type Instance struct {
	Trains    []Train
	Objective []ObjectiveTerm
	Headways  []Headway

	resources []string
	numOps    int
}

// Op returns the operation referenced by r. It panics on an invalid reference,
// which Build rules out for every reference it produces.
func (in *Instance) Op(r OpRef) *Operation {
	return &in.Trains[r.Train].Ops[r.Op]
}

// Valid reports whether r points at an existing operation.
func (in *Instance) Valid(r OpRef) bool {
	return r.Train >= 0 && r.Train < len(in.Trains) && r.Op >= 0 && r.Op < len(in.Trains[r.Train].Ops)
}

// NumOps returns the total number of operations.
func (in *Instance) NumOps() int { return in.numOps }

// Resources returns the sorted resource names.
func (in *Instance) Resources() []string {
	out := make([]string, len(in.resources))
	copy(out, in.resources)
	return out
}

// Horizon returns a time no reachable earliest-start schedule can exceed: the
// largest lower bound plus, for every operation, its duration, its largest
// release time and extraDelay. Any chain of precedence or exclusion edges in a
// feasible schedule visits each operation at most once, so its length is bounded
// by this sum.
func (in *Instance) Horizon(extraDelay int64) int64 {
	var (
		maxLB int64
		sum   int64
	)
	if extraDelay < 0 {
		extraDelay = 0
	}
	for ti := range in.Trains {
		for oi := range in.Trains[ti].Ops {
			op := &in.Trains[ti].Ops[oi]
			if op.StartLB > maxLB {
				maxLB = op.StartLB
			}
			sum = satAdd(sum, satAdd(op.MinDuration, satAdd(op.MaxRelease(), extraDelay)))
		}
	}
	return satAdd(maxLB, sum)
}

func satAdd(a, b int64) int64 {
	if a > 0 && b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}

// ObjectiveValue sums the penalty terms for the given start times. Operations
// missing from starts are treated as inactive and contribute nothing.
func (in *Instance) ObjectiveValue(starts map[OpRef]int64) float64 {
	var total float64
	for _, t := range in.Objective {
		if s, ok := starts[t.Op]; ok {
			total += t.Penalty(s)
		}
	}
	return total
}

// Stats summarises the instance size.
type Stats struct {
	Trains      int `json:"trains"`
	Operations  int `json:"operations"`
	Resources   int `json:"resources"`
	TimeWindows int `json:"time_windows"`
	BranchOps   int `json:"branch_operations"`
	Objectives  int `json:"objective_components"`
	Headways    int `json:"headways"`
}

// Stats returns size information about the instance.
func (in *Instance) Stats() Stats {
	s := Stats{
		Trains:     len(in.Trains),
		Operations: in.numOps,
		Resources:  len(in.resources),
		Objectives: len(in.Objective),
		Headways:   len(in.Headways),
	}
	for ti := range in.Trains {
		for oi := range in.Trains[ti].Ops {
			op := &in.Trains[ti].Ops[oi]
			if op.StartLB > 0 || op.Bounded {
				s.TimeWindows++
			}
			if len(op.Successors) > 1 {
				s.BranchOps++
			}
		}
	}
	return s
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
