// Package conflict derives resource contention from an instance.
//
// For every resource the indexer collects its occupants and, for every pair of
// occupants belonging to different trains, emits both directed exclusion
// entries annotated with each side's release time on that resource. The pass
// is O(k²) per resource with k occupants; on corridors shared by many trains
// this dominates indexing time and is the first candidate for a sweep over
// time windows if occupant counts grow large.
package conflict

import (
	"sort"

	"github.com/kilianp07/displib/core/model"
)

// Occupant is an operation using a resource.
type Occupant struct {
	Op      model.OpRef
	Release int64
}

// Conflict is a directed exclusion alternative: First vacates the resource
// (start + min_duration + FirstRelease) before Second starts.
type Conflict struct {
	First         model.OpRef
	Second        model.OpRef
	Resource      string
	FirstRelease  int64
	SecondRelease int64
	// Pair is the index of the unordered pair in Index.Pairs.
	Pair int
}

// Shared is one resource on which the two operations of a pair collide.
type Shared struct {
	Resource string
	ReleaseA int64
	ReleaseB int64
}

// Pair is an unordered pair of operations of different trains that share at
// least one resource. A is ordered before B by (train, operation).
type Pair struct {
	ID     int
	A, B   model.OpRef
	Shared []Shared
}

// ReleaseA returns the release A must respect when it precedes B, the largest
// over all shared resources.
func (p Pair) ReleaseA() int64 {
	var m int64
	for _, s := range p.Shared {
		if s.ReleaseA > m {
			m = s.ReleaseA
		}
	}
	return m
}

// ReleaseB is the counterpart of ReleaseA when B precedes A.
func (p Pair) ReleaseB() int64 {
	var m int64
	for _, s := range p.Shared {
		if s.ReleaseB > m {
			m = s.ReleaseB
		}
	}
	return m
}

// Index is the derived, read-only view of resource contention.
type Index struct {
	// Occupants per resource, sorted by operation reference.
	Occupants map[string][]Occupant
	// Conflicts holds both directions for every (pair, resource).
	Conflicts []Conflict
	Pairs     []Pair
	// Swaps lists head-on crossings between consecutive operations.
	Swaps []Swap

	resources []string
	byOp      map[model.OpRef][]int
	swapEdges map[Edge]struct{}
}

type pairKey struct{ a, b model.OpRef }

// NewIndex builds the conflict index for in. The result only depends on the
// instance contents, never on map iteration order.
func NewIndex(in *model.Instance) *Index {
	idx := &Index{
		Occupants: make(map[string][]Occupant),
		byOp:      make(map[model.OpRef][]int),
		resources: in.Resources(),
	}
	for ti := range in.Trains {
		for oi := range in.Trains[ti].Ops {
			op := &in.Trains[ti].Ops[oi]
			seen := make(map[string]bool, len(op.Resources))
			for _, u := range op.Resources {
				if seen[u.Resource] {
					continue
				}
				seen[u.Resource] = true
				rel, _ := op.ReleaseOn(u.Resource)
				idx.Occupants[u.Resource] = append(idx.Occupants[u.Resource], Occupant{Op: op.Ref, Release: rel})
			}
		}
	}

	pairIDs := make(map[pairKey]int)
	for _, res := range idx.resources {
		occ := idx.Occupants[res]
		sort.Slice(occ, func(i, j int) bool { return occ[i].Op.Less(occ[j].Op) })
		for i := 0; i < len(occ); i++ {
			for j := i + 1; j < len(occ); j++ {
				a, b := occ[i], occ[j]
				if a.Op.Train == b.Op.Train {
					continue
				}
				key := pairKey{a.Op, b.Op}
				id, ok := pairIDs[key]
				if !ok {
					id = len(idx.Pairs)
					pairIDs[key] = id
					idx.Pairs = append(idx.Pairs, Pair{ID: id, A: a.Op, B: b.Op})
				}
				idx.Pairs[id].Shared = append(idx.Pairs[id].Shared, Shared{Resource: res, ReleaseA: a.Release, ReleaseB: b.Release})
				idx.Conflicts = append(idx.Conflicts,
					Conflict{First: a.Op, Second: b.Op, Resource: res, FirstRelease: a.Release, SecondRelease: b.Release, Pair: id},
					Conflict{First: b.Op, Second: a.Op, Resource: res, FirstRelease: b.Release, SecondRelease: a.Release, Pair: id},
				)
			}
		}
	}

	// Pair ids follow discovery order over sorted resources; renumber so they
	// follow (A, B) order which is what callers iterate by.
	sort.SliceStable(idx.Pairs, func(i, j int) bool {
		if idx.Pairs[i].A != idx.Pairs[j].A {
			return idx.Pairs[i].A.Less(idx.Pairs[j].A)
		}
		return idx.Pairs[i].B.Less(idx.Pairs[j].B)
	})
	remap := make([]int, len(idx.Pairs))
	for newID := range idx.Pairs {
		remap[idx.Pairs[newID].ID] = newID
		idx.Pairs[newID].ID = newID
	}
	for i := range idx.Conflicts {
		idx.Conflicts[i].Pair = remap[idx.Conflicts[i].Pair]
	}
	for _, p := range idx.Pairs {
		idx.byOp[p.A] = append(idx.byOp[p.A], p.ID)
		idx.byOp[p.B] = append(idx.byOp[p.B], p.ID)
	}

	idx.Swaps = findSwaps(in)
	idx.swapEdges = make(map[Edge]struct{}, 2*len(idx.Swaps))
	for _, s := range idx.Swaps {
		idx.swapEdges[s.Edge] = struct{}{}
		idx.swapEdges[s.Other] = struct{}{}
	}
	return idx
}

// PairsOf returns the ids of the pairs op takes part in, in ascending order.
func (idx *Index) PairsOf(op model.OpRef) []int { return idx.byOp[op] }

// Resources returns the sorted resource names of the indexed instance.
func (idx *Index) Resources() []string { return idx.resources }

// IsSwapEdge reports whether the routing edge takes part in a head-on crossing.
func (idx *Index) IsSwapEdge(e Edge) bool {
	_, ok := idx.swapEdges[e]
	return ok
}
