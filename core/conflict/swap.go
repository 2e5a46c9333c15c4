package conflict

import (
	"sort"

	"github.com/kilianp07/displib/core/model"
)

// Edge is a successor edge inside one train.
type Edge struct {
	From model.OpRef
	To   model.OpRef
}

// Swap is a head-on crossing: Edge moves its train from resource X to Y while
// Other moves a different train from Y to X.
type Swap struct {
	Edge  Edge
	Other Edge
	From  string
	To    string
}

type hop struct{ from, to string }

// findSwaps looks at successor edges between single-resource operations and
// pairs those that traverse the same two resources in opposite directions.
func findSwaps(in *model.Instance) []Swap {
	hops := make(map[hop][]Edge)
	for ti := range in.Trains {
		for oi := range in.Trains[ti].Ops {
			op := &in.Trains[ti].Ops[oi]
			if len(op.Resources) != 1 {
				continue
			}
			for _, s := range op.Successors {
				next := &in.Trains[ti].Ops[s]
				if len(next.Resources) != 1 || next.Resources[0].Resource == op.Resources[0].Resource {
					continue
				}
				h := hop{from: op.Resources[0].Resource, to: next.Resources[0].Resource}
				hops[h] = append(hops[h], Edge{From: op.Ref, To: next.Ref})
			}
		}
	}
	keys := make([]hop, 0, len(hops))
	for h := range hops {
		if h.from < h.to {
			keys = append(keys, h)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		return keys[i].to < keys[j].to
	})
	var out []Swap
	for _, h := range keys {
		back := hops[hop{from: h.to, to: h.from}]
		for _, e := range hops[h] {
			for _, o := range back {
				if e.From.Train == o.From.Train {
					continue
				}
				out = append(out, Swap{Edge: e, Other: o, From: h.from, To: h.to})
			}
		}
	}
	return out
}
