// Package encode turns an instance and its conflict index into a mixed
// integer linear model.
//
// Variables live in a flat arena addressed by VarID. Their identity only
// depends on (train, operation), the successor edge, the conflict pair id and
// the objective term index, so encoding the same instance twice yields the
// same model.
package encode

import (
	"fmt"

	"github.com/kilianp07/displib/core/conflict"
	"github.com/kilianp07/displib/core/model"
)

// VarID addresses a variable in Model.Vars.
type VarID int

// VarKind tells what a variable stands for.
type VarKind int

const (
	KindStart VarKind = iota
	KindActive
	KindChoose
	KindOrder
	KindDelay
	KindHasDelay
)

func (k VarKind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindActive:
		return "active"
	case KindChoose:
		return "choose"
	case KindOrder:
		return "order"
	case KindDelay:
		return "delay"
	case KindHasDelay:
		return "has_delay"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Var is one model variable with its bounds.
type Var struct {
	ID      VarID
	Kind    VarKind
	Name    string
	Lower   float64
	Upper   float64
	Integer bool
}

// Sense is the comparison of a linear row.
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	default:
		return "=="
	}
}

// Term is coeff * var.
type Term struct {
	Var   VarID
	Coeff float64
}

// Row is a linear constraint Σ terms <sense> RHS.
type Row struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Eval returns the left-hand side value of r under x.
func (r Row) Eval(x Assignment) float64 {
	var lhs float64
	for _, t := range r.Terms {
		lhs += t.Coeff * x[t.Var]
	}
	return lhs
}

// Edge is a routing alternative From -> To with its choose variable.
type Edge struct {
	From   int
	To     int
	Choose VarID
	// Delay is the extra time added on top of the From duration when the
	// edge is realised.
	Delay int64
}

// OrderVar holds the two directed alternatives of a conflict pair. AB true
// means A vacates every shared resource before B starts.
type OrderVar struct {
	Pair int
	A, B int
	AB   VarID
	BA   VarID
	// ReleaseA and ReleaseB are the largest release over the shared
	// resources; the per-resource rows use the exact values.
	ReleaseA int64
	ReleaseB int64
}

// ObjectiveVar links an objective term to its linearisation variables.
// HasDelay is -1 when the term has no increment.
type ObjectiveVar struct {
	Term     model.ObjectiveTerm
	Op       int
	Delay    VarID
	HasDelay VarID
}

// Assignment gives a value to every variable, indexed by VarID.
type Assignment []float64

// Model is the encoded problem. It is never modified after Encode returns.
type Model struct {
	Instance *model.Instance
	Index    *conflict.Index
	Policy   RoutingPolicy

	Vars      []Var
	Rows      []Row
	Objective []Term

	// Horizon bounds every start time of an earliest-start schedule.
	Horizon int64
	// BigM relaxes gated rows; it exceeds any difference of reachable times.
	BigM float64

	Edges  []Edge
	Orders []OrderVar
	Delays []ObjectiveVar

	refs    []model.OpRef
	base    []int
	start   []VarID
	active  []VarID
	out     [][]int
	in      [][]int
	pairsOf [][]int
}

// NumOps returns the number of operations, which are numbered 0..NumOps-1
// in (train, operation) order.
func (m *Model) NumOps() int { return len(m.refs) }

// OpID maps a reference to its global operation number.
func (m *Model) OpID(r model.OpRef) int { return m.base[r.Train] + r.Op }

// Ref maps a global operation number back to its reference.
func (m *Model) Ref(id int) model.OpRef { return m.refs[id] }

// Op returns the instance operation with global number id.
func (m *Model) Op(id int) *model.Operation { return m.Instance.Op(m.refs[id]) }

// Start returns the start time variable of operation id.
func (m *Model) Start(id int) VarID { return m.start[id] }

// Active returns the activity variable of operation id.
func (m *Model) Active(id int) VarID { return m.active[id] }

// Out returns indices into Edges leaving operation id.
func (m *Model) Out(id int) []int { return m.out[id] }

// In returns indices into Edges entering operation id.
func (m *Model) In(id int) []int { return m.in[id] }

// PairsOf returns indices into Orders involving operation id.
func (m *Model) PairsOf(id int) []int { return m.pairsOf[id] }

// EntryOps returns the global numbers of all entry operations.
func (m *Model) EntryOps() []int {
	var out []int
	for id := range m.refs {
		if len(m.in[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// NewAssignment returns an assignment with every variable at its lower bound.
func (m *Model) NewAssignment() Assignment {
	x := make(Assignment, len(m.Vars))
	for i, v := range m.Vars {
		x[i] = v.Lower
	}
	return x
}

// ObjectiveValue evaluates the linear objective on x.
func (m *Model) ObjectiveValue(x Assignment) float64 {
	var obj float64
	for _, t := range m.Objective {
		obj += t.Coeff * x[t.Var]
	}
	return obj
}

// Stats summarises the model size.
type Stats struct {
	Variables int `json:"variables"`
	Integer   int `json:"integer_variables"`
	Rows      int `json:"rows"`
	Edges     int `json:"routing_edges"`
	Pairs     int `json:"conflict_pairs"`
	Swaps     int `json:"swaps"`
}

// Stats returns size information about the model.
func (m *Model) Stats() Stats {
	s := Stats{
		Variables: len(m.Vars),
		Rows:      len(m.Rows),
		Edges:     len(m.Edges),
		Pairs:     len(m.Orders),
		Swaps:     len(m.Index.Swaps),
	}
	for _, v := range m.Vars {
		if v.Integer {
			s.Integer++
		}
	}
	return s
}
