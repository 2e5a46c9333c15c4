package encode

import (
	"errors"
	"fmt"
	"math"
)

// Tolerance is the absolute slack allowed when evaluating rows and bounds.
const Tolerance = 1e-6

// Violation describes one unsatisfied row or bound.
type Violation struct {
	Name  string
	LHS   float64
	Sense Sense
	RHS   float64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %g %s %g", v.Name, v.LHS, v.Sense, v.RHS)
}

// Check evaluates every bound, integrality requirement and row on x and
// returns the violations found. A nil slice means x is feasible.
func (m *Model) Check(x Assignment) ([]Violation, error) {
	if len(x) != len(m.Vars) {
		return nil, fmt.Errorf("assignment has %d values, model has %d variables", len(x), len(m.Vars))
	}
	var out []Violation
	for _, v := range m.Vars {
		val := x[v.ID]
		if val < v.Lower-Tolerance {
			out = append(out, Violation{Name: v.Name + ".lower", LHS: val, Sense: GE, RHS: v.Lower})
		}
		if val > v.Upper+Tolerance {
			out = append(out, Violation{Name: v.Name + ".upper", LHS: val, Sense: LE, RHS: v.Upper})
		}
		if v.Integer && math.Abs(val-math.Round(val)) > Tolerance {
			out = append(out, Violation{Name: v.Name + ".integer", LHS: val, Sense: EQ, RHS: math.Round(val)})
		}
	}
	for _, r := range m.Rows {
		lhs := r.Eval(x)
		ok := true
		switch r.Sense {
		case LE:
			ok = lhs <= r.RHS+Tolerance
		case GE:
			ok = lhs >= r.RHS-Tolerance
		case EQ:
			ok = math.Abs(lhs-r.RHS) <= Tolerance
		}
		if !ok {
			out = append(out, Violation{Name: r.Name, LHS: lhs, Sense: r.Sense, RHS: r.RHS})
		}
	}
	return out, nil
}

// ErrInfeasibleAssignment is returned by Verify when Check reports violations.
var ErrInfeasibleAssignment = errors.New("assignment violates the model")

// Verify wraps Check into a single error naming the first violations.
func (m *Model) Verify(x Assignment) error {
	v, err := m.Check(x)
	if err != nil {
		return err
	}
	if len(v) == 0 {
		return nil
	}
	const shown = 3
	msg := ""
	for i, vi := range v {
		if i == shown {
			msg += fmt.Sprintf("; and %d more", len(v)-shown)
			break
		}
		if i > 0 {
			msg += "; "
		}
		msg += vi.String()
	}
	return fmt.Errorf("%w: %s", ErrInfeasibleAssignment, msg)
}
