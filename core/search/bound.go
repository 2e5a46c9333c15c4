package search

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/displib/core/encode"
)

// lpSafety is subtracted from the relaxation value so that simplex round-off
// never lifts the bound above the true optimum.
const lpSafety = 1e-6

// lpSolve points to the function used to bound the root relaxation. It can be
// overridden in tests.
var lpSolve = solveRootLP

// solveRootLP minimises the model objective with every integrality
// requirement dropped. Variable bounds and LE/GE rows become inequality rows;
// EQ rows stay equalities.
func solveRootLP(m *encode.Model) (bound float64, err error) {
	n := len(m.Vars)
	if n == 0 {
		return 0, nil
	}
	c := make([]float64, n)
	for _, t := range m.Objective {
		c[t.Var] += t.Coeff
	}

	var (
		gRows [][]float64
		h     []float64
		aRows [][]float64
		b     []float64
	)
	dense := func(terms []encode.Term, scale float64) []float64 {
		row := make([]float64, n)
		for _, t := range terms {
			row[t.Var] += scale * t.Coeff
		}
		return row
	}
	for _, v := range m.Vars {
		up := make([]float64, n)
		up[v.ID] = 1
		gRows = append(gRows, up)
		h = append(h, v.Upper)
		lo := make([]float64, n)
		lo[v.ID] = -1
		gRows = append(gRows, lo)
		h = append(h, -v.Lower)
	}
	for _, r := range m.Rows {
		switch r.Sense {
		case encode.LE:
			gRows = append(gRows, dense(r.Terms, 1))
			h = append(h, r.RHS)
		case encode.GE:
			gRows = append(gRows, dense(r.Terms, -1))
			h = append(h, -r.RHS)
		case encode.EQ:
			aRows = append(aRows, dense(r.Terms, 1))
			b = append(b, r.RHS)
		}
	}

	g := mat.NewDense(len(gRows), n, flatten(gRows, n))
	var a mat.Matrix
	if len(aRows) > 0 {
		a = mat.NewDense(len(aRows), n, flatten(aRows, n))
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("simplex: %v", p)
		}
	}()
	cStd, aStd, bStd := lp.Convert(c, g, h, a, b)
	opt, _, err := lp.Simplex(cStd, aStd, bStd, 1e-9, nil)
	if err != nil {
		return 0, err
	}
	return opt, nil
}

func flatten(rows [][]float64, n int) []float64 {
	out := make([]float64, 0, len(rows)*n)
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
