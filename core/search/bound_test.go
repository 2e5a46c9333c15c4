package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/displib/core/encode"
	"github.com/kilianp07/displib/core/model"
)

func TestRootLPRelaxation(t *testing.T) {
	raw := model.RawInstance{
		Trains:    [][]model.RawOperation{{{MinDuration: model.I64(1), StartLB: model.I64(8)}}},
		Objective: []model.RawObjective{{Type: model.ObjectiveOpDelay, Threshold: 5, Coeff: 2, Increment: 3}},
	}
	m := encodeRaw(t, raw)
	v, err := solveRootLP(m)
	require.NoError(t, err)
	// delay >= 3, has_delay >= 3/4 since the delay cap is horizon 9 - threshold 5.
	assert.InDelta(t, 2*3+3*0.75, v, 1e-6)

	r, err := Solve(context.Background(), m, Config{Workers: 1, LPRootBound: true, GapTolerance: 1e-9})
	require.NoError(t, err)
	assert.True(t, r.Stats.LPUsed)
	assert.InDelta(t, 8.25, r.Stats.RootLPBound, 1e-5)
	assert.Equal(t, StatusOptimal, r.Status)
	assert.Equal(t, 9.0, r.Objective)
}

func TestRootLPOverride(t *testing.T) {
	orig := lpSolve
	t.Cleanup(func() { lpSolve = orig })
	calls := 0
	lpSolve = func(*encode.Model) (float64, error) {
		calls++
		return 0.5, nil
	}
	m := encodeRaw(t, twoTrains())

	r, err := Solve(context.Background(), m, Config{Workers: 1, LPRootBound: true, LPMaxVars: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, calls, "model is larger than lp_max_vars")
	assert.False(t, r.Stats.LPUsed)

	r, err = Solve(context.Background(), m, Config{Workers: 1, LPRootBound: true})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, r.Stats.LPUsed)
	assert.InDelta(t, 0.5, r.Stats.RootLPBound, 1e-5)
}
