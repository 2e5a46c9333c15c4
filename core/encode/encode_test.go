package encode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/displib/core/model"
)

func build(t *testing.T, raw model.RawInstance) *model.Instance {
	t.Helper()
	in, err := model.Build(raw)
	require.NoError(t, err)
	return in
}

func twoTrains() model.RawInstance {
	return model.RawInstance{Trains: [][]model.RawOperation{
		{{MinDuration: model.I64(10), Resources: []model.RawResource{{Resource: "R"}}}},
		{{MinDuration: model.I64(4), Resources: []model.RawResource{{Resource: "R", ReleaseTime: model.I64(1)}}}},
	}}
}

// branching: train 0 goes 0 -> (1 | 2) -> 3, only route 2 is short enough
// for the objective.
func branching() model.RawInstance {
	return model.RawInstance{
		Trains: [][]model.RawOperation{{
			{MinDuration: model.I64(2), Successors: []int{1, 2}},
			{MinDuration: model.I64(9), Successors: []int{3}},
			{MinDuration: model.I64(3), Successors: []int{3}},
			{MinDuration: model.I64(0)},
		}},
		Objective: []model.RawObjective{{Type: model.ObjectiveOpDelay, Train: 0, Operation: 3, Threshold: 5, Coeff: 2, Increment: 3}},
	}
}

func TestEncodeTwoTrainsExclusion(t *testing.T) {
	m, err := Encode(build(t, twoTrains()), nil, RoutingPolicy{})
	require.NoError(t, err)

	assert.Equal(t, 2, m.NumOps())
	require.Len(t, m.Orders, 1)
	assert.Equal(t, Stats{Variables: 6, Integer: 4, Rows: 5, Pairs: 1}, m.Stats())
	assert.Equal(t, int64(10+4+1), m.Horizon)
	assert.Equal(t, float64(2*15+1), m.BigM)

	both := Schedule{Active: []bool{true, true}, Start: []int64{0, 0}, Chosen: []bool{}}
	x, err := m.Assign(both)
	require.NoError(t, err)
	v, err := m.Check(x)
	require.NoError(t, err)
	assert.NotEmpty(t, v, "overlapping starts must violate exclusion")

	for _, s := range [][]int64{{0, 10}, {5, 0}} {
		x, err := m.Assign(Schedule{Active: []bool{true, true}, Start: s, Chosen: []bool{}})
		require.NoError(t, err)
		assert.NoError(t, m.Verify(x), "starts %v", s)
		assert.Equal(t, 1.0, x[m.Orders[0].AB]+x[m.Orders[0].BA])
	}
}

func TestEncodeRoutingAndObjective(t *testing.T) {
	m, err := Encode(build(t, branching()), nil, RoutingPolicy{})
	require.NoError(t, err)
	require.Len(t, m.Edges, 4)
	assert.Equal(t, []int{0, 1}, m.Out(0))
	assert.Equal(t, []int{2, 3}, m.In(3))
	assert.Equal(t, []int{0}, m.EntryOps())

	short := Schedule{
		Active: []bool{true, false, true, true},
		Chosen: []bool{false, true, false, true},
		Start:  []int64{0, 0, 2, 5},
	}
	x, err := m.Assign(short)
	require.NoError(t, err)
	require.NoError(t, m.Verify(x))
	assert.Equal(t, 0.0, m.ObjectiveValue(x))

	long := Schedule{
		Active: []bool{true, true, false, true},
		Chosen: []bool{true, false, true, false},
		Start:  []int64{0, 2, 0, 11},
	}
	x, err = m.Assign(long)
	require.NoError(t, err)
	require.NoError(t, m.Verify(x))
	assert.Equal(t, 2.0*6+3, m.ObjectiveValue(x))
	assert.Equal(t, long, m.ScheduleOf(x))

	// Arriving too early on the long route breaks path timing.
	long.Start[3] = 10
	x, err = m.Assign(long)
	require.NoError(t, err)
	assert.True(t, errors.Is(m.Verify(x), ErrInfeasibleAssignment))
}

func TestEncodeRejectsDoubleRouting(t *testing.T) {
	m, err := Encode(build(t, branching()), nil, RoutingPolicy{})
	require.NoError(t, err)
	x, err := m.Assign(Schedule{
		Active: []bool{true, true, true, true},
		Chosen: []bool{true, true, true, true},
		Start:  []int64{0, 2, 2, 11},
	})
	require.NoError(t, err)
	v, err := m.Check(x)
	require.NoError(t, err)
	require.NotEmpty(t, v)
	assert.Equal(t, "route[t0,o0]", v[0].Name)
}

func TestEncodeRoutingFollowsActivity(t *testing.T) {
	m, err := Encode(build(t, branching()), nil, RoutingPolicy{})
	require.NoError(t, err)
	short := Schedule{
		Active: []bool{true, false, true, true},
		Chosen: []bool{false, true, false, true},
		Start:  []int64{0, 0, 2, 5},
	}
	// Operation 1 is off the path, so it routes nowhere.
	x, err := m.Assign(short)
	require.NoError(t, err)
	require.NoError(t, m.Verify(x))

	short.Chosen[2] = true
	x, err = m.Assign(short)
	require.NoError(t, err)
	v, err := m.Check(x)
	require.NoError(t, err)
	var names []string
	for _, vi := range v {
		names = append(names, vi.Name)
	}
	assert.Contains(t, names, "route[t0,o1]")
}

func TestEncodeObjectivePenalty(t *testing.T) {
	raw := model.RawInstance{
		Trains:    [][]model.RawOperation{{{MinDuration: model.I64(1), StartLB: model.I64(8)}}},
		Objective: []model.RawObjective{{Type: model.ObjectiveOpDelay, Threshold: 5, Coeff: 2, Increment: 3}},
	}
	m, err := Encode(build(t, raw), nil, RoutingPolicy{})
	require.NoError(t, err)
	x, err := m.Assign(Schedule{Active: []bool{true}, Start: []int64{8}, Chosen: []bool{}})
	require.NoError(t, err)
	require.NoError(t, m.Verify(x))
	assert.Equal(t, 9.0, m.ObjectiveValue(x))

	x, err = m.Assign(Schedule{Active: []bool{true}, Start: []int64{7}, Chosen: []bool{}})
	require.NoError(t, err)
	assert.Error(t, m.Verify(x), "start below lb")
}

func TestEncodeUpperBoundRelaxedWhenInactive(t *testing.T) {
	raw := branching()
	raw.Trains[0][1].StartUB = model.I64(1)
	m, err := Encode(build(t, raw), nil, RoutingPolicy{})
	require.NoError(t, err)
	x, err := m.Assign(Schedule{
		Active: []bool{true, false, true, true},
		Chosen: []bool{false, true, false, true},
		Start:  []int64{0, 0, 2, 5},
	})
	require.NoError(t, err)
	x[m.Start(1)] = float64(m.Horizon)
	assert.NoError(t, m.Verify(x))
}

func TestEncodeIsDeterministic(t *testing.T) {
	raw := model.RawInstance{Trains: [][]model.RawOperation{
		{{MinDuration: model.I64(3), Successors: []int{1}, Resources: []model.RawResource{{Resource: "b"}, {Resource: "a"}}}, {MinDuration: model.I64(1), Resources: []model.RawResource{{Resource: "c"}}}},
		{{MinDuration: model.I64(2), Resources: []model.RawResource{{Resource: "a"}, {Resource: "c"}}}},
		{{MinDuration: model.I64(2), Resources: []model.RawResource{{Resource: "c"}, {Resource: "b"}}}},
	}}
	first, err := Encode(build(t, raw), nil, RoutingPolicy{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Encode(build(t, raw), nil, RoutingPolicy{})
		require.NoError(t, err)
		assert.Equal(t, first.Vars, again.Vars)
		assert.Equal(t, first.Rows, again.Rows)
	}
}

func TestRoutingPolicy(t *testing.T) {
	in := build(t, branching())

	m, err := Encode(in, nil, RoutingPolicy{Mode: RoutingAllBranches, ExtraDelay: 4})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 4, 0, 0}, []int64{m.Edges[0].Delay, m.Edges[1].Delay, m.Edges[2].Delay, m.Edges[3].Delay})
	assert.Equal(t, in.Horizon(4), m.Horizon)

	m, err = Encode(in, nil, RoutingPolicy{Mode: RoutingNone, ExtraDelay: 4})
	require.NoError(t, err)
	for _, e := range m.Edges {
		assert.Zero(t, e.Delay)
	}

	swap := model.RawInstance{Trains: [][]model.RawOperation{
		{
			{MinDuration: model.I64(1), Successors: []int{1}, Resources: []model.RawResource{{Resource: "P"}}},
			{MinDuration: model.I64(1), Resources: []model.RawResource{{Resource: "Q"}}},
		},
		{
			{MinDuration: model.I64(1), Successors: []int{1}, Resources: []model.RawResource{{Resource: "Q"}}},
			{MinDuration: model.I64(1), Resources: []model.RawResource{{Resource: "P"}}},
		},
		{
			{MinDuration: model.I64(1), Successors: []int{1}, Resources: []model.RawResource{{Resource: "P"}}},
			{MinDuration: model.I64(1), Resources: []model.RawResource{{Resource: "R"}}},
		},
	}}
	m, err = Encode(build(t, swap), nil, RoutingPolicy{Mode: "SWAP_ONLY", ExtraDelay: 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 2, 0}, []int64{m.Edges[0].Delay, m.Edges[1].Delay, m.Edges[2].Delay})

	_, err = Encode(in, nil, RoutingPolicy{Mode: "sometimes"})
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
	_, err = Encode(in, nil, RoutingPolicy{Mode: RoutingSwapOnly, ExtraDelay: -1})
	assert.True(t, errors.Is(err, ErrInvalidPolicy))
}
