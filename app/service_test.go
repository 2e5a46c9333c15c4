package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/displib/config"
	"github.com/kilianp07/displib/core/encode"
	coremetrics "github.com/kilianp07/displib/core/metrics"
	"github.com/kilianp07/displib/core/model"
	coremqtt "github.com/kilianp07/displib/core/mqtt"
	"github.com/kilianp07/displib/core/runlog"
	"github.com/kilianp07/displib/core/search"
	"github.com/kilianp07/displib/infra/logger"
	"github.com/kilianp07/displib/infra/mqtt"
)

type memSink struct {
	mu         sync.Mutex
	runs       []coremetrics.SolveRun
	incumbents int
	instances  int
}

func (s *memSink) RecordSolveRun(r coremetrics.SolveRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, r)
	return nil
}

func (s *memSink) RecordIncumbent(coremetrics.IncumbentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incumbents++
	return nil
}

func (s *memSink) RecordInstance(coremetrics.InstanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances++
	return nil
}

type fixture struct {
	svc   *Service
	sink  *memSink
	store runlog.Store
	pub   *mqtt.MockPublisher
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Solver = search.Config{Workers: 2, GapTolerance: 1e-9, TimeLimitSeconds: 30}
	if mutate != nil {
		mutate(cfg)
	}
	store, err := runlog.NewJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"))
	require.NoError(t, err)
	f := &fixture{sink: &memSink{}, store: store, pub: mqtt.NewMockPublisher()}
	n := 0
	f.svc, err = New(cfg,
		WithSink(f.sink),
		WithStore(store),
		WithPublisher(f.pub),
		WithLogger(logger.NopLogger{}),
		WithRunIDs(func() string { n++; return "run-" + string(rune('0'+n)) }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.svc.Close() })
	return f
}

func res(name string) []model.RawResource { return []model.RawResource{{Resource: name}} }

// crossing costs 3 when train 1 passes first.
func crossing() model.RawInstance {
	return model.RawInstance{
		Trains: [][]model.RawOperation{
			{
				{MinDuration: model.I64(10), Successors: []int{1}, Resources: res("R")},
				{MinDuration: model.I64(0)},
			},
			{
				{MinDuration: model.I64(4), Successors: []int{1}, Resources: res("R")},
				{MinDuration: model.I64(1)},
			},
		},
		Objective: []model.RawObjective{
			{Type: model.ObjectiveOpDelay, Train: 1, Operation: 1, Threshold: 5, Coeff: 2, Increment: 3},
			{Type: model.ObjectiveOpDelay, Train: 0, Operation: 1, Threshold: 11, Coeff: 1},
		},
	}
}

func build(t *testing.T, raw model.RawInstance) *model.Instance {
	t.Helper()
	in, err := model.Build(raw)
	require.NoError(t, err)
	return in
}

func TestSolveRecordsAndPublishes(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.svc.Solve(context.Background(), "crossing", build(t, crossing()))
	require.NoError(t, err)

	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, search.StatusOptimal, out.Status)
	require.NotNil(t, out.Solution)
	assert.Equal(t, 3.0, out.Solution.ObjectiveValue)
	assert.Len(t, out.Solution.Events, 4)
	assert.Equal(t, 2, out.Instance.Trains)
	assert.Equal(t, 1, out.Model.Pairs)

	f.sink.mu.Lock()
	require.Len(t, f.sink.runs, 1)
	assert.Equal(t, "OPTIMAL", f.sink.runs[0].Status)
	assert.Equal(t, 4, f.sink.runs[0].Events)
	assert.Equal(t, 1, f.sink.instances)
	assert.GreaterOrEqual(t, f.sink.incumbents, 1)
	f.sink.mu.Unlock()

	recs, err := f.store.Query(context.Background(), runlog.RunQuery{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "OPTIMAL", recs[0].Status)
	assert.Equal(t, "crossing", recs[0].Source)
	assert.Equal(t, 3.0, recs[0].Objective)
	assert.Equal(t, search.StopExhausted, recs[0].Stats.StopReason)

	sols, progress := f.pub.Snapshot()
	require.Len(t, sols, 1)
	assert.Equal(t, "run-1", sols[0].RunID)
	assert.Equal(t, out.Solution.Events, sols[0].Events)
	require.GreaterOrEqual(t, len(progress), 2)
	assert.Equal(t, "started", progress[0].Kind)
	assert.Equal(t, "finished", progress[len(progress)-1].Kind)
	for _, p := range progress {
		assert.Equal(t, "run-1", p.RunID)
	}
}

func TestSolveInfeasibleIsRecordedWithoutPublishing(t *testing.T) {
	f := newFixture(t, nil)
	raw := model.RawInstance{Trains: [][]model.RawOperation{
		{{MinDuration: model.I64(1), StartLB: model.I64(10), StartUB: model.I64(5)}},
	}}
	out, err := f.svc.Solve(context.Background(), "", build(t, raw))
	require.NoError(t, err)
	assert.Equal(t, search.StatusInfeasible, out.Status)
	assert.Nil(t, out.Solution)

	sols, _ := f.pub.Snapshot()
	assert.Empty(t, sols)
	recs, err := f.store.Query(context.Background(), runlog.RunQuery{Status: "INFEASIBLE"})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSolveEncodeFailureIsRecorded(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Routing = encode.RoutingPolicy{Mode: "sometimes"}
	})
	_, err := f.svc.Solve(context.Background(), "bad-policy", build(t, crossing()))
	require.Error(t, err)

	recs, qerr := f.store.Query(context.Background(), runlog.RunQuery{})
	require.NoError(t, qerr)
	require.Len(t, recs, 1)
	assert.Equal(t, StatusError, recs[0].Status)
	assert.NotEmpty(t, recs[0].Error)
	f.sink.mu.Lock()
	assert.Equal(t, StatusError, f.sink.runs[0].Status)
	f.sink.mu.Unlock()
}

func TestSolveSourceReadsFile(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Routing = encode.RoutingPolicy{Mode: encode.RoutingAllBranches, ExtraDelay: 1}
	})
	path := filepath.Join(t.TempDir(), "one.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"trains": [[{"min_duration": 3, "successors": [1]}, {"min_duration": 0}]],
"objective": [{"type": "op_delay", "train": 0, "operation": 1, "threshold": 2, "coeff": 1, "increment": 0}]}`), 0o644))

	out, err := f.svc.SolveSource(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, search.StatusOptimal, out.Status)
	// A single successor is no branch, so the extra delay does not apply.
	assert.Equal(t, 1.0, out.Solution.ObjectiveValue)

	recs, err := f.store.Query(context.Background(), runlog.RunQuery{Source: path})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "all_branches+1", recs[0].Policy)
}

func TestNewBuildsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.RunLog = runlog.Config{Backend: runlog.BackendJSONL, Path: filepath.Join(t.TempDir(), "r.jsonl")}
	svc, err := New(cfg, WithLogger(logger.NopLogger{}))
	require.NoError(t, err)
	defer svc.Close()
	assert.IsType(t, coremetrics.NopSink{}, svc.sink)
	assert.NotNil(t, svc.Store())
}

// cancelAwareStore fails like a database driver once the context is done.
type cancelAwareStore struct{ runlog.Store }

func (s cancelAwareStore) Append(ctx context.Context, rec runlog.RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Append(ctx, rec)
}

type cancelAwarePublisher struct{ *mqtt.MockPublisher }

func (p cancelAwarePublisher) PublishSolution(ctx context.Context, msg coremqtt.SolutionMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.MockPublisher.PublishSolution(ctx, msg)
}

func TestSolveCanceledRunIsStillRecorded(t *testing.T) {
	store, err := runlog.NewJSONLStore(filepath.Join(t.TempDir(), "runs.jsonl"))
	require.NoError(t, err)
	pub := mqtt.NewMockPublisher()
	cfg := config.Default()
	cfg.Solver = search.Config{Workers: 1}
	svc, err := New(cfg,
		WithSink(&memSink{}),
		WithStore(cancelAwareStore{store}),
		WithPublisher(cancelAwarePublisher{pub}),
		WithLogger(logger.NopLogger{}),
		WithRunIDs(func() string { return "canceled" }),
	)
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := svc.Solve(ctx, "ctrl-c", build(t, crossing()))
	require.NoError(t, err)

	recs, err := store.Query(context.Background(), runlog.RunQuery{RunID: "canceled"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, out.Status.String(), recs[0].Status)

	sols, _ := pub.Snapshot()
	if out.Solution != nil {
		assert.Len(t, sols, 1)
	} else {
		assert.Empty(t, sols)
	}
}

func TestSolveRejectsNilInstance(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Solve(context.Background(), "nil", nil)
	require.Error(t, err)
	recs, qerr := f.store.Query(context.Background(), runlog.RunQuery{})
	require.NoError(t, qerr)
	assert.Empty(t, recs)
}
