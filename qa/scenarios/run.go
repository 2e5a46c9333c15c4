package scenarios

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kilianp07/displib/app"
	"github.com/kilianp07/displib/config"
	"github.com/kilianp07/displib/core/model"
	"github.com/kilianp07/displib/core/runlog"
	"github.com/kilianp07/displib/core/solution"
	"github.com/kilianp07/displib/infra/logger"
	"github.com/kilianp07/displib/infra/metrics"
	"github.com/kilianp07/displib/infra/mqtt"
)

func RunScenario(t *testing.T, sc *Scenario) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry("qa", reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	pub := mqtt.NewMockPublisher()

	in, err := model.Build(sc.Instance)
	if err != nil {
		t.Fatalf("build instance: %v", err)
	}
	policy, err := sc.Routing.ToPolicy()
	if err != nil {
		t.Fatalf("routing: %v", err)
	}
	cfg := config.Default()
	cfg.Solver = sc.Solver.ToConfig()
	cfg.Routing = policy

	svc, err := app.New(cfg,
		app.WithSink(sink),
		app.WithStore(runlog.NopStore{}),
		app.WithPublisher(pub),
		app.WithLogger(logger.NopLogger{}),
	)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	defer svc.Close()

	repeat := sc.Repeat
	if repeat < 1 {
		repeat = 1
	}
	var first float64
	for i := 0; i < repeat; i++ {
		out, err := svc.Solve(context.Background(), sc.Name, in)
		if err != nil {
			t.Fatalf("scenario %s: solve: %v", sc.Name, err)
		}
		if got := out.Status.String(); !strings.EqualFold(got, sc.Expected.Status) {
			t.Fatalf("scenario %s expected status %s, got %s", sc.Name, sc.Expected.Status, got)
		}
		if out.Solution == nil {
			continue
		}
		checkSolution(t, sc, in, out.Solution)
		if i == 0 {
			first = out.Solution.ObjectiveValue
		} else if math.Abs(out.Solution.ObjectiveValue-first) > 1e-9 {
			t.Errorf("scenario %s run %d objective %g differs from first run %g", sc.Name, i, out.Solution.ObjectiveValue, first)
		}
	}

	if n := testutil.CollectAndCount(reg, "qa_solve_runs_total"); n != 1 {
		t.Errorf("scenario %s expected one status series, got %d", sc.Name, n)
	}
	sols, _ := pub.Snapshot()
	if strings.EqualFold(sc.Expected.Status, "INFEASIBLE") && len(sols) != 0 {
		t.Errorf("scenario %s published %d solutions for an infeasible instance", sc.Name, len(sols))
	}
}

func checkSolution(t *testing.T, sc *Scenario, in *model.Instance, sol *solution.Solution) {
	t.Helper()
	exp := sc.Expected
	if exp.Objective != nil {
		tol := exp.Tolerance
		if tol == 0 {
			tol = 1e-6
		}
		if math.Abs(sol.ObjectiveValue-*exp.Objective) > tol {
			t.Errorf("scenario %s expected objective %g, got %g", sc.Name, *exp.Objective, sol.ObjectiveValue)
		}
	}
	if exp.Events != nil && len(sol.Events) != *exp.Events {
		t.Errorf("scenario %s expected %d events, got %d", sc.Name, *exp.Events, len(sol.Events))
	}
	starts := sol.Starts()
	for _, p := range exp.Active {
		if _, ok := starts[model.OpRef{Train: p[0], Op: p[1]}]; !ok {
			t.Errorf("scenario %s: train %d op %d should be scheduled", sc.Name, p[0], p[1])
		}
	}
	for _, p := range exp.Inactive {
		if _, ok := starts[model.OpRef{Train: p[0], Op: p[1]}]; ok {
			t.Errorf("scenario %s: train %d op %d should not be scheduled", sc.Name, p[0], p[1])
		}
	}
	policy, _ := sc.Routing.ToPolicy()
	if err := solution.Verify(in, sol, solution.VerifyOptions{Policy: policy}); err != nil {
		t.Errorf("scenario %s: %v", sc.Name, err)
	}
}
