package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/displib/app"
	"github.com/kilianp07/displib/config"
	"github.com/kilianp07/displib/core/solution"
	"github.com/kilianp07/displib/infra/logger"
)

// crossing costs 3 when train 1 passes first.
const crossing = `{"trains": [
  [{"min_duration": 10, "successors": [1], "resources": [{"resource": "R"}]}, {"min_duration": 0}],
  [{"min_duration": 4, "successors": [1], "resources": [{"resource": "R"}]}, {"min_duration": 1}]
], "objective": [
  {"type": "op_delay", "train": 1, "operation": 1, "threshold": 5, "coeff": 2, "increment": 3},
  {"type": "op_delay", "train": 0, "operation": 1, "threshold": 11, "coeff": 1, "increment": 0}
]}`

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestSolveToStdout(t *testing.T) {
	inst := writeFile(t, "crossing.json", crossing)
	out, summary, err := run(t, "solve", inst, "--workers", "2", "--gap", "0")
	require.NoError(t, err)
	assert.Contains(t, summary, "status=OPTIMAL")

	var sol solution.Solution
	require.NoError(t, json.Unmarshal([]byte(out), &sol))
	assert.Equal(t, 3.0, sol.ObjectiveValue)
	assert.Equal(t, []solution.Event{
		{Train: 1, Operation: 0, Time: 0},
		{Train: 0, Operation: 0, Time: 4},
		{Train: 1, Operation: 1, Time: 4},
		{Train: 0, Operation: 1, Time: 14},
	}, sol.Events)
}

func TestSolveWritesFilesAndVerifies(t *testing.T) {
	inst := writeFile(t, "crossing.json", crossing)
	dir := t.TempDir()
	solPath := filepath.Join(dir, "sol.json")
	csvPath := filepath.Join(dir, "sol.csv")

	_, _, err := run(t, "solve", inst, "-o", solPath, "--gap", "0")
	require.NoError(t, err)
	_, _, err = run(t, "solve", inst, "-o", csvPath, "-f", "csv")
	require.NoError(t, err)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "train,operation,time\n1,0,0\n"), string(data))

	out, _, err := run(t, "verify", inst, solPath)
	require.NoError(t, err)
	assert.Contains(t, out, "valid: 4 events, objective_value 3")

	bad := writeFile(t, "bad.json", `{"objective_value": 0, "events": [
  {"train": 0, "operation": 0, "time": 0}, {"train": 1, "operation": 0, "time": 0},
  {"train": 1, "operation": 1, "time": 4}, {"train": 0, "operation": 1, "time": 10}]}`)
	_, _, err = run(t, "verify", inst, bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, solution.ErrInvalidSolution))
	assert.Contains(t, err.Error(), "overlap on R")
}

func TestSolveInfeasible(t *testing.T) {
	inst := writeFile(t, "window.json", `{"trains": [[{"min_duration": 1, "start_lb": 10, "start_ub": 5}]], "objective": []}`)
	_, summary, err := run(t, "solve", inst)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errNoSolution))
	assert.Contains(t, summary, "status=INFEASIBLE")
}

func TestInspect(t *testing.T) {
	inst := writeFile(t, "crossing.json", crossing)
	out, _, err := run(t, "inspect", inst)
	require.NoError(t, err)

	var rep inspectReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 2, rep.Instance.Trains)
	assert.Equal(t, 4, rep.Instance.Operations)
	assert.Equal(t, 1, rep.Conflicts.Resources)
	assert.Equal(t, 2, rep.Conflicts.Entries)
	assert.Equal(t, 1, rep.Conflicts.Pairs)
	assert.Equal(t, 1, rep.Model.Pairs)
	assert.Positive(t, rep.Horizon)
}

func TestCommandErrors(t *testing.T) {
	inst := writeFile(t, "crossing.json", crossing)
	_, _, err := run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "inspect", inst)
	assert.Error(t, err)
	_, _, err = run(t, "solve", inst, "--routing", "sometimes")
	assert.Error(t, err)
	_, _, err = run(t, "solve", inst, "--format", "xml")
	assert.Error(t, err)
	_, _, err = run(t, "solve")
	assert.Error(t, err)
	_, _, err = run(t, "inspect", filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)
}

func TestServeHandler(t *testing.T) {
	cfg := config.Default()
	svc, err := app.New(cfg, app.WithLogger(logger.NopLogger{}))
	require.NoError(t, err)
	defer svc.Close()
	h := serveHandler(*cfg, svc)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "search_nodes_explored_total")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/solve", strings.NewReader(crossing)))
	assert.Equal(t, http.StatusOK, rr.Code)

	cfg.Metrics.Listen = ":9191"
	rr = httptest.NewRecorder()
	serveHandler(*cfg, svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
