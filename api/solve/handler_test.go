package solve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/displib/app"
	"github.com/kilianp07/displib/config"
	"github.com/kilianp07/displib/core/model"
	"github.com/kilianp07/displib/core/runlog"
	"github.com/kilianp07/displib/core/search"
	"github.com/kilianp07/displib/infra/logger"
	"github.com/kilianp07/displib/infra/mqtt"
)

type memStore struct{ recs []runlog.RunRecord }

func (m *memStore) Append(_ context.Context, r runlog.RunRecord) error {
	m.recs = append(m.recs, r)
	return nil
}

func (m *memStore) Query(_ context.Context, q runlog.RunQuery) ([]runlog.RunRecord, error) {
	var res []runlog.RunRecord
	for _, r := range m.recs {
		if q.Match(r) {
			res = append(res, r)
		}
	}
	return res, nil
}

func (m *memStore) Close() error { return nil }

const instance = `{"trains": [
  [{"min_duration": 10, "successors": [1], "resources": [{"resource": "R"}]}, {"min_duration": 0}],
  [{"min_duration": 4, "successors": [1], "resources": [{"resource": "R"}]}, {"min_duration": 0}]
], "objective": [{"type": "op_delay", "train": 1, "operation": 1, "threshold": 4, "coeff": 1, "increment": 0}]}`

func newService(t *testing.T, store runlog.Store) *app.Service {
	t.Helper()
	cfg := config.Default()
	cfg.Solver = search.Config{Workers: 1, GapTolerance: 1e-9}
	svc, err := app.New(cfg,
		app.WithStore(store),
		app.WithPublisher(mqtt.NewMockPublisher()),
		app.WithLogger(logger.NopLogger{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestSolveHandler(t *testing.T) {
	store := &memStore{}
	h := NewSolveHandler(newService(t, store), "tok", 1<<20)

	req := httptest.NewRequest(http.MethodPost, "/api/solve?source=test", strings.NewReader(instance))
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var resp Response
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "OPTIMAL" || resp.Solution == nil || resp.Solution.ObjectiveValue != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Solution.Events) != 4 || resp.RunID == "" {
		t.Fatalf("unexpected events %+v", resp.Solution.Events)
	}
	if len(store.recs) != 1 || store.recs[0].Source != "test" {
		t.Fatalf("run not recorded: %+v", store.recs)
	}
}

func TestSolveHandlerRejects(t *testing.T) {
	h := NewSolveHandler(newService(t, &memStore{}), "tok", 64)
	cases := []struct {
		name   string
		method string
		auth   string
		body   string
		want   int
	}{
		{"method", http.MethodGet, "Bearer tok", "", http.StatusMethodNotAllowed},
		{"unauthorized", http.MethodPost, "", instance, http.StatusUnauthorized},
		{"too large", http.MethodPost, "Bearer tok", instance, http.StatusRequestEntityTooLarge},
		{"bad json", http.MethodPost, "Bearer tok", `{"trains":`, http.StatusBadRequest},
		{"malformed", http.MethodPost, "Bearer tok", `{"trains":[[{"min_duration":-1}]]}`, http.StatusUnprocessableEntity},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest(c.method, "/api/solve", bytes.NewBufferString(c.body))
			if c.auth != "" {
				req.Header.Set("Authorization", c.auth)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != c.want {
				t.Fatalf("expected %d got %d: %s", c.want, rr.Code, rr.Body.String())
			}
		})
	}
}

type failingSolver struct{}

func (failingSolver) Solve(context.Context, string, *model.Instance) (*app.Outcome, error) {
	return nil, errors.New("boom")
}

func TestSolveHandlerSolverError(t *testing.T) {
	rr := httptest.NewRecorder()
	NewSolveHandler(failingSolver{}, "", 0).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/solve", strings.NewReader(instance)))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
}

func TestRunsHandlerFilters(t *testing.T) {
	now := time.Now().UTC()
	store := &memStore{recs: []runlog.RunRecord{
		{RunID: "a", Timestamp: now.Add(-2 * time.Hour), Status: "OPTIMAL", Source: "x"},
		{RunID: "b", Timestamp: now.Add(-time.Hour), Status: "TIMEOUT", Source: "x"},
		{RunID: "c", Timestamp: now, Status: "OPTIMAL", Source: "y"},
	}}
	mux := NewMux(failingSolver{}, store, "tok", 0)

	get := func(path string) []runlog.RunRecord {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer tok")
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rr.Code)
		}
		var out []runlog.RunRecord
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return out
	}
	if got := get("/api/runs?status=optimal"); len(got) != 2 {
		t.Fatalf("status filter: %d records", len(got))
	}
	if got := get("/api/runs?source=x&status=timeout"); len(got) != 1 || got[0].RunID != "b" {
		t.Fatalf("source filter: %+v", got)
	}
	start := now.Add(-90 * time.Minute).Format(time.RFC3339)
	if got := get("/api/runs?start=" + start); len(got) != 2 {
		t.Fatalf("start filter: %d records", len(got))
	}
	if got := get("/api/runs?run_id=zzz"); len(got) != 0 {
		t.Fatalf("expected empty list, got %+v", got)
	}

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=-3", nil)
	req.Header.Set("Authorization", "Bearer tok")
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("healthz %d", rr.Code)
	}
}
