// Package solve exposes the solver over HTTP: POST /api/solve runs an
// instance and GET /api/runs queries the run log.
package solve

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kilianp07/displib/app"
	"github.com/kilianp07/displib/core/model"
	"github.com/kilianp07/displib/core/runlog"
	"github.com/kilianp07/displib/core/search"
	"github.com/kilianp07/displib/core/solution"
	"github.com/kilianp07/displib/infra/instancefile"
)

// Solver runs one instance.
type Solver interface {
	Solve(ctx context.Context, source string, in *model.Instance) (*app.Outcome, error)
}

// Response is the body returned by POST /api/solve.
type Response struct {
	RunID    string             `json:"run_id"`
	Status   string             `json:"status"`
	Gap      float64            `json:"gap"`
	Bound    float64            `json:"bound"`
	Solution *solution.Solution `json:"solution"`
	Stats    search.Stats       `json:"stats"`
}

// authorized checks the bearer token when one is configured.
func authorized(r *http.Request, token string) bool {
	return token == "" || r.Header.Get("Authorization") == "Bearer "+token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewSolveHandler returns the POST /api/solve handler. The body is a DISPLIB
// instance in JSON, or YAML with a yaml content type. Requests must include
// an Authorization header with "Bearer <token>" when token is non-empty.
func NewSolveHandler(svc Solver, token string, maxBody int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if maxBody > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		format := instancefile.FormatJSON
		if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
			format = instancefile.FormatYAML
		}
		raw, err := instancefile.Decode(r.Body, format)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		in, err := model.Build(*raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		source := r.URL.Query().Get("source")
		if source == "" {
			source = "http"
		}
		out, err := svc.Solve(r.Context(), source, in)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp := Response{RunID: out.RunID, Status: out.Status.String(), Solution: out.Solution}
		if out.Result != nil {
			resp.Gap, resp.Bound, resp.Stats = out.Result.Gap, out.Result.Bound, out.Result.Stats
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

// NewRunsHandler returns the GET /api/runs handler. Filters: start and end
// (RFC3339), status, run_id, source and limit.
func NewRunsHandler(store runlog.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if !authorized(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		v := r.URL.Query()
		q := runlog.RunQuery{
			Status: strings.ToUpper(v.Get("status")),
			RunID:  v.Get("run_id"),
			Source: v.Get("source"),
		}
		if s := v.Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := v.Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		if s := v.Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			q.Limit = n
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []runlog.RunRecord{}
		}
		writeJSON(w, http.StatusOK, records)
	})
}

// NewMux registers the API routes and a /healthz probe.
func NewMux(svc Solver, store runlog.Store, token string, maxBody int64) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/solve", NewSolveHandler(svc, token, maxBody))
	mux.Handle("/api/runs", NewRunsHandler(store, token))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}
