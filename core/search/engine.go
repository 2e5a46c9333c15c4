// Package search explores the encoded model with a parallel branch and
// bound.
//
// Branching fixes routing edges and pair orders. Start times are never
// branched on: for fixed decisions the earliest-start schedule obtained by
// longest-path propagation is the cheapest one, because every penalty is
// non-decreasing in the start time. A node whose earliest starts leave no
// overlapping pair and whose routing is fully decided is therefore solved
// exactly by propagation.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/displib/core/encode"
	"github.com/kilianp07/displib/core/events"
	"github.com/kilianp07/displib/core/logger"
	"github.com/kilianp07/displib/core/monitoring"
	"github.com/kilianp07/displib/internal/eventbus"
)

// ErrNoModel is returned when Solve is called without a model.
var ErrNoModel = errors.New("search: no model")

// checkEvery is the number of nodes a worker explores between budget and gap
// checks.
const checkEvery = 256

// Solver runs searches with a fixed configuration.
type Solver struct {
	cfg   Config
	log   logger.Logger
	bus   *eventbus.TypedBus[events.SearchEvent]
	runID string
}

// Option customises a Solver.
type Option func(*Solver)

// WithLogger sets the logger used by the solver.
func WithLogger(l logger.Logger) Option {
	return func(s *Solver) {
		if l != nil {
			s.log = l
		}
	}
}

// WithEvents publishes progress events on bus.
func WithEvents(bus *eventbus.TypedBus[events.SearchEvent]) Option {
	return func(s *Solver) { s.bus = bus }
}

// WithRunID tags every published event with id.
func WithRunID(id string) Option {
	return func(s *Solver) { s.runID = id }
}

// NewSolver applies defaults to cfg and validates it.
func NewSolver(cfg Config, opts ...Option) (*Solver, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Solver{cfg: cfg, log: logger.NopLogger{}}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Config returns the effective configuration.
func (s *Solver) Config() Config { return s.cfg }

// Solve is a shorthand for NewSolver(cfg).Solve(ctx, m).
func Solve(ctx context.Context, m *encode.Model, cfg Config, opts ...Option) (*Result, error) {
	s, err := NewSolver(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return s.Solve(ctx, m)
}

type incumbent struct {
	cost  Cost
	sched encode.Schedule
}

type run struct {
	s   *Solver
	m   *encode.Model
	st  *static
	cfg Config

	started time.Time
	rootLP  float64
	lpUsed  bool

	inc        atomic.Pointer[incumbent]
	nodes      atomic.Int64
	pruned     atomic.Int64
	infeasible atomic.Int64
	incumbents atomic.Int64
	steals     atomic.Int64

	stopped    atomic.Bool
	reasonOnce sync.Once
	reason     string

	workers []*worker
	mu      sync.Mutex
	cond    *sync.Cond
	idle    atomic.Int32
	done    bool

	errMu sync.Mutex
	err   error
}

// Solve explores m until the tree is exhausted, the gap tolerance is met, a
// budget runs out or ctx is canceled. Budget exhaustion and cancellation are
// reported as StatusTimeout with the best schedule found so far.
func (s *Solver) Solve(ctx context.Context, m *encode.Model) (*Result, error) {
	if m == nil {
		return nil, ErrNoModel
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r := &run{s: s, m: m, st: newStatic(m), cfg: s.cfg, started: time.Now()}
	r.cond = sync.NewCond(&r.mu)

	r.rootBound()
	s.emit(events.SearchEvent{Kind: events.SearchStarted, Workers: s.cfg.Workers, Bound: r.rootLP})
	activeWorkers.Set(float64(s.cfg.Workers))
	defer activeWorkers.Set(0)

	r.workers = make([]*worker, s.cfg.Workers)
	for i := range r.workers {
		r.workers[i] = &worker{id: i, state: newState(r.st)}
	}
	r.workers[0].push(&node{bound: Cost{Penalty: r.rootLP}})

	finished := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		r.watch(ctx, finished)
	}()

	var wg sync.WaitGroup
	for _, w := range r.workers {
		wg.Add(1)
		go r.work(&wg, w)
	}
	wg.Wait()
	close(finished)
	<-watched

	if r.err != nil {
		return nil, r.err
	}
	res := r.result()
	searchDuration.WithLabelValues(res.Status.String()).Observe(res.Stats.Runtime.Seconds())
	solveGap.Set(res.Gap)
	s.emit(events.SearchEvent{
		Kind:      events.SearchFinished,
		Status:    res.Status.String(),
		Objective: res.Objective,
		Bound:     res.Bound,
		Gap:       res.Gap,
		Nodes:     res.Stats.Nodes,
		Elapsed:   res.Stats.Runtime,
	})
	s.log.Infof("search finished: status=%s objective=%g bound=%g gap=%.4f nodes=%d pruned=%d reason=%s runtime=%s",
		res.Status, res.Objective, res.Bound, res.Gap, res.Stats.Nodes, res.Stats.Pruned, res.Stats.StopReason, res.Stats.Runtime)
	return res, nil
}

func (s *Solver) emit(ev events.SearchEvent) {
	if s.bus != nil {
		ev.RunID = s.runID
		s.bus.Publish(ev)
	}
}

// rootBound solves the continuous relaxation when enabled and small enough.
func (r *run) rootBound() {
	if !r.cfg.LPRootBound {
		return
	}
	if n := len(r.m.Vars); n > r.cfg.LPMaxVars {
		r.s.log.Debugf("root LP skipped: %d variables exceed lp_max_vars %d", n, r.cfg.LPMaxVars)
		return
	}
	v, err := lpSolve(r.m)
	if err != nil {
		r.s.log.Warnf("root LP relaxation failed: %v", err)
		return
	}
	r.rootLP = math.Max(0, v-lpSafety)
	r.lpUsed = true
	r.s.log.Debugw("root LP relaxation", map[string]any{"bound": r.rootLP, "variables": len(r.m.Vars), "rows": len(r.m.Rows)})
}

// watch stops the run on the time limit or when ctx is canceled.
func (r *run) watch(ctx context.Context, finished <-chan struct{}) {
	var deadline <-chan time.Time
	if d := r.cfg.TimeLimit(); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		deadline = t.C
	}
	select {
	case <-finished:
	case <-deadline:
		r.halt(StopTime)
	case <-ctx.Done():
		r.halt(StopCanceled)
	}
}

func (r *run) halt(reason string) {
	r.reasonOnce.Do(func() { r.reason = reason })
	if r.stopped.CompareAndSwap(false, true) {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	}
}

func (r *run) fail(err error) {
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.errMu.Unlock()
	r.halt(StopPanic)
}

func (r *run) work(wg *sync.WaitGroup, w *worker) {
	defer wg.Done()
	defer func() {
		if p := recover(); p != nil {
			err := monitoring.CapturePanic(p, map[string]string{"component": "search", "worker": strconv.Itoa(w.id)})
			r.fail(fmt.Errorf("search worker %d: %w", w.id, err))
		}
	}()
	for {
		n := r.next(w)
		if n == nil {
			return
		}
		r.expand(w, n)
		w.setCurrent(nil)
	}
}

// expand processes one node: prune, propagate, record a leaf or branch.
func (r *run) expand(w *worker, n *node) {
	count := r.nodes.Add(1)
	nodesExplored.Inc()
	if r.cfg.NodeLimit > 0 && count > r.cfg.NodeLimit {
		w.push(n)
		r.halt(StopNodes)
		return
	}
	if count%checkEvery == 0 {
		r.checkGap()
		if r.stopped.Load() {
			w.push(n)
			return
		}
	}
	if inc := r.inc.Load(); inc != nil && !n.bound.Less(inc.cost) {
		r.pruned.Add(1)
		nodesPruned.Inc()
		return
	}

	w.load(n)
	s := w.state
	if !s.propagate() {
		r.infeasible.Add(1)
		nodesPruned.Inc()
		return
	}
	c := s.cost()
	bound := c
	if bound.Penalty < r.rootLP {
		bound.Penalty = r.rootLP
	}
	if inc := r.inc.Load(); inc != nil && !bound.Less(inc.cost) {
		r.pruned.Add(1)
		nodesPruned.Inc()
		return
	}

	if cf, ok := s.worstConflict(); ok {
		first, second := aFirst, bFirst
		if cf.shiftB < cf.shiftA {
			first, second = bFirst, aFirst
		}
		r.publish(w,
			n.child(decision{kind: kindPair, index: cf.order, dir: second}, bound),
			n.child(decision{kind: kindPair, index: cf.order, dir: first}, bound),
		)
		return
	}
	if _, edges, ok := s.openRouting(); ok {
		kids := make([]*node, len(edges))
		for i, ei := range edges {
			kids[len(edges)-1-i] = n.child(decision{kind: kindEdge, index: ei}, bound)
		}
		r.publish(w, kids...)
		return
	}
	r.offer(c, s.schedule(), w.id)
}

// offer installs a leaf schedule as incumbent when it improves on the
// current one.
func (r *run) offer(c Cost, sc encode.Schedule, worker int) {
	cand := &incumbent{cost: c, sched: sc}
	for {
		cur := r.inc.Load()
		if cur != nil && !c.Less(cur.cost) {
			return
		}
		if r.inc.CompareAndSwap(cur, cand) {
			break
		}
	}
	r.incumbents.Add(1)
	incumbentUpdates.Inc()
	elapsed := time.Since(r.started)
	r.s.log.Debugw("new incumbent", map[string]any{
		"objective": c.Penalty,
		"active":    c.Active,
		"worker":    worker,
		"nodes":     r.nodes.Load(),
		"elapsed":   elapsed.String(),
	})
	r.s.emit(events.SearchEvent{
		Kind:      events.SearchIncumbent,
		Objective: c.Penalty,
		Nodes:     r.nodes.Load(),
		Elapsed:   elapsed,
	})
}

// checkGap stops the run once the incumbent is within the gap tolerance of
// the smallest open bound.
func (r *run) checkGap() {
	inc := r.inc.Load()
	if inc == nil {
		return
	}
	b, ok := r.openBound()
	if !ok {
		return
	}
	if Gap(inc.cost.Penalty, math.Max(b.Penalty, r.rootLP)) <= r.cfg.GapTolerance {
		r.halt(StopGap)
	}
}

func (r *run) result() *Result {
	res := &Result{
		Stats: Stats{
			Runtime:     time.Since(r.started),
			Workers:     len(r.workers),
			Nodes:       r.nodes.Load(),
			Pruned:      r.pruned.Load(),
			Infeasible:  r.infeasible.Load(),
			Incumbents:  r.incumbents.Load(),
			Steals:      r.steals.Load(),
			RootLPBound: r.rootLP,
			LPUsed:      r.lpUsed,
		},
	}
	reason := StopExhausted
	if r.stopped.Load() && !r.done {
		reason = r.reason
	}
	res.Stats.StopReason = reason

	inc := r.inc.Load()
	if inc != nil {
		sc := inc.sched
		x, err := r.m.Assign(sc)
		if err == nil {
			res.Assignment = x
			res.Schedule = &sc
		}
		res.Objective = inc.cost.Penalty
		res.Active = inc.cost.Active
	}

	if reason == StopExhausted {
		if inc == nil {
			res.Status = StatusInfeasible
			return res
		}
		res.Status = StatusOptimal
		res.Bound = inc.cost.Penalty
		return res
	}

	bound := math.Inf(1)
	if b, ok := r.openBound(); ok {
		bound = math.Max(b.Penalty, r.rootLP)
	}
	if inc != nil && bound > inc.cost.Penalty {
		bound = inc.cost.Penalty
	}
	if math.IsInf(bound, 1) {
		bound = r.rootLP
	}
	res.Bound = bound
	if inc == nil {
		res.Status = StatusTimeout
		res.Gap = 1
		return res
	}
	res.Gap = Gap(inc.cost.Penalty, bound)
	switch {
	case reason == StopGap && res.Gap == 0:
		res.Status = StatusOptimal
	case reason == StopGap:
		res.Status = StatusFeasible
	default:
		res.Status = StatusTimeout
	}
	return res
}
