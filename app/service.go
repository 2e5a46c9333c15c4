// Package app wires the solver pipeline to its collaborators: metric sinks,
// the run log, and the MQTT publisher.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/displib/config"
	"github.com/kilianp07/displib/core/conflict"
	"github.com/kilianp07/displib/core/encode"
	"github.com/kilianp07/displib/core/events"
	coremetrics "github.com/kilianp07/displib/core/metrics"
	"github.com/kilianp07/displib/core/model"
	"github.com/kilianp07/displib/core/monitoring"
	coremqtt "github.com/kilianp07/displib/core/mqtt"
	"github.com/kilianp07/displib/core/runlog"
	"github.com/kilianp07/displib/core/search"
	"github.com/kilianp07/displib/core/solution"
	"github.com/kilianp07/displib/infra/instancefile"
	"github.com/kilianp07/displib/infra/logger"
	"github.com/kilianp07/displib/infra/metrics"
	"github.com/kilianp07/displib/infra/mqtt"
	"github.com/kilianp07/displib/internal/eventbus"
)

// StatusError marks run log records of solve calls that failed before
// producing a status.
const StatusError = "ERROR"

// Service runs solve calls and reports them.
type Service struct {
	cfg     config.Config
	sink    coremetrics.MetricsSink
	store   runlog.Store
	pub     coremqtt.Publisher
	fetcher *instancefile.Fetcher
	log     logger.Logger
	newID   func() string
}

// Option overrides a collaborator built from the configuration.
type Option func(*Service)

func WithSink(s coremetrics.MetricsSink) Option { return func(svc *Service) { svc.sink = s } }
func WithStore(s runlog.Store) Option           { return func(svc *Service) { svc.store = s } }
func WithPublisher(p coremqtt.Publisher) Option { return func(svc *Service) { svc.pub = p } }
func WithLogger(l logger.Logger) Option         { return func(svc *Service) { svc.log = l } }
func WithRunIDs(gen func() string) Option       { return func(svc *Service) { svc.newID = gen } }

// New creates a Service from the configuration. Collaborators not given as
// options are built from cfg: metric sinks from metrics.sinks, the run log
// from runlog and an MQTT publisher when mqtt.broker is set.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	svc := &Service{cfg: *cfg, fetcher: instancefile.NewFetcher(cfg.Source), newID: uuid.NewString}
	for _, o := range opts {
		o(svc)
	}
	if svc.log == nil {
		svc.log = logger.New("service")
	}
	if svc.sink == nil {
		sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
		if err != nil {
			return nil, fmt.Errorf("metrics sink: %w", err)
		}
		svc.sink = sink
	}
	if svc.store == nil {
		store, err := runlog.Open(cfg.RunLog)
		if err != nil {
			return nil, fmt.Errorf("run log: %w", err)
		}
		svc.store = store
	}
	if svc.pub == nil {
		if cfg.MQTT.Broker == "" {
			svc.pub = coremqtt.NopPublisher{}
		} else {
			client, err := mqtt.NewPahoClient(cfg.MQTT)
			if err != nil {
				_ = svc.store.Close()
				return nil, fmt.Errorf("mqtt client: %w", err)
			}
			svc.pub = client
		}
	}
	return svc, nil
}

// Config returns the configuration the service was built with.
func (s *Service) Config() config.Config { return s.cfg }

// Store returns the run log.
func (s *Service) Store() runlog.Store { return s.store }

// Outcome is the result of one solve call.
type Outcome struct {
	RunID    string             `json:"run_id"`
	Source   string             `json:"source,omitempty"`
	Status   search.Status      `json:"status"`
	Solution *solution.Solution `json:"solution,omitempty"`
	Result   *search.Result     `json:"result"`
	Model    encode.Stats       `json:"model"`
	Instance model.Stats        `json:"instance"`
}

// SolveSource loads the instance at src, a path or an http(s) URL, and
// solves it.
func (s *Service) SolveSource(ctx context.Context, src string) (*Outcome, error) {
	in, err := instancefile.Open(ctx, s.fetcher, src)
	if err != nil {
		return nil, err
	}
	return s.Solve(ctx, src, in)
}

// Solve runs the pipeline on in: index, encode, search, extract. The run is
// recorded on the metric sinks and the run log whatever the outcome, and the
// solution is published when one exists.
func (s *Service) Solve(ctx context.Context, source string, in *model.Instance) (*Outcome, error) {
	if in == nil {
		return nil, errors.New("solve: nil instance")
	}
	runID := s.newID()
	// A canceled solve still returns a result; recording and publishing it
	// must not fail on the same cancellation.
	rctx := context.WithoutCancel(ctx)
	out := &Outcome{RunID: runID, Source: source, Instance: in.Stats()}
	started := time.Now()

	idx := conflict.NewIndex(in)
	if rec, ok := s.sink.(coremetrics.InstanceRecorder); ok {
		if err := rec.RecordInstance(coremetrics.InstanceEvent{
			Source:     source,
			Trains:     len(in.Trains),
			Operations: in.NumOps(),
			Resources:  len(idx.Resources()),
			Conflicts:  len(idx.Conflicts),
			Time:       started,
		}); err != nil {
			s.log.Warnf("record instance: %v", err)
		}
	}
	s.log.Infow("instance loaded", map[string]any{
		"run_id":     runID,
		"source":     source,
		"trains":     len(in.Trains),
		"operations": in.NumOps(),
		"conflicts":  len(idx.Conflicts),
	})

	m, err := encode.Encode(in, idx, s.cfg.Routing)
	if err != nil {
		s.recordFailure(rctx, out, started, err)
		return nil, fmt.Errorf("encode: %w", err)
	}
	out.Model = m.Stats()
	s.log.Debugw("model encoded", map[string]any{"run_id": runID, "variables": out.Model.Variables, "rows": out.Model.Rows})

	res, err := s.search(ctx, runID, m)
	if err != nil {
		s.recordFailure(rctx, out, started, err)
		return nil, fmt.Errorf("search: %w", err)
	}
	out.Result = res
	out.Status = res.Status

	if res.Status.HasSolution() && res.Assignment != nil {
		sol, err := solution.FromResult(m, res)
		if err != nil {
			s.recordFailure(rctx, out, started, err)
			return nil, fmt.Errorf("extract: %w", err)
		}
		if verr := solution.Verify(in, sol, solution.VerifyOptions{Policy: s.cfg.Routing}); verr != nil {
			// The extracted schedule must satisfy the instance; anything else is a solver bug.
			monitoring.CaptureException(verr, map[string]string{"component": "service", "run_id": runID})
			s.log.Errorf("run %s: %v", runID, verr)
		}
		out.Solution = sol
	}

	s.record(rctx, out, started, "")
	if out.Solution != nil {
		msg := coremqtt.SolutionMessage{
			RunID:          runID,
			Source:         source,
			Status:         res.Status.String(),
			ObjectiveValue: out.Solution.ObjectiveValue,
			Gap:            res.Gap,
			Events:         out.Solution.Events,
			Timestamp:      time.Now().Unix(),
		}
		if err := s.pub.PublishSolution(rctx, msg); err != nil {
			s.log.Warnf("publish solution %s: %v", runID, err)
		}
	}
	return out, nil
}

// search runs the solver with a per-run event bus feeding the metric sinks
// and the progress topic. Both consumers drain the bus before it returns.
func (s *Service) search(ctx context.Context, runID string, m *encode.Model) (*search.Result, error) {
	bus := eventbus.NewTyped[events.SearchEvent](eventbus.WithBuffer(256))
	hctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var waits []<-chan struct{}
	if done := metrics.StartEventCollector(hctx, bus, s.sink, s.log); done != nil {
		waits = append(waits, done)
	}
	waits = append(waits, bus.Handle(hctx, func(ev events.SearchEvent) {
		if err := s.pub.PublishProgress(hctx, coremqtt.NewProgressMessage(ev)); err != nil {
			s.log.Debugf("publish progress %s: %v", runID, err)
		}
	}))

	res, err := search.Solve(ctx, m, s.cfg.Solver,
		search.WithLogger(logger.New("search")),
		search.WithEvents(bus),
		search.WithRunID(runID),
	)
	bus.Close()
	for _, w := range waits {
		<-w
	}
	if n := bus.Dropped(); n > 0 {
		s.log.Warnf("run %s: %d search events dropped", runID, n)
	}
	return res, err
}

func (s *Service) recordFailure(ctx context.Context, out *Outcome, started time.Time, err error) {
	s.log.Errorf("run %s failed: %v", out.RunID, err)
	s.record(ctx, out, started, err.Error())
}

func (s *Service) record(ctx context.Context, out *Outcome, started time.Time, failure string) {
	status := StatusError
	rec := runlog.RunRecord{
		RunID:      out.RunID,
		Timestamp:  started,
		Source:     out.Source,
		Trains:     out.Instance.Trains,
		Operations: out.Instance.Operations,
		Policy:     policyName(s.cfg.Routing),
		Error:      failure,
	}
	run := coremetrics.SolveRun{
		RunID:      out.RunID,
		Source:     out.Source,
		Trains:     out.Instance.Trains,
		Operations: out.Instance.Operations,
		Runtime:    time.Since(started),
		Time:       started,
	}
	if r := out.Result; r != nil && failure == "" {
		status = r.Status.String()
		rec.Objective, rec.Bound, rec.Gap = r.Objective, r.Bound, r.Gap
		rec.Stats = runlog.RunStats{
			RuntimeMS:  r.Stats.Runtime.Milliseconds(),
			Workers:    r.Stats.Workers,
			Nodes:      r.Stats.Nodes,
			Pruned:     r.Stats.Pruned,
			Incumbents: r.Stats.Incumbents,
			StopReason: r.Stats.StopReason,
		}
		run.StopReason = r.Stats.StopReason
		run.Objective, run.Bound, run.Gap = r.Objective, r.Bound, r.Gap
		run.Workers, run.Nodes, run.Pruned, run.Incumbents = r.Stats.Workers, r.Stats.Nodes, r.Stats.Pruned, r.Stats.Incumbents
	}
	if out.Solution != nil {
		rec.Objective = out.Solution.ObjectiveValue
		rec.Events = len(out.Solution.Events)
		run.Objective = out.Solution.ObjectiveValue
		run.Events = rec.Events
	}
	rec.Status, run.Status = status, status

	if err := s.sink.RecordSolveRun(run); err != nil {
		s.log.Warnf("record run %s: %v", out.RunID, err)
	}
	if err := s.store.Append(ctx, rec); err != nil {
		s.log.Errorf("append run %s: %v", out.RunID, err)
	}
	s.log.Infow("run recorded", map[string]any{
		"run_id":    out.RunID,
		"status":    status,
		"objective": rec.Objective,
		"events":    rec.Events,
	})
}

func policyName(p encode.RoutingPolicy) string {
	if p.Mode == "" || p.Mode == encode.RoutingNone {
		return ""
	}
	return fmt.Sprintf("%s+%d", p.Mode, p.ExtraDelay)
}

type closer interface{ Close() }

// Close releases the run log, the publisher and sinks holding connections.
func (s *Service) Close() error {
	var errs []error
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("run log: %w", err))
	}
	s.pub.Close()
	if c, ok := s.sink.(closer); ok {
		c.Close()
	}
	return errors.Join(errs...)
}
