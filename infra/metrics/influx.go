package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/displib/core/metrics"
	"github.com/kilianp07/displib/infra/logger"
)

// InfluxSink writes solver activity to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordSolveRun writes the run as a solve_run point.
func (s *InfluxSink) RecordSolveRun(run coremetrics.SolveRun) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("solve_run").
		AddTag("run_id", run.RunID).
		AddTag("status", run.Status).
		AddTag("stop_reason", run.StopReason).
		AddTag("component", "solver")
	if run.Source != "" {
		p = p.AddTag("source", run.Source)
	}
	p = p.AddField("objective", round3(run.Objective)).
		AddField("bound", round3(run.Bound)).
		AddField("gap", round3(run.Gap)).
		AddField("trains", run.Trains).
		AddField("operations", run.Operations).
		AddField("events", run.Events).
		AddField("workers", run.Workers).
		AddField("nodes", run.Nodes).
		AddField("pruned", run.Pruned).
		AddField("runtime_ms", round3(run.Runtime.Seconds()*1000)).
		SetTime(run.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordIncumbent writes an improving schedule.
func (s *InfluxSink) RecordIncumbent(ev coremetrics.IncumbentEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("incumbent_found").
		AddTag("run_id", ev.RunID).
		AddTag("component", "search").
		AddField("objective", round3(ev.Objective)).
		AddField("nodes", ev.Nodes).
		AddField("elapsed_ms", round3(ev.Elapsed.Seconds()*1000)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordInstance writes the size of a loaded instance.
func (s *InfluxSink) RecordInstance(ev coremetrics.InstanceEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("instance_loaded").
		AddTag("component", "loader")
	if ev.Source != "" {
		p = p.AddTag("source", ev.Source)
	}
	p = p.AddField("trains", ev.Trains).
		AddField("operations", ev.Operations).
		AddField("resources", ev.Resources).
		AddField("conflicts", ev.Conflicts).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
