package mqtt

import (
	"context"
	"fmt"
	"testing"
	"time"

	coremon "github.com/kilianp07/displib/core/monitoring"
	coremqtt "github.com/kilianp07/displib/core/mqtt"
)

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) CapturePanic(any, map[string]string) {}
func (r *recordMonitor) Flush(time.Duration)                 {}

func TestPublishErrorCaptured(t *testing.T) {
	mc := &mockClient{}
	newMockClient(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	defer coremon.Init(nil)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1}
	cli, err := NewPahoClient(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	mc.publishErrs = []error{fmt.Errorf("net fail"), fmt.Errorf("net fail")}
	if err := cli.PublishSolution(context.Background(), coremqtt.SolutionMessage{RunID: "r9"}); err == nil {
		t.Fatalf("expected error")
	}
	if mon.err == nil {
		t.Fatalf("error not captured")
	}
	if mon.tags["run_id"] != "r9" || mon.tags["module"] != "mqtt" {
		t.Fatalf("tags not set: %v", mon.tags)
	}
}

func TestPublishStopsOnCanceledContext(t *testing.T) {
	mc := &mockClient{}
	newMockClient(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 5, BackoffMS: 1000})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	mc.published = nil
	mc.publishErrs = []error{fmt.Errorf("net fail"), fmt.Errorf("net fail")}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cli.PublishProgress(ctx, coremqtt.ProgressMessage{RunID: "r1"}); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(mc.published) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(mc.published))
	}
}
