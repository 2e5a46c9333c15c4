package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/displib/core/encode"
	"github.com/kilianp07/displib/core/runlog"
	"github.com/kilianp07/displib/core/search"
)

func write(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := write(t, "config.yaml", `solver:
  workers: 3
  time_limit_seconds: 12.5
  gap_tolerance: 0.01
routing:
  mode: swap_only
  extra_delay: 2
metrics:
  listen: ":9100"
  sinks:
    - type: "nop"
runlog:
  backend: sqlite
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  qos:
    solution: 1
source:
  auth:
    client_id: id
    client_secret: secret
    auth_url: http://auth.local/token
http:
  token: secret
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"workers", cfg.Solver.Workers, 3},
		{"time_limit", cfg.Solver.TimeLimitSeconds, 12.5},
		{"gap", cfg.Solver.GapTolerance, 0.01},
		{"routing.mode", cfg.Routing.Mode, encode.RoutingSwapOnly},
		{"routing.extra_delay", cfg.Routing.ExtraDelay, int64(2)},
		{"metrics.listen", cfg.Metrics.Listen, ":9100"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"runlog.backend", cfg.RunLog.Backend, runlog.BackendSQLite},
		{"runlog.path", cfg.RunLog.Path, "runs.db"},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "cli"},
		{"qos", cfg.MQTT.QoS["solution"], byte(1)},
		{"topic_prefix", cfg.MQTT.TopicPrefix, "displib"},
		{"source.client_id", cfg.Source.Auth.ClientID, "id"},
		{"source.timeout", cfg.Source.TimeoutSeconds, 30},
		{"http.listen", cfg.HTTP.Listen, ":8080"},
		{"http.token", cfg.HTTP.Token, "secret"},
		{"logging.level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadJSONWithEnvOverride(t *testing.T) {
	path := write(t, "config.json", `{"solver": {"workers": 2}, "http": {"listen": ":1"}}`)
	t.Setenv("DISPLIB_SOLVER__WORKERS", "5")
	t.Setenv("DISPLIB_HTTP__TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Solver.Workers)
	assert.Equal(t, "from-env", cfg.HTTP.Token)
	assert.Equal(t, ":1", cfg.HTTP.Listen)
}

func TestLoadGapTolerance(t *testing.T) {
	cfg, err := Load(write(t, "config.yaml", "solver:\n  workers: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, search.DefaultGapTolerance, cfg.Solver.GapTolerance)

	cfg, err = Load(write(t, "config.yaml", "solver:\n  gap_tolerance: 0\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.Solver.GapTolerance)

	t.Setenv("DISPLIB_SOLVER__GAP_TOLERANCE", "0")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Zero(t, cfg.Solver.GapTolerance)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"format":  "",
		"gap":     "solver:\n  gap_tolerance: 2\n",
		"routing": "routing:\n  mode: sometimes\n",
		"runlog":  "runlog:\n  backend: csv\n",
		"logging": "logging:\n  level: loud\n",
		"sentry":  "sentry:\n  traces_sample_rate: 3\n",
		"source":  "source:\n  auth:\n    client_id: only\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			file := "config.yaml"
			if name == "format" {
				file = "config.toml"
			}
			_, err := Load(write(t, file, data))
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, runtime.NumCPU(), cfg.Solver.Workers)
	assert.Equal(t, search.DefaultGapTolerance, cfg.Solver.GapTolerance)
	assert.Equal(t, runlog.BackendNone, cfg.RunLog.Backend)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Empty(t, cfg.MQTT.ClientID)

	// Load without a file reads only the environment.
	t.Setenv("DISPLIB_RUNLOG__BACKEND", "jsonl")
	loaded, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "runs.jsonl", loaded.RunLog.Path)
}
