// Package config loads the displib configuration file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/displib/core/encode"
	"github.com/kilianp07/displib/core/metrics"
	"github.com/kilianp07/displib/core/runlog"
	"github.com/kilianp07/displib/core/search"
	"github.com/kilianp07/displib/infra/mqtt"
)

// EnvPrefix marks environment overrides. DISPLIB_SOLVER__WORKERS=4 sets
// solver.workers.
const EnvPrefix = "DISPLIB_"

type Config struct {
	Solver  search.Config        `json:"solver"`
	Routing encode.RoutingPolicy `json:"routing"`
	Metrics metrics.Config       `json:"metrics"`
	RunLog  runlog.Config        `json:"runlog"`
	MQTT    mqtt.Config          `json:"mqtt"`
	Sentry  SentryConfig         `json:"sentry"`
	Source  SourceConfig         `json:"source"`
	HTTP    HTTPConfig           `json:"http"`
	Logging LoggingConfig        `json:"logging"`
}

// Default returns a configuration with every section defaulted, used when no
// file is given.
func Default() *Config {
	cfg := &Config{Solver: search.Config{GapTolerance: search.DefaultGapTolerance}}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies the defaults of every section. MQTT stays disabled
// until a broker is configured.
func (c *Config) SetDefaults() {
	c.Solver.SetDefaults()
	c.RunLog.SetDefaults()
	if c.MQTT.Broker != "" {
		c.MQTT.SetDefaults()
	}
	c.Source.SetDefaults()
	c.HTTP.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section and joins the failures.
func (c Config) Validate() error {
	var errs []error
	add := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	add("solver", c.Solver.Validate())
	add("routing", c.Routing.Validate())
	add("runlog", c.RunLog.Validate())
	if c.MQTT.Broker != "" {
		add("mqtt", c.MQTT.Validate())
	}
	add("sentry", c.Sentry.Validate())
	add("source", c.Source.Validate())
	add("http", c.HTTP.Validate())
	add("logging", c.Logging.Validate())
	return errors.Join(errs...)
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, err
	}
	// Unmarshal only touches keys that are present, so an explicit
	// gap_tolerance of 0 survives.
	cfg := Config{Solver: search.Config{GapTolerance: search.DefaultGapTolerance}}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}
