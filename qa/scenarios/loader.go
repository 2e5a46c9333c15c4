// Package scenarios runs YAML-described solve scenarios: an inline instance,
// solver settings and the expected outcome.
package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/displib/core/encode"
	"github.com/kilianp07/displib/core/model"
	"github.com/kilianp07/displib/core/search"
)

type SolverDef struct {
	Workers          int     `yaml:"workers"`
	NodeLimit        int64   `yaml:"node_limit"`
	TimeLimitSeconds float64 `yaml:"time_limit_seconds"`
	GapTolerance     float64 `yaml:"gap_tolerance"`
	LPRootBound      bool    `yaml:"lp_root_bound"`
}

func (s SolverDef) ToConfig() search.Config {
	cfg := search.Config{
		Workers:          s.Workers,
		NodeLimit:        s.NodeLimit,
		TimeLimitSeconds: s.TimeLimitSeconds,
		GapTolerance:     s.GapTolerance,
		LPRootBound:      s.LPRootBound,
	}
	if cfg.TimeLimitSeconds == 0 {
		cfg.TimeLimitSeconds = 30
	}
	return cfg
}

type RoutingDef struct {
	Mode       string `yaml:"mode"`
	ExtraDelay int64  `yaml:"extra_delay"`
}

func (r RoutingDef) ToPolicy() (encode.RoutingPolicy, error) {
	mode, err := encode.ParseRoutingMode(r.Mode)
	if err != nil {
		return encode.RoutingPolicy{}, err
	}
	return encode.RoutingPolicy{Mode: mode, ExtraDelay: r.ExtraDelay}, nil
}

type Expected struct {
	Status    string   `yaml:"status"`
	Objective *float64 `yaml:"objective,omitempty"`
	Events    *int     `yaml:"events,omitempty"`
	// Tolerance is the absolute slack on Objective.
	Tolerance float64 `yaml:"tolerance,omitempty"`
	// Active lists operations that must appear in the schedule, as
	// [train, operation] pairs.
	Active [][2]int `yaml:"active,omitempty"`
	// Inactive lists operations that must not appear.
	Inactive [][2]int `yaml:"inactive,omitempty"`
}

type Scenario struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Instance    model.RawInstance `yaml:"instance"`
	Solver      SolverDef         `yaml:"solver"`
	Routing     RoutingDef        `yaml:"routing"`
	// Repeat solves the instance several times; every run must agree.
	Repeat   int      `yaml:"repeat,omitempty"`
	Expected Expected `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario has no name", path)
	}
	if _, err := search.ParseStatus(sc.Expected.Status); err != nil {
		return nil, fmt.Errorf("%s: expected.status: %w", path, err)
	}
	return &sc, nil
}
