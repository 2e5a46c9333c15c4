package search

import (
	"fmt"
	"runtime"
	"time"
)

// Config defines the search budget and tuning.
type Config struct {
	// Workers is the number of parallel explorers. Zero means one per CPU.
	Workers int `json:"workers"`
	// TimeLimitSeconds bounds the wall-clock time. Zero disables the limit.
	TimeLimitSeconds float64 `json:"time_limit_seconds"`
	// NodeLimit bounds the number of explored nodes. Zero disables the limit.
	NodeLimit int64 `json:"node_limit"`
	// GapTolerance stops the search once the relative gap between the
	// incumbent and the proven bound is at or below it. Zero searches for a
	// proven optimum.
	GapTolerance float64 `json:"gap_tolerance"`
	// LPRootBound solves the continuous relaxation at the root when the
	// model has at most LPMaxVars variables.
	LPRootBound bool `json:"lp_root_bound"`
	LPMaxVars   int  `json:"lp_max_vars"`
}

// DefaultGapTolerance matches the usual MIP gap of commercial solvers. It is
// applied by the configuration layer; an explicit zero is kept.
const DefaultGapTolerance = 1e-3

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.LPMaxVars == 0 {
		c.LPMaxVars = 150
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.TimeLimitSeconds < 0 {
		return fmt.Errorf("time_limit_seconds must be >= 0, got %v", c.TimeLimitSeconds)
	}
	if c.NodeLimit < 0 {
		return fmt.Errorf("node_limit must be >= 0, got %d", c.NodeLimit)
	}
	if c.GapTolerance < 0 || c.GapTolerance >= 1 {
		return fmt.Errorf("gap_tolerance must be in [0,1), got %v", c.GapTolerance)
	}
	if c.LPMaxVars < 0 {
		return fmt.Errorf("lp_max_vars must be >= 0, got %d", c.LPMaxVars)
	}
	return nil
}

// TimeLimit returns the wall-clock budget, zero when unlimited.
func (c Config) TimeLimit() time.Duration {
	return time.Duration(c.TimeLimitSeconds * float64(time.Second))
}
