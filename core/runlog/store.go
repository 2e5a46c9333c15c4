// Package runlog persists one record per solve call and answers queries
// over them. Backends: plain JSONL, size-rotated JSONL and SQLite.
package runlog

import (
	"context"
	"fmt"
	"time"
)

// RunRecord captures one solve call and its outcome.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Status     string    `json:"status"`
	Objective  float64   `json:"objective_value"`
	Bound      float64   `json:"bound"`
	Gap        float64   `json:"gap"`
	Trains     int       `json:"trains"`
	Operations int       `json:"operations"`
	Events     int       `json:"events"`
	Policy     string    `json:"routing_policy,omitempty"`
	Stats      RunStats  `json:"stats"`
	Error      string    `json:"error,omitempty"`
}

// RunStats mirrors the search statistics worth keeping.
type RunStats struct {
	RuntimeMS  int64  `json:"runtime_ms"`
	Workers    int    `json:"workers"`
	Nodes      int64  `json:"nodes"`
	Pruned     int64  `json:"pruned"`
	Incumbents int64  `json:"incumbents"`
	StopReason string `json:"stop_reason"`
}

// RunQuery defines filters for retrieving records. Zero fields match
// everything; Limit keeps the most recent records.
type RunQuery struct {
	Start  time.Time
	End    time.Time
	Status string
	RunID  string
	Source string
	Limit  int
}

// Match reports whether r passes every filter of q except Limit.
func (q RunQuery) Match(r RunRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	if q.Source != "" && r.Source != q.Source {
		return false
	}
	return true
}

func (q RunQuery) limit(res []RunRecord) []RunRecord {
	if q.Limit > 0 && len(res) > q.Limit {
		return res[len(res)-q.Limit:]
	}
	return res
}

// Store persists RunRecords and supports querying.
type Store interface {
	Append(ctx context.Context, rec RunRecord) error
	Query(ctx context.Context, q RunQuery) ([]RunRecord, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, RunRecord) error              { return nil }
func (NopStore) Query(context.Context, RunQuery) ([]RunRecord, error) { return nil, nil }
func (NopStore) Close() error                                         { return nil }

// Backend names accepted by Config.
const (
	BackendNone     = ""
	BackendJSONL    = "jsonl"
	BackendRotating = "rotating"
	BackendSQLite   = "sqlite"
)

// Config selects and tunes the run log backend.
type Config struct {
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.Backend == BackendNone {
		return
	}
	if c.Path == "" {
		switch c.Backend {
		case BackendSQLite:
			c.Path = "runs.db"
		default:
			c.Path = "runs.jsonl"
		}
	}
	if c.Backend == BackendRotating {
		if c.MaxSizeMB <= 0 {
			c.MaxSizeMB = 10
		}
		if c.MaxBackups <= 0 {
			c.MaxBackups = 5
		}
		if c.MaxAgeDays <= 0 {
			c.MaxAgeDays = 30
		}
	}
}

// Validate checks the backend name.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendNone, BackendJSONL, BackendRotating, BackendSQLite:
		return nil
	}
	return fmt.Errorf("runlog.backend %q unknown (jsonl, rotating, sqlite)", c.Backend)
}

// Open builds the store selected by cfg.
func Open(cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendJSONL:
		return NewJSONLStore(cfg.Path)
	case BackendRotating:
		return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	case BackendSQLite:
		return NewSQLiteStore(cfg.Path)
	}
	return NopStore{}, nil
}
