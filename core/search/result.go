package search

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kilianp07/displib/core/encode"
)

// Status is the terminal state of a solve call.
type Status int

const (
	StatusOptimal Status = iota
	StatusFeasible
	StatusInfeasible
	StatusTimeout
)

var statusNames = [...]string{"OPTIMAL", "FEASIBLE", "INFEASIBLE", "TIMEOUT"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a status name, case-insensitively.
func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseStatus maps a status name to its value.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, name) {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// HasSolution reports whether results with this status may carry an assignment.
func (s Status) HasSolution() bool { return s == StatusOptimal || s == StatusFeasible || s == StatusTimeout }

// Cost orders schedules by penalty first and number of active operations
// second, which stands in for an infinitesimal weight per active operation.
type Cost struct {
	Penalty float64
	Active  int
}

// Less reports whether c is strictly better than o.
func (c Cost) Less(o Cost) bool {
	if c.Penalty != o.Penalty {
		return c.Penalty < o.Penalty
	}
	return c.Active < o.Active
}

// Gap returns the relative gap between an incumbent penalty and a lower
// bound, capped at 1. Without an incumbent (+Inf) the gap is 1.
func Gap(incumbent, bound float64) float64 {
	if math.IsInf(incumbent, 1) {
		return 1
	}
	d := incumbent - bound
	if d <= 0 {
		return 0
	}
	den := math.Abs(incumbent)
	if den < 1e-10 || d >= den {
		return 1
	}
	return d / den
}

// Stop reasons reported in Stats.StopReason.
const (
	StopExhausted = "exhausted"
	StopGap       = "gap"
	StopTime      = "time_limit"
	StopNodes     = "node_limit"
	StopCanceled  = "canceled"
	StopPanic     = "panic"
)

// Stats reports what the search did.
type Stats struct {
	Runtime     time.Duration `json:"runtime"`
	Workers     int           `json:"workers"`
	Nodes       int64         `json:"nodes"`
	Pruned      int64         `json:"pruned"`
	Infeasible  int64         `json:"infeasible_nodes"`
	Incumbents  int64         `json:"incumbent_updates"`
	Steals      int64         `json:"steals"`
	RootLPBound float64       `json:"root_lp_bound"`
	LPUsed      bool          `json:"lp_used"`
	StopReason  string        `json:"stop_reason"`
}

// Result is the outcome of a solve call. Assignment and Schedule are nil
// when no feasible schedule was found.
type Result struct {
	Status     Status            `json:"status"`
	Assignment encode.Assignment `json:"-"`
	Schedule   *encode.Schedule  `json:"-"`
	Objective  float64           `json:"objective"`
	Bound      float64           `json:"bound"`
	Gap        float64           `json:"gap"`
	Active     int               `json:"active_operations"`
	Stats      Stats             `json:"stats"`
}
