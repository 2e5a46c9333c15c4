package events

import "time"

// SearchEventKind tells which phase of a solve call produced the event.
type SearchEventKind string

const (
	SearchStarted   SearchEventKind = "started"
	SearchIncumbent SearchEventKind = "incumbent"
	SearchFinished  SearchEventKind = "finished"
)

// SearchEvent reports search progress. Status, Bound and Gap are only set on
// SearchFinished; Workers only on SearchStarted.
type SearchEvent struct {
	Kind      SearchEventKind
	RunID     string
	Workers   int
	Status    string
	Objective float64
	Bound     float64
	Gap       float64
	Nodes     int64
	Elapsed   time.Duration
}
