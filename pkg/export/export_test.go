package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/kilianp07/displib/core/solution"
)

func sample() *solution.Solution {
	return &solution.Solution{ObjectiveValue: 9, Events: []solution.Event{
		{Train: 0, Operation: 0, Time: 0},
		{Train: 1, Operation: 0, Time: 10},
	}}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, CSV, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "train,operation,time\n0,0,0\n1,0,10\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv %q", buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, JSON, sample()); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["objective_value"].(float64) != 9 || len(out["events"].([]any)) != 2 {
		t.Fatalf("unexpected json %v", out)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": JSON, "CSV": CSV, "json": JSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected error")
	}
}
