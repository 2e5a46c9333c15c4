// Package export writes solution events in interchange formats.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kilianp07/displib/core/solution"
)

// Format is an export encoding.
type Format string

const (
	JSON Format = "json"
	CSV  Format = "csv"
)

// ParseFormat accepts format names case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case JSON, CSV:
		return f, nil
	case "":
		return JSON, nil
	}
	return "", fmt.Errorf("unknown export format %q (json, csv)", s)
}

// Write encodes sol to w in format f.
func Write(w io.Writer, f Format, sol *solution.Solution) error {
	if f == CSV {
		return WriteCSV(w, sol.Events)
	}
	return WriteJSON(w, sol)
}

// WriteJSON writes the solution document to w.
func WriteJSON(w io.Writer, sol *solution.Solution) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sol)
}

// WriteCSV writes one row per event with a train,operation,time header.
func WriteCSV(w io.Writer, events []solution.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"train", "operation", "time"}); err != nil {
		return err
	}
	for _, e := range events {
		rec := []string{
			strconv.Itoa(e.Train),
			strconv.Itoa(e.Operation),
			strconv.FormatInt(e.Time, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
