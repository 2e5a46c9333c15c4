// Package instancefile reads DISPLIB instances and writes solutions. Instances
// come from JSON or YAML files or from an HTTP source.
package instancefile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/displib/core/model"
	"github.com/kilianp07/displib/core/solution"
)

// Format names an on-disk encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file name. Anything that is not .yaml or
// .yml is read as JSON.
func FormatOf(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// Decode reads a raw instance from r.
func Decode(r io.Reader, f Format) (*model.RawInstance, error) {
	var raw model.RawInstance
	switch f {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode yaml instance: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode json instance: %w", err)
		}
	}
	return &raw, nil
}

// Load reads the raw instance stored at path.
func Load(path string) (*model.RawInstance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	raw, err := Decode(f, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raw, nil
}

// Read loads and builds the instance stored at path.
func Read(path string) (*model.Instance, error) {
	raw, err := Load(path)
	if err != nil {
		return nil, err
	}
	in, err := model.Build(*raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}

// EncodeSolution writes sol as indented JSON.
func EncodeSolution(w io.Writer, sol *solution.Solution) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sol)
}

// WriteSolution stores sol at path, replacing any existing file.
func WriteSolution(path string, sol *solution.Solution) error {
	var buf bytes.Buffer
	if err := EncodeSolution(&buf, sol); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSolution loads a solution document in JSON or YAML.
func ReadSolution(path string) (*solution.Solution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sol solution.Solution
	if FormatOf(path) == FormatYAML {
		err = yaml.Unmarshal(data, &sol)
	} else {
		err = json.Unmarshal(data, &sol)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: decode solution: %w", path, err)
	}
	return &sol, nil
}
