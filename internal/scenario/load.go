package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/smokerun/internal/errs"
)

// File is the on-disk layout of a scenario file.
type File struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// LoadFile reads and validates a YAML scenario file.
func LoadFile(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("read scenario file %s", path), err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Parse decodes and validates YAML scenario documents. Unknown fields and
// duplicate names are rejected.
func Parse(data []byte) ([]Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var set []Scenario
	for {
		var f File
		err := dec.Decode(&f)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, "decode scenario yaml", err)
		}
		set = append(set, f.Scenarios...)
	}
	if len(set) == 0 {
		return nil, errs.New(errs.InvalidArgument, "no scenarios defined")
	}

	seen := make(map[string]bool, len(set))
	for _, s := range set {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("duplicate scenario %q", s.Name))
		}
		seen[s.Name] = true
	}
	return set, nil
}

// Marshal encodes scenarios in the file layout Parse accepts.
func Marshal(set []Scenario) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(File{Scenarios: set}); err != nil {
		return nil, fmt.Errorf("encode scenarios: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode scenarios: %w", err)
	}
	return buf.Bytes(), nil
}
