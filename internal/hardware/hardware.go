// Package hardware loads the hardware-constants document: per-qubit
// ceilings, floors, and fixed device properties referenced by settings
// formulas under the `hw.` namespace. The document is YAML, edited by the
// lab alongside the routine files, and is read-only for the engine.
package hardware

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Constants is the parsed hardware-constants document. Global values apply
// to every qubit unless a per-qubit section overrides them.
type Constants struct {
	Global map[string]float64            `yaml:"global"`
	Qubits map[string]map[string]float64 `yaml:"qubits"`
}

// Load reads and parses a hardware-constants file.
func Load(path string) (*Constants, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hardware constants %s: %w", path, err)
	}

	var c Constants
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse hardware constants %s: %w", path, err)
	}
	return &c, nil
}

// ForQubit returns the effective constant set for one qubit: the global
// section overlaid by the qubit's own section. The returned map is a copy;
// mutating it does not touch the document.
func (c *Constants) ForQubit(qubitID string) map[string]float64 {
	if c == nil {
		return map[string]float64{}
	}
	merged := make(map[string]float64, len(c.Global))
	for name, val := range c.Global {
		merged[name] = val
	}
	for name, val := range c.Qubits[qubitID] {
		merged[name] = val
	}
	return merged
}
