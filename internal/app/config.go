package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	RoutinesPath string // directory or file with .hcl routine documents
	HardwarePath string // optional hardware-constants YAML
	Routine      string // routine name to execute
	Qubits       []string
	MaxParallel  int

	// PostgresDSN selects the persistent parameter store; empty keeps the
	// run on the in-memory store.
	PostgresDSN string

	// GraphPath, when set, writes the expanded plan as Graphviz DOT and
	// exits without measuring.
	GraphPath string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
}

// NewConfig validates a configuration.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.RoutinesPath == "" {
		return nil, errors.New("RoutinesPath is a required configuration field and cannot be empty")
	}
	if cfg.Routine == "" {
		return nil, errors.New("Routine is a required configuration field and cannot be empty")
	}
	if len(cfg.Qubits) == 0 && cfg.GraphPath == "" {
		return nil, errors.New("at least one qubit must be given")
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	return &cfg, nil
}
