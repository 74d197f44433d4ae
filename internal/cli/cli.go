package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/qulab/autocal/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an
// ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("autocal", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
autocal - a calibration routine engine for superconducting qubits.

Usage:
  autocal [options] [ROUTINES_PATH]

Arguments:
  ROUTINES_PATH
    Path to a single .hcl routine document or a directory containing them.

Options:
`)
		flagSet.PrintDefaults()
	}

	routinesFlag := flagSet.String("routines", "", "Path to the routine document or directory.")
	rFlag := flagSet.String("r", "", "Path to the routine document or directory (shorthand).")
	routineFlag := flagSet.String("routine", "", "Name of the routine to execute.")
	qubitsFlag := flagSet.String("qubits", "", "Comma-separated qubit IDs to calibrate.")
	parallelFlag := flagSet.Int("max-parallel", 1, "Maximum concurrent qubit calibrations.")
	hardwareFlag := flagSet.String("hardware", "", "Path to the hardware-constants YAML file.")
	postgresFlag := flagSet.String("postgres-dsn", "", "Postgres DSN for the parameter store. Empty uses the in-memory store.")
	graphFlag := flagSet.String("export-graph", "", "Write the expanded plan as Graphviz DOT to this path and exit.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *routinesFlag != "" {
		path = *routinesFlag
	} else if *rFlag != "" {
		path = *rFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Routines path determined.", "path", path)

	if path == "" {
		slog.Debug("No routines path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		RoutinesPath:    path,
		HardwarePath:    *hardwareFlag,
		Routine:         *routineFlag,
		Qubits:          splitQubits(*qubitsFlag),
		MaxParallel:     *parallelFlag,
		PostgresDSN:     *postgresFlag,
		GraphPath:       *graphFlag,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
	})

	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

func splitQubits(raw string) []string {
	var qubits []string
	for _, q := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(q); trimmed != "" {
			qubits = append(qubits, trimmed)
		}
	}
	return qubits
}
