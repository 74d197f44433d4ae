package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/qulab/autocal/internal/ctxlog"
	"github.com/qulab/autocal/internal/fsutil"
	"github.com/qulab/autocal/internal/hardware"
	"github.com/qulab/autocal/internal/measure"
	"github.com/qulab/autocal/internal/metrics"
	"github.com/qulab/autocal/internal/paramstore"
	"github.com/qulab/autocal/internal/paramstore/memstore"
	"github.com/qulab/autocal/internal/paramstore/pgstore"
	"github.com/qulab/autocal/internal/routine"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	registry *measure.Registry
	bundle   *routine.Bundle
	hw       *hardware.Constants
	store    paramstore.Store
	metrics  *metrics.Metrics
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and
// registry, with every routine document decoded and validated.
func NewApp(ctx context.Context, outW io.Writer, cfg *Config, modules ...measure.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	bundle, err := loadRoutines(ctx, cfg.RoutinesPath)
	if err != nil {
		return nil, err
	}

	var hw *hardware.Constants
	if cfg.HardwarePath != "" {
		hw, err = hardware.Load(cfg.HardwarePath)
		if err != nil {
			return nil, err
		}
		logger.Debug("Hardware constants loaded.", "path", cfg.HardwarePath)
	}

	reg := measure.NewRegistry()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All measurement modules registered.", "count", len(modules))

	if err := reg.Validate(ctx); err != nil {
		return nil, fmt.Errorf("experiment registry is inconsistent: %w", err)
	}
	logger.Debug("Registry validation passed.", "experiments", reg.Experiments())

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		registry: reg,
		bundle:   bundle,
		hw:       hw,
		store:    store,
		metrics:  metrics.New(),
	}, nil
}

// Registry returns the application's registry. This is primarily for
// testing.
func (a *App) Registry() *measure.Registry {
	return a.registry
}

// loadRoutines decodes every routine document under a path, which may be a
// single file or a directory searched recursively.
func loadRoutines(ctx context.Context, path string) (*routine.Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access routines path %s: %w", path, err)
	}

	paths := []string{path}
	if info.IsDir() {
		paths, err = fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("failed to scan routines directory %s: %w", path, err)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no .hcl routine documents found under %s", path)
		}
	}
	return routine.LoadFiles(ctx, paths...)
}

// openStore selects the parameter store backend from the configuration.
func openStore(ctx context.Context, cfg *Config) (paramstore.Store, error) {
	if cfg.PostgresDSN == "" {
		ctxlog.FromContext(ctx).Info("🧪 Using in-memory parameter store; results will not persist.")
		return memstore.New(), nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	store := pgstore.New(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
