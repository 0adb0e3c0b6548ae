package config

import (
	"fmt"
	"os"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/pkg/metrics"
	"github.com/marmos91/dittoca/pkg/softpv/autosave"
)

// CreateAutosaveStore opens the autosave store described by cfg. It
// returns nil when autosave is disabled.
func CreateAutosaveStore(cfg AutosaveConfig) (*autosave.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("autosave requires path to be set")
	}
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create autosave directory: %w", err)
	}

	store, err := autosave.Open(autosave.Config{
		Path:       cfg.Path,
		SyncWrites: cfg.SyncWrites,
		GCInterval: cfg.GCInterval,
	}, metrics.NewAutosaveMetrics())
	if err != nil {
		return nil, fmt.Errorf("failed to open autosave store: %w", err)
	}

	logger.Info("Autosave store opened", logger.KeyPath, cfg.Path, "sync_writes", cfg.SyncWrites)
	return store, nil
}
