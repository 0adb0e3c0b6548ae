package config

import (
	"context"
	"fmt"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/pkg/adapter"
	"github.com/marmos91/dittoca/pkg/cas"
	"github.com/marmos91/dittoca/pkg/softpv"
	"github.com/marmos91/dittoca/pkg/softpv/autosave"
)

// InitializeHost builds the soft PV host from the configuration.
//
// Autosaved values are restored from store (nil when autosave is
// disabled) and the access file, if any, is applied. The host is not yet
// bound to a server; see softpv.Host.Bind.
//
// Example:
//
//	cfg, _ := config.Load("config.yaml")
//	store, _ := config.CreateAutosaveStore(cfg.Autosave)
//	host, err := config.InitializeHost(ctx, cfg, store)
func InitializeHost(ctx context.Context, cfg *Config, store *autosave.Store) (*softpv.Host, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if len(cfg.PVs) == 0 {
		logger.Warn("No PVs configured, the server will not answer any search")
	}

	host, err := softpv.New(ctx, cfg.Config, store)
	if err != nil {
		return nil, fmt.Errorf("failed to create PV host: %w", err)
	}

	autosaved := 0
	for _, pv := range cfg.PVs {
		if pv.Autosave {
			autosaved++
		}
	}
	if autosaved > 0 && store == nil {
		logger.Warn("PVs request autosave but autosave is disabled", "count", autosaved)
	}

	logger.Info("Registered PVs", "count", len(cfg.PVs), "autosave", autosaved)
	return host, nil
}

// CASConfig converts the server section into a cas.Config.
func (c *Config) CASConfig() cas.Config {
	s := c.Server
	return cas.Config{
		BaseConfig: adapter.BaseConfig{
			BindAddress:        s.BindAddress(),
			Port:               s.Port,
			MaxConnections:     s.MaxConnections,
			ShutdownTimeout:    c.ShutdownTimeout,
			MetricsLogInterval: s.MetricsLogInterval,
		},
		ServerAddr:      s.ServerAddr,
		BeaconPort:      s.BeaconPort,
		BeaconAddrs:     s.BeaconAddrs,
		AutoBeaconAddrs: s.IsAutoBeaconAddrs(),
		ObserveBeacons:  s.ObserveBeacons,
		IgnoreAddrs:     s.IgnoreAddrs,
		BeaconMinPeriod: s.BeaconMinPeriod,
		BeaconPeriod:    s.BeaconPeriod,
		AnomalyInterval: s.AnomalyInterval,
		InterfaceCheck:  s.InterfaceCheck,
		BufferSize:      s.BufferSize.Int(),
		MaxArrayBytes:   s.MaxArrayBytes.Int(),
		MaxEventQueue:   s.MaxEventQueue,
		StallTimeout:    s.StallTimeout,
		MinMinorVersion: s.MinMinorVersion,
	}
}
