package softpv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/pkg/cas"
)

// accessFile is the access rights override file:
//
//	default: ro
//	pvs:
//	  SETPOINT: rw
//	  SECRET: none
type accessFile struct {
	Default string            `yaml:"default"`
	PVs     map[string]string `yaml:"pvs"`
}

func readAccessFile(path string) (*accessFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &accessFile{}, nil
	}
	if err != nil {
		return nil, err
	}
	var f accessFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid access file %s: %w", path, err)
	}
	if _, err := ParseAccess(f.Default); err != nil {
		return nil, fmt.Errorf("access file %s: %w", path, err)
	}
	for name, a := range f.PVs {
		if _, err := ParseAccess(a); err != nil {
			return nil, fmt.Errorf("access file %s: pv %s: %w", path, name, err)
		}
	}
	return &f, nil
}

// rights resolves the rights of p: a per-PV entry wins over the file
// default, which wins over the PV's own configuration.
func (f *accessFile) rights(p *PV) cas.AccessRights {
	s := p.cfg.Access
	if f.Default != "" {
		s = f.Default
	}
	if a, ok := f.PVs[p.Name()]; ok {
		s = a
	}
	r, _ := ParseAccess(s)
	return r
}

// ReloadAccess re-reads the access file and posts an access rights event
// for every PV whose rights changed. It returns the changed PV names. A
// missing file restores the configured rights.
func (h *Host) ReloadAccess() ([]string, error) {
	if h.accessFile == "" {
		return nil, nil
	}
	f, err := readAccessFile(h.accessFile)
	if err != nil {
		return nil, err
	}

	var changed []string
	for _, name := range h.Names() {
		p := h.pvs[name]
		if p.setAccess(f.rights(p)) {
			changed = append(changed, name)
		}
	}

	if ptr := h.poster.Load(); ptr != nil {
		for _, name := range changed {
			if err := (*ptr).PostAccessRightsEvent(name); err != nil {
				logger.Debug("Access rights event not posted", logger.KeyChannel, name, logger.KeyError, err)
			}
		}
	}
	if len(changed) > 0 {
		logger.Info("Access rights reloaded", logger.KeyPath, h.accessFile, "changed", changed)
	}
	return changed, nil
}

// accessWatcher watches the directory holding the access file, so that
// editors that replace the file are noticed too.
type accessWatcher struct {
	path    string
	watcher *fsnotify.Watcher
}

func newAccessWatcher(path string) (*accessWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch access file: %w", err)
	}
	return &accessWatcher{path: abs, watcher: w}, nil
}

func (w *accessWatcher) run(ctx context.Context, h *Host) {
	defer func() { _ = w.watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if _, err := h.ReloadAccess(); err != nil {
				logger.Warn("Access file reload failed, keeping current rights",
					logger.KeyPath, w.path, logger.KeyError, err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Access file watcher error", logger.KeyError, err)
		}
	}
}
