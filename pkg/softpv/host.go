// Package softpv is a configuration driven cas.Host. Its PVs live in
// memory, post monitor events when written, can persist their values in
// an autosave store and take their access rights from a watched file.
package softpv

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/pkg/cas"
	"github.com/marmos91/dittoca/pkg/gdd"
	"github.com/marmos91/dittoca/pkg/softpv/autosave"
)

// EventPoster receives value and access rights changes. *cas.Server
// implements it.
type EventPoster interface {
	PostEvent(pv cas.PV, mask cas.EventMask, value *gdd.GDD) error
	PostAccessRightsEvent(pvName string) error
}

var _ EventPoster = (*cas.Server)(nil)

// Host serves the PVs of a Config.
type Host struct {
	pvs        map[string]*PV
	accessFile string
	store      *autosave.Store
	poster     atomic.Pointer[EventPoster]

	saveMu sync.Mutex
	dirty  map[string]*PV
	kick   chan struct{}
}

var _ cas.Host = (*Host)(nil)

// New builds the PVs of cfg and restores autosaved values from store,
// which may be nil. It also applies the access file when one is set.
func New(ctx context.Context, cfg Config, store *autosave.Store) (*Host, error) {
	h := &Host{
		pvs:        make(map[string]*PV, len(cfg.PVs)),
		accessFile: cfg.AccessFile,
		store:      store,
		dirty:      make(map[string]*PV),
		kick:       make(chan struct{}, 1),
	}
	for _, pc := range cfg.PVs {
		if _, dup := h.pvs[pc.Name]; dup {
			return nil, fmt.Errorf("duplicate PV %q", pc.Name)
		}
		p, err := newPV(h, pc)
		if err != nil {
			return nil, err
		}
		h.pvs[pc.Name] = p
	}

	if store != nil {
		if err := h.restore(ctx); err != nil {
			return nil, err
		}
	}
	if h.accessFile != "" {
		if _, err := h.ReloadAccess(); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Bind sets where value and access rights changes are posted.
func (h *Host) Bind(p EventPoster) {
	h.poster.Store(&p)
}

func (h *Host) ExistTest(ctx *cas.Context, name string) (cas.ExistReturn, error) {
	if _, ok := h.pvs[name]; ok {
		return cas.ExistHere, nil
	}
	return cas.ExistNotHere, nil
}

func (h *Host) Attach(ctx *cas.Context, name string) (cas.PV, error) {
	p, ok := h.pvs[name]
	if !ok {
		return nil, cas.ErrNotFound
	}
	return p, nil
}

// PV returns the named PV.
func (h *Host) PV(name string) (*PV, bool) {
	p, ok := h.pvs[name]
	return p, ok
}

// Names lists the PV names in order.
func (h *Host) Names() []string {
	names := make([]string, 0, len(h.pvs))
	for n := range h.pvs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Put sets a PV from a Go value, such as 1.5, "ON" or []float64{1, 2},
// the way a client write would.
func (h *Host) Put(ctx context.Context, name string, v any) error {
	p, ok := h.pvs[name]
	if !ok {
		return fmt.Errorf("%w: %s", cas.ErrNotFound, name)
	}
	in, err := gdd.FromValue(gdd.TagValue, v)
	if err != nil {
		return err
	}
	defer in.Unreference()
	return p.put(ctx, in)
}

func (h *Host) post(p *PV, mask cas.EventMask) {
	ptr := h.poster.Load()
	if ptr == nil {
		return
	}
	snap := p.Snapshot()
	defer snap.Unreference()
	if err := (*ptr).PostEvent(p, mask, snap); err != nil {
		logger.Debug("Event not posted", logger.KeyChannel, p.Name(), logger.KeyError, err)
	}
}

func (h *Host) restore(ctx context.Context) error {
	saved, err := h.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore autosaved values: %w", err)
	}
	restored := 0
	for name, v := range saved {
		p, ok := h.pvs[name]
		if !ok || !p.cfg.Autosave {
			_ = v.Unreference()
			continue
		}
		next := p.newValue()
		err := gdd.SmartCopy(next, v)
		_ = v.Unreference()
		if err != nil {
			_ = next.Unreference()
			logger.Warn("Autosaved value does not fit PV", logger.KeyChannel, name, logger.KeyError, err)
			continue
		}
		p.mu.Lock()
		old := p.value
		p.value = next
		p.mu.Unlock()
		_ = old.Unreference()
		restored++
	}
	logger.Info("Autosaved values restored", "count", restored)
	return nil
}

func (h *Host) markDirty(p *PV) {
	if h.store == nil {
		return
	}
	h.saveMu.Lock()
	h.dirty[p.Name()] = p
	h.saveMu.Unlock()
	select {
	case h.kick <- struct{}{}:
	default:
	}
}

// Flush saves every value written since the last flush.
func (h *Host) Flush(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	h.saveMu.Lock()
	dirty := h.dirty
	h.dirty = make(map[string]*PV)
	h.saveMu.Unlock()

	var firstErr error
	for name, p := range dirty {
		v := p.Value()
		err := h.store.Save(ctx, name, v)
		_ = v.Unreference()
		if err != nil {
			logger.Warn("Autosave failed", logger.KeyChannel, name, logger.KeyError, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run saves written values in the background and, when an access file is
// configured, reloads it on change. It returns when ctx is done, after a
// final flush.
func (h *Host) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	if h.accessFile != "" {
		w, err := newAccessWatcher(h.accessFile)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx, h)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = h.Flush(flushCtx)
			return nil
		case <-h.kick:
			_ = h.Flush(ctx)
		}
	}
}
